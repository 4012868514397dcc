package vecsim

import (
	"context"
	"slices"
	"time"

	"github.com/hupe1980/vecsim/distance"
	"github.com/hupe1980/vecsim/index"
)

// Metric returns the active distance metric.
func (db *DB) Metric() distance.Metric {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.metric
}

// Algorithm returns the active index algorithm and its parameters.
func (db *DB) Algorithm() (index.Algorithm, index.Params) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.idx.Algorithm(), db.idx.Params()
}

// SetMetric switches the distance metric by name and rebuilds the index.
// An unknown name leaves the DB unchanged. Selecting the active metric is
// a no-op.
func (db *DB) SetMetric(ctx context.Context, name string) error {
	m, ok := distance.ParseMetric(name)
	if !ok {
		return invalidMetric(name)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrClosed
	}
	from := db.metric
	if m == from {
		return nil
	}

	idx, err := db.newIndex(db.idx.Algorithm(), db.idx.Params(), m)
	if err == nil {
		err = db.rebuildLocked(idx)
	}
	if err != nil {
		db.logger.LogAlgorithmSwitch(ctx, from.String(), m.String(), db.store.Len(), err)
		return translateError(err)
	}

	db.idx = idx
	db.metric = m
	db.cache.Clear()
	db.logger.LogAlgorithmSwitch(ctx, from.String(), m.String(), db.store.Len(), nil)
	return nil
}

// SetAlgorithm switches the index algorithm by name. Overrides are merged
// over the algorithm's defaults. The new index is built from a copy of the
// store without blocking readers and swapped in under the write lock; if
// the store changed meanwhile it is rebuilt before the swap. On error the
// active index stays in place.
func (db *DB) SetAlgorithm(ctx context.Context, name string, overrides index.Overrides) (index.Params, error) {
	algorithm, err := index.ParseAlgorithm(name)
	if err != nil {
		return index.Params{}, invalidAlgorithm(name, nil)
	}
	params, err := overrides.Resolve(algorithm)
	if err != nil {
		return index.Params{}, translateError(err)
	}

	if err := db.rc.AcquireBackground(ctx); err != nil {
		return index.Params{}, err
	}
	defer db.rc.ReleaseBackground()

	db.mu.RLock()
	if db.closed {
		db.mu.RUnlock()
		return index.Params{}, ErrClosed
	}
	from := db.idx.Algorithm().String()
	metric := db.metric
	version := db.store.Version()
	entries := db.entries()
	for i := range entries {
		entries[i].Vector = slices.Clone(entries[i].Vector)
	}
	db.mu.RUnlock()

	start := time.Now()
	idx, err := db.newIndex(algorithm, params, metric)
	if err == nil {
		err = idx.Rebuild(entries)
	}
	if err != nil {
		db.logger.LogAlgorithmSwitch(ctx, from, name, len(entries), err)
		return index.Params{}, translateError(err)
	}
	built := time.Since(start)

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return index.Params{}, ErrClosed
	}

	if db.store.Version() != version || db.metric != metric {
		if idx, err = db.newIndex(algorithm, params, db.metric); err == nil {
			err = db.rebuildLocked(idx)
		}
		if err != nil {
			db.logger.LogAlgorithmSwitch(ctx, from, name, db.store.Len(), err)
			return index.Params{}, translateError(err)
		}
	} else {
		db.countRebuild(len(entries), built)
	}

	db.idx = idx
	db.cache.Clear()
	db.logger.LogAlgorithmSwitch(ctx, from, algorithm.String(), db.store.Len(), nil)
	return idx.Params(), nil
}

// SetSIMD toggles the vectorized distance path. It takes effect on the
// next distance computation and neither clears the cache nor rebuilds.
func (db *DB) SetSIMD(enabled bool) {
	db.dispatcher.SetEnabled(enabled)
}

// SIMDEnabled reports whether the vectorized path is requested.
func (db *DB) SIMDEnabled() bool {
	return db.dispatcher.Enabled()
}

// SIMDISA names the instruction set used by the vectorized path.
func (db *DB) SIMDISA() string {
	return db.dispatcher.ISA()
}
