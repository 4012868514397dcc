package vecsim

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/vecsim/index"
	"github.com/hupe1980/vecsim/persistence"
	"github.com/hupe1980/vecsim/vectorstore"
	"github.com/hupe1980/vecsim/wal"
)

// SaveInfo describes a completed snapshot.
type SaveInfo = persistence.SaveInfo

// recover loads the latest snapshot and replays the commit log into the
// store. The index is built afterwards, once.
func (db *DB) recover(ctx context.Context, algorithm *index.Algorithm, params *index.Params) error {
	info, err := db.pm.Recover(ctx,
		func(snap *persistence.Snapshot) error {
			if snap.Dimension != db.dim {
				return &ErrDimensionMismatch{Expected: db.dim, Actual: snap.Dimension}
			}
			if err := snap.Params.Validate(snap.Algorithm); err != nil {
				return err
			}
			db.metric = snap.Metric
			*algorithm = snap.Algorithm
			*params = snap.Params
			if snap.Seed != 0 {
				db.seed = snap.Seed
			}
			for _, r := range snap.Records {
				if _, _, err := db.store.Put(r.Key, r.Vector, r.Metadata); err != nil {
					return err
				}
			}
			return nil
		},
		db.replay,
	)

	if info.Snapshot != "" || info.Replayed > 0 || err != nil {
		db.logger.LogRecovery(ctx, info.Snapshot, info.Records, info.Replayed, err)
	}
	return translateError(err)
}

func (db *DB) replay(e wal.Entry) error {
	switch e.Type {
	case wal.OpInsert, wal.OpUpdate:
		_, _, err := db.store.Put(e.Key, e.Vector, e.Metadata)
		return err
	case wal.OpDelete:
		if _, err := db.store.Delete(e.Key); err != nil && !errors.Is(err, vectorstore.ErrNotFound) {
			return err
		}
	}
	return nil
}

// Save writes a snapshot and truncates the commit log. Mutations wait
// until it completes.
func (db *DB) Save(ctx context.Context) (SaveInfo, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return SaveInfo{}, ErrClosed
	}
	if !db.pm.HasStore() {
		return SaveInfo{}, ErrNoSnapshotStore
	}

	records := make([]vectorstore.Record, 0, db.store.Len())
	db.store.Ascend(func(_ uint32, rec vectorstore.Record) bool {
		records = append(records, rec)
		return true
	})

	info, err := db.pm.Save(ctx, &persistence.Snapshot{
		Dimension: db.dim,
		Metric:    db.metric,
		Algorithm: db.idx.Algorithm(),
		Params:    db.idx.Params(),
		Seed:      db.seed,
		Records:   records,
	})
	db.logger.LogSnapshot(ctx, info.Name, len(records), err)
	return info, translateError(err)
}

// autoCheckpoint runs from inside a journal write, while the writer still
// holds the DB lock, so the save happens on its own goroutine.
func (db *DB) autoCheckpoint() error {
	if !db.saving.CompareAndSwap(false, true) {
		return nil
	}
	db.bg.Add(1)
	go func() {
		defer db.bg.Done()
		defer db.saving.Store(false)

		if _, err := db.Save(context.Background()); err != nil && !errors.Is(err, ErrClosed) {
			db.logger.Warn("auto-checkpoint failed", "error", err)
		}
	}()
	return nil
}

// CompactResult reports what Compact reclaimed.
type CompactResult struct {
	Records    int  // live records
	Tombstones int  // index entries reclaimed
	Slots      int  // store slots reclaimed
	Rebuilt    bool // whether the index was rebuilt
}

// Compact reclaims deleted store slots and index tombstones.
func (db *DB) Compact(ctx context.Context) (CompactResult, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return CompactResult{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return CompactResult{}, err
	}

	res := CompactResult{Slots: db.store.Holes()}
	c, isCompactor := db.idx.(index.Compactor)
	if isCompactor {
		res.Tombstones = c.Tombstones()
	}

	switch {
	case db.store.Compact():
		// Ids were renumbered; the index must follow.
		if err := db.rebuildLocked(db.idx); err != nil {
			return res, translateError(err)
		}
		res.Rebuilt = true
	case isCompactor:
		start := time.Now()
		done, err := c.Compact()
		if err != nil {
			return res, translateError(err)
		}
		if done {
			db.countRebuild(db.store.Len(), time.Since(start))
			res.Rebuilt = true
		}
	}

	if res.Rebuilt {
		db.cache.Clear()
	}
	res.Records = db.store.Len()
	return res, nil
}

// maybeCompactLocked runs the automatic cleanup after removals: index
// tombstones past the index's threshold, or store holes outnumbering
// live records.
func (db *DB) maybeCompactLocked() error {
	if db.store.Holes() > max(minStoreHoles, db.store.Len()) && db.store.Compact() {
		return db.rebuildLocked(db.idx)
	}
	if c, ok := db.idx.(index.Compactor); ok && c.NeedsCompaction() {
		start := time.Now()
		done, err := c.Compact()
		if err != nil {
			return err
		}
		if done {
			db.countRebuild(db.store.Len(), time.Since(start))
		}
	}
	return nil
}

const minStoreHoles = 1024
