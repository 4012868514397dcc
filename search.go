package vecsim

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecsim/index"
	"github.com/hupe1980/vecsim/internal/hash"
)

// SearchResult is one search hit.
type SearchResult struct {
	Key      string  `json:"key"`
	Distance float32 `json:"distance"`
	Metadata string  `json:"metadata,omitempty"`
}

type searchOptions struct {
	withMetadata bool
}

// SearchOption configures a single search.
type SearchOption func(*searchOptions)

// WithMetadata includes each record's metadata in the results.
func WithMetadata(include bool) SearchOption {
	return func(o *searchOptions) {
		o.withMetadata = include
	}
}

// resultsSize approximates the bytes held by a cached result list.
func resultsSize(rs []SearchResult) int64 {
	n := int64(24 * len(rs))
	for _, r := range rs {
		n += int64(len(r.Key) + len(r.Metadata))
	}
	return n
}

// queryKey identifies a query under the current configuration by its
// exact bytes, so equal keys always mean equal queries.
// Caller must hold db.mu.
func (db *DB) queryKey(query []float32, k int, withMetadata bool) string {
	p := db.idx.Params()
	return hash.NewKey(4*len(query)+112).
		Floats(query).
		Int(k).
		Text(db.metric.String()).
		Text(db.idx.Algorithm().String()).
		Int(p.NumTables).
		Int(p.NumHashFunctions).
		Int(p.M).
		Int(p.EfConstruction).
		Int(p.EfSearch).
		Bool(withMetadata).
		String()
}

// Search returns the k nearest records to query, nearest first. Equal
// distances are ordered by insertion.
//
// Results are cached until the next mutation or configuration change.
// Concurrent identical misses are computed once.
func (db *DB) Search(ctx context.Context, query []float32, k int, optFns ...SearchOption) ([]SearchResult, error) {
	start := time.Now()

	var o searchOptions
	for _, fn := range optFns {
		fn(&o)
	}

	res, cached, err := db.search(ctx, query, k, o)
	err = translateError(err)

	db.metrics.RecordSearch(k, time.Since(start), err)
	db.logger.LogSearch(ctx, k, len(res), cached, err)
	return res, err
}

func (db *DB) search(ctx context.Context, query []float32, k int, o searchOptions) ([]SearchResult, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return nil, false, ErrClosed
	}
	if err := index.ValidateQuery(query, k, db.dim); err != nil {
		return nil, false, err
	}

	key := db.queryKey(query, k, o.withMetadata)
	if res, ok := db.cache.Get(key); ok {
		db.metrics.RecordCacheLookup(true)
		return slices.Clone(res), true, nil
	}
	db.metrics.RecordCacheLookup(false)

	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	// Every caller holds the read lock, so no mutation can separate the
	// shared computation from its cache store.
	v, err, _ := db.flights.Do(key, func() (any, error) {
		neighbors, err := db.idx.Search(query, k)
		if err != nil {
			return nil, err
		}

		res := make([]SearchResult, 0, len(neighbors))
		for _, n := range neighbors {
			rec, ok := db.store.Lookup(n.ID)
			if !ok {
				continue
			}
			r := SearchResult{Key: rec.Key, Distance: n.Distance}
			if o.withMetadata {
				r.Metadata = rec.Metadata
			}
			res = append(res, r)
		}

		db.cache.Put(key, res)
		return res, nil
	})
	if err != nil {
		return nil, false, err
	}
	return slices.Clone(v.([]SearchResult)), false, nil
}

// SearchBatch runs Search for each query in parallel. Results are in
// query order. The first failing query aborts the batch.
func (db *DB) SearchBatch(ctx context.Context, queries [][]float32, k int, optFns ...SearchOption) ([][]SearchResult, error) {
	out := make([][]SearchResult, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, q := range queries {
		g.Go(func() error {
			res, err := db.Search(gctx, q, k, optFns...)
			if err != nil {
				return fmt.Errorf("query %d: %w", i, err)
			}
			out[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
