package vecsim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/vecsim/blobstore"
	"github.com/hupe1980/vecsim/distance"
	"github.com/hupe1980/vecsim/index"
	"github.com/hupe1980/vecsim/index/exact"
	"github.com/hupe1980/vecsim/index/hnsw"
	"github.com/hupe1980/vecsim/index/lsh"
	"github.com/hupe1980/vecsim/internal/cache"
	"github.com/hupe1980/vecsim/internal/resource"
	"github.com/hupe1980/vecsim/persistence"
	"github.com/hupe1980/vecsim/vectorstore"
	"github.com/hupe1980/vecsim/wal"
)

// Record is a stored vector with its key and metadata.
type Record = vectorstore.Record

// Page is one page of List results.
type Page = vectorstore.Page

// DB is an in-memory vector database.
//
// A single RWMutex guards the store, the active index and the query cache
// as one unit: readers share it, mutations and configuration changes take
// it exclusively. The SIMD toggle is an atomic flag outside the lock.
type DB struct {
	mu         sync.RWMutex
	dim        int
	store      *vectorstore.Store
	idx        index.Index
	metric     distance.Metric
	seed       uint64
	dispatcher *distance.Dispatcher
	cache      *cache.LRU[string, []SearchResult]
	flights    singleflight.Group
	rc         *resource.Controller
	pm         *persistence.Manager
	metrics    MetricsCollector
	logger     *Logger
	closed     bool

	rebuilds atomic.Int64
	saving   atomic.Bool
	bg       sync.WaitGroup
}

// New creates a DB for vectors of length dim. If persistence is
// configured, existing state is recovered as by Open.
func New(dim int, optFns ...Option) (*DB, error) {
	return Open(context.Background(), dim, optFns...)
}

// Open creates a DB for vectors of length dim, loading the latest
// snapshot and replaying the commit log when they are configured. A
// snapshot's metric, algorithm and seed take precedence over the options.
func Open(ctx context.Context, dim int, optFns ...Option) (*DB, error) {
	o := applyOptions(optFns)

	if dim <= 0 {
		return nil, &ErrInvalidConfiguration{Field: "dimension", Value: fmt.Sprint(dim)}
	}
	if !o.metric.Valid() {
		return nil, invalidMetric(o.metric.String())
	}
	if !o.algorithm.Valid() {
		return nil, invalidAlgorithm(o.algorithm.String(), nil)
	}
	params, err := o.overrides.Resolve(o.algorithm)
	if err != nil {
		return nil, translateError(err)
	}

	var rc *resource.Controller
	if o.memoryLimit > 0 || o.ioLimit > 0 {
		rc = resource.NewController(resource.Config{
			MemoryLimitBytes:   o.memoryLimit,
			IOLimitBytesPerSec: o.ioLimit,
		})
	}

	store, err := vectorstore.New(dim, vectorstore.WithResourceController(rc))
	if err != nil {
		return nil, err
	}

	pm, err := newManager(o, rc)
	if err != nil {
		return nil, err
	}

	db := &DB{
		dim:        dim,
		store:      store,
		metric:     o.metric,
		dispatcher: distance.NewDispatcher(o.simd),
		rc:         rc,
		pm:         pm,
		metrics:    o.metricsCollector,
		logger:     o.logger.WithDimension(dim),
	}
	if o.seedSet {
		db.seed = o.seed
	}
	db.cache = cache.NewLRU(o.cacheCapacity,
		cache.WithResourceController[string](rc, resultsSize))

	algorithm := o.algorithm
	if err := db.recover(ctx, &algorithm, &params); err != nil {
		_ = pm.Close()
		return nil, err
	}

	idx, err := db.newIndex(algorithm, params, db.metric)
	if err != nil {
		_ = pm.Close()
		return nil, translateError(err)
	}
	if store.Len() > 0 {
		if err := db.rebuildLocked(idx); err != nil {
			_ = pm.Close()
			return nil, translateError(err)
		}
	}
	db.idx = idx

	if pm.HasStore() && pm.Journal() != nil {
		pm.SetCheckpointCallback(db.autoCheckpoint)
	}
	return db, nil
}

func newManager(o options, rc *resource.Controller) (*persistence.Manager, error) {
	journal := o.journal
	if journal == nil && o.walPath != "" {
		w, err := wal.New(append([]func(*wal.Options){func(wo *wal.Options) {
			wo.Path = o.walPath
		}}, o.walOptions...)...)
		if err != nil {
			return nil, fmt.Errorf("vecsim: failed to create WAL: %w", err)
		}
		journal = w
	}

	store := o.blobStore
	if store == nil && o.snapshotDir != "" {
		local, err := blobstore.NewLocalStore(o.snapshotDir)
		if err != nil {
			if journal != nil {
				_ = journal.Close()
			}
			return nil, err
		}
		store = local
	}

	pm, err := persistence.NewManager(func(po *persistence.ManagerOptions) {
		po.Store = store
		po.Journal = journal
		if o.snapshotName != "" {
			po.Name = o.snapshotName
		}
		po.Write = persistence.WriteOptions{Codec: o.codec, Compression: o.compression}
		po.Resource = rc
	})
	if err != nil {
		if journal != nil {
			_ = journal.Close()
		}
		return nil, translateError(err)
	}
	return pm, nil
}

// newIndex creates an empty index for the given configuration.
func (db *DB) newIndex(a index.Algorithm, p index.Params, m distance.Metric) (index.Index, error) {
	dist := db.dispatcher.Func(m)
	switch a {
	case index.Exact:
		return exact.New(db.dim, dist), nil
	case index.LSH:
		return lsh.New(db.dim, dist, p, func(o *lsh.Options) {
			if db.seed != 0 {
				o.Seed = db.seed
			}
		})
	case index.HNSW:
		return hnsw.New(db.dim, dist, p, func(o *hnsw.Options) {
			if db.seed != 0 {
				o.Seed = db.seed
			}
		})
	default:
		return nil, invalidAlgorithm(a.String(), index.ErrUnknownAlgorithm)
	}
}

// entries returns the store's records in insertion order. Vectors alias
// store memory; indexes copy what they keep.
func (db *DB) entries() []index.Entry {
	out := make([]index.Entry, 0, db.store.Len())
	db.store.Ascend(func(id uint32, rec vectorstore.Record) bool {
		out = append(out, index.Entry{ID: id, Vector: rec.Vector})
		return true
	})
	return out
}

// rebuildLocked fills idx from the store and counts the rebuild.
func (db *DB) rebuildLocked(idx index.Index) error {
	start := time.Now()
	if err := idx.Rebuild(db.entries()); err != nil {
		return err
	}
	db.countRebuild(db.store.Len(), time.Since(start))
	return nil
}

func (db *DB) countRebuild(records int, d time.Duration) {
	db.rebuilds.Add(1)
	db.metrics.RecordRebuild(records, d)
}

// Dimension returns the fixed vector length.
func (db *DB) Dimension() int { return db.dim }

// Count returns the number of stored vectors.
func (db *DB) Count() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.store.Len()
}

// CacheStats is a point-in-time view of the query cache.
type CacheStats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	CurrentSize int     `json:"current_size"`
	Capacity    int     `json:"capacity"`
}

// Stats summarizes the DB.
type Stats struct {
	VectorCount   int
	Dimension     int
	Algorithm     index.Algorithm
	Params        index.Params
	Metric        distance.Metric
	SIMDEnabled   bool
	SIMDISA       string
	IndexRebuilds int64
	Tombstones    int
	MemoryUsed    int64
	Cache         CacheStats
}

// CacheStats returns query cache counters.
func (db *DB) CacheStats() CacheStats {
	s := db.cache.Stats()
	return CacheStats{
		Hits:        s.Hits,
		Misses:      s.Misses,
		HitRate:     s.HitRate(),
		CurrentSize: s.CurrentSize,
		Capacity:    s.Capacity,
	}
}

// Stats returns a snapshot of DB state and counters.
func (db *DB) Stats() Stats {
	db.mu.RLock()
	defer db.mu.RUnlock()

	st := Stats{
		VectorCount:   db.store.Len(),
		Dimension:     db.dim,
		Algorithm:     db.idx.Algorithm(),
		Params:        db.idx.Params(),
		Metric:        db.metric,
		SIMDEnabled:   db.dispatcher.Enabled(),
		SIMDISA:       db.dispatcher.ISA(),
		IndexRebuilds: db.rebuilds.Load(),
		MemoryUsed:    db.store.MemoryUsage(),
		Cache:         db.CacheStats(),
	}
	if c, ok := db.idx.(index.Compactor); ok {
		st.Tombstones = c.Tombstones()
	}
	return st
}

// Close waits for background saves, closes the commit log and releases
// memory. Close is idempotent.
func (db *DB) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	db.mu.Unlock()

	db.bg.Wait()
	err := db.pm.Close()

	db.mu.Lock()
	db.cache.Clear()
	db.store.Close()
	db.mu.Unlock()

	if errors.Is(err, persistence.ErrManagerClosed) {
		return nil
	}
	return err
}
