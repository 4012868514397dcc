package vecsim_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecsim"
	"github.com/hupe1980/vecsim/distance"
	"github.com/hupe1980/vecsim/index"
)

func fill(dim int, v float32) []float32 {
	out := make([]float32, dim)
	for i := range out {
		out[i] = v
	}
	return out
}

func newDB(t *testing.T, dim int, optFns ...vecsim.Option) *vecsim.DB {
	t.Helper()
	db, err := vecsim.New(dim, optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func keys(rs []vecsim.SearchResult) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Key
	}
	return out
}

func TestNew_InvalidConfiguration(t *testing.T) {
	_, err := vecsim.New(0)
	var ic *vecsim.ErrInvalidConfiguration
	require.ErrorAs(t, err, &ic)
	assert.Equal(t, "dimension", ic.Field)

	_, err = vecsim.New(4, vecsim.WithAlgorithm(index.Algorithm(42), index.Overrides{}))
	require.ErrorAs(t, err, &ic)
	assert.Equal(t, "algorithm", ic.Field)

	zero := 0
	_, err = vecsim.New(4, vecsim.WithAlgorithm(index.HNSW, index.Overrides{M: &zero}))
	require.ErrorAs(t, err, &ic)
	assert.Equal(t, "M", ic.Field)
}

func TestSearch_TieBrokenByInsertionOrder(t *testing.T) {
	narrow := 2
	tests := []struct {
		name      string
		algo      index.Algorithm
		overrides index.Overrides
	}{
		{"exact", index.Exact, index.Overrides{}},
		{"lsh", index.LSH, index.Overrides{}},
		{"hnsw", index.HNSW, index.Overrides{}},
		// ef below the record count forces the graph search.
		{"hnsw graph", index.HNSW, index.Overrides{EfSearch: &narrow}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			db := newDB(t, 128, vecsim.WithAlgorithm(tt.algo, tt.overrides), vecsim.WithSeed(7))

			require.NoError(t, db.Insert(ctx, "v1", fill(128, 1.4375), ""))
			require.NoError(t, db.Insert(ctx, "v2", fill(128, 1.5625), ""))
			require.NoError(t, db.Insert(ctx, "v3", fill(128, 1.25), ""))
			for i, v := range []float32{10, -10, 20, -20, 30} {
				require.NoError(t, db.Insert(ctx, fmt.Sprintf("far%d", i), fill(128, v), ""))
			}

			res, err := db.Search(ctx, fill(128, 1.5), 3)
			require.NoError(t, err)
			assert.Equal(t, []string{"v1", "v2", "v3"}, keys(res))
			assert.Equal(t, res[0].Distance, res[1].Distance)
			assert.Less(t, res[1].Distance, res[2].Distance)

			res, err = db.Search(ctx, fill(128, 1.5), 2)
			require.NoError(t, err)
			assert.Equal(t, []string{"v1", "v2"}, keys(res))
		})
	}
}

func TestSearch_ReportsTrueEuclidean(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, 2)
	require.NoError(t, db.Insert(ctx, "a", []float32{3, 4}, ""))

	res, err := db.Search(ctx, []float32{0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.InDelta(t, 5.0, res[0].Distance, 1e-5)
}

func TestSearch_CosineParallelVectors(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, 3, vecsim.WithMetric(distance.Cosine))

	require.NoError(t, db.Insert(ctx, "v1", []float32{1, 2, 3}, ""))
	require.NoError(t, db.Insert(ctx, "v2", []float32{2, 4, 6}, ""))

	res, err := db.Search(ctx, []float32{1, 2, 3}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	for _, r := range res {
		assert.InDelta(t, 0, r.Distance, 1e-5, r.Key)
	}
}

func TestSearch_FewerRecordsThanK(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, 2)
	require.NoError(t, db.Insert(ctx, "a", []float32{1, 1}, ""))

	res, err := db.Search(ctx, []float32{0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, res, 1)

	empty := newDB(t, 2)
	res, err = empty.Search(ctx, []float32{0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestSearch_Validation(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, 3)

	_, err := db.Search(ctx, []float32{1, 2, 3}, 0)
	require.ErrorIs(t, err, vecsim.ErrInvalidK)

	_, err = db.Search(ctx, []float32{1, 2}, 1)
	var dm *vecsim.ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 3, dm.Expected)
	assert.Equal(t, 2, dm.Actual)
}

func TestSearch_WithMetadata(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, 2)
	require.NoError(t, db.Insert(ctx, "a", []float32{1, 1}, `{"tag":"x"}`))

	res, err := db.Search(ctx, []float32{1, 1}, 1)
	require.NoError(t, err)
	assert.Empty(t, res[0].Metadata)

	res, err = db.Search(ctx, []float32{1, 1}, 1, vecsim.WithMetadata(true))
	require.NoError(t, err)
	assert.Equal(t, `{"tag":"x"}`, res[0].Metadata)

	// Different flags are different cache entries.
	assert.Equal(t, int64(2), db.CacheStats().Misses)
}

func TestInsert_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, 2)

	require.NoError(t, db.Insert(ctx, "a", []float32{1, 0}, "m"))
	require.NoError(t, db.Insert(ctx, "b", []float32{0, 1}, ""))
	before, err := db.Search(ctx, []float32{1, 0.1}, 2)
	require.NoError(t, err)

	require.NoError(t, db.Insert(ctx, "a", []float32{1, 0}, "m"))
	assert.Equal(t, 2, db.Count())

	after, err := db.Search(ctx, []float32{1, 0.1}, 2)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestInsert_OverwriteUpdatesIndex(t *testing.T) {
	for _, algo := range []index.Algorithm{index.Exact, index.LSH, index.HNSW} {
		t.Run(algo.String(), func(t *testing.T) {
			ctx := context.Background()
			// Many one-bit tables make LSH see every record.
			tables, bits := 64, 1
			db := newDB(t, 2, vecsim.WithAlgorithm(algo, index.Overrides{NumTables: &tables, NumHashFunctions: &bits}))

			require.NoError(t, db.Insert(ctx, "a", []float32{1, 0}, ""))
			require.NoError(t, db.Insert(ctx, "b", []float32{0, 1}, ""))
			require.NoError(t, db.Insert(ctx, "a", []float32{0, 1.1}, "moved"))

			rec, err := db.Get("a")
			require.NoError(t, err)
			assert.Equal(t, []float32{0, 1.1}, rec.Vector)
			assert.Equal(t, "moved", rec.Metadata)

			res, err := db.Search(ctx, []float32{0, 1}, 2)
			require.NoError(t, err)
			require.Len(t, res, 2)
			assert.Equal(t, []string{"b", "a"}, keys(res))

			// Overwrite keeps the original listing position.
			page, err := db.List(1, 10)
			require.NoError(t, err)
			assert.Equal(t, "a", page.Records[0].Key)
		})
	}
}

func TestInsert_Errors(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, 3)

	err := db.Insert(ctx, "a", []float32{1, 2}, "")
	var dm *vecsim.ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 3, dm.Expected)
	assert.Equal(t, 2, dm.Actual)

	require.ErrorIs(t, db.Insert(ctx, "", []float32{1, 2, 3}, ""), vecsim.ErrEmptyKey)
	assert.Zero(t, db.Count())
}

func TestGetDelete(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, 2)

	_, err := db.Get("missing")
	require.ErrorIs(t, err, vecsim.ErrNotFound)
	require.ErrorIs(t, db.Delete(ctx, "missing"), vecsim.ErrNotFound)

	require.NoError(t, db.Insert(ctx, "a", []float32{1, 2}, "meta"))
	rec, err := db.Get("a")
	require.NoError(t, err)
	assert.Equal(t, vecsim.Record{Key: "a", Vector: []float32{1, 2}, Metadata: "meta"}, rec)

	// The returned vector is a copy.
	rec.Vector[0] = 42
	again, err := db.Get("a")
	require.NoError(t, err)
	assert.Equal(t, float32(1), again.Vector[0])

	require.NoError(t, db.Delete(ctx, "a"))
	_, err = db.Get("a")
	require.ErrorIs(t, err, vecsim.ErrNotFound)
	assert.Zero(t, db.Count())

	res, err := db.Search(ctx, []float32{1, 2}, 5)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestBatchInsert_PartialFailure(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, 3, vecsim.WithAlgorithm(index.HNSW, index.Overrides{}))

	require.Zero(t, db.Stats().IndexRebuilds)

	results, err := db.BatchInsert(ctx, []vecsim.Record{
		{Key: "a", Vector: []float32{1, 0, 0}},
		{Key: "bad", Vector: []float32{1, 0}},
		{Key: "c", Vector: []float32{0, 0, 1}, Metadata: "m"},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	var dm *vecsim.ErrDimensionMismatch
	assert.ErrorAs(t, results[1].Err, &dm)
	assert.Equal(t, "bad", results[1].Key)
	assert.NoError(t, results[2].Err)

	assert.Equal(t, 2, db.Count())
	assert.Equal(t, int64(1), db.Stats().IndexRebuilds)

	res, err := db.Search(ctx, []float32{0, 0, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, keys(res))
}

func TestBatchInsert_AllInvalid(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, 3)

	results, err := db.BatchInsert(ctx, []vecsim.Record{{Key: "", Vector: []float32{1, 2, 3}}})
	require.NoError(t, err)
	require.ErrorIs(t, results[0].Err, vecsim.ErrEmptyKey)
	assert.Zero(t, db.Stats().IndexRebuilds)

	_, err = db.BatchInsert(ctx, nil)
	require.ErrorIs(t, err, vecsim.ErrEmptyBatch)
}

func TestBatchInsert_Incremental(t *testing.T) {
	for _, algo := range []index.Algorithm{index.Exact, index.LSH, index.HNSW} {
		t.Run(algo.String(), func(t *testing.T) {
			ctx := context.Background()
			mc := &vecsim.BasicMetricsCollector{}
			db := newDB(t, 3, vecsim.WithAlgorithm(algo, index.Overrides{}), vecsim.WithMetricsCollector(mc))
			seeded(t, db, 100, 3)

			results, err := db.BatchInsert(ctx, []vecsim.Record{
				{Key: "new", Vector: []float32{40, 40, 40}},
				{Key: "k010", Vector: []float32{-40, -40, -40}, Metadata: "moved"},
				{Key: "new", Vector: []float32{50, 50, 50}, Metadata: "last"},
			})
			require.NoError(t, err)
			for _, r := range results {
				require.NoError(t, r.Err)
			}

			assert.Equal(t, 101, db.Count())
			assert.Equal(t, int64(1), db.Stats().IndexRebuilds)
			stats := mc.GetStats()
			assert.Equal(t, int64(1), stats.Rebuilds)
			assert.Equal(t, int64(2), stats.RebuiltRecords, "only the touched ids are indexed")

			res, err := db.Search(ctx, []float32{50, 50, 50}, 1, vecsim.WithMetadata(true))
			require.NoError(t, err)
			require.Len(t, res, 1)
			assert.Equal(t, "new", res[0].Key)
			assert.Equal(t, "last", res[0].Metadata)

			res, err = db.Search(ctx, []float32{-40, -40, -40}, 1)
			require.NoError(t, err)
			assert.Equal(t, []string{"k010"}, keys(res))

			if algo != index.LSH {
				res, err = db.Search(ctx, []float32{40, 40, 40}, 101)
				require.NoError(t, err)
				assert.Len(t, res, 101, "overwritten ids are indexed once")
			}
		})
	}
}

func TestBatchInsert_LargeBatchRebuilds(t *testing.T) {
	ctx := context.Background()
	mc := &vecsim.BasicMetricsCollector{}
	db := newDB(t, 2, vecsim.WithAlgorithm(index.HNSW, index.Overrides{}), vecsim.WithMetricsCollector(mc))
	seeded(t, db, 4, 2)

	items := make([]vecsim.Record, 6)
	for i := range items {
		items[i] = vecsim.Record{Key: fmt.Sprintf("b%d", i), Vector: []float32{float32(i), 1}}
	}
	_, err := db.BatchInsert(ctx, items)
	require.NoError(t, err)

	assert.Equal(t, int64(1), db.Stats().IndexRebuilds)
	assert.Equal(t, int64(10), mc.GetStats().RebuiltRecords)
}

func TestList_Pagination(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, 1)
	for i, k := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, db.Insert(ctx, k, []float32{float32(i)}, ""))
	}

	page, err := db.List(2, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Records, 2)
	assert.Equal(t, "c", page.Records[0].Key)
	assert.Equal(t, "d", page.Records[1].Key)

	page, err = db.List(4, 2)
	require.NoError(t, err)
	assert.Empty(t, page.Records)

	page, err = db.List(0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 100, page.PerPage)
	assert.Len(t, page.Records, 5)

	page, err = db.List(1, 5000)
	require.NoError(t, err)
	assert.Equal(t, 1000, page.PerPage)
}

func TestMemoryLimit(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, 4, vecsim.WithMemoryLimit(256), vecsim.WithCacheCapacity(0))

	var err error
	n := 0
	for ; n < 100; n++ {
		if err = db.Insert(ctx, fmt.Sprintf("k%02d", n), fill(4, float32(n)), ""); err != nil {
			break
		}
	}
	require.ErrorIs(t, err, vecsim.ErrCapacityExceeded)
	assert.Positive(t, n)
	assert.Equal(t, n, db.Count())

	// Freed memory can be reused.
	require.NoError(t, db.Delete(ctx, "k00"))
	require.NoError(t, db.Insert(ctx, "k00", fill(4, 0), ""))
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, 2, vecsim.WithMetric(distance.Manhattan), vecsim.WithSIMD(false))
	require.NoError(t, db.Insert(ctx, "a", []float32{1, 2}, ""))

	st := db.Stats()
	assert.Equal(t, 1, st.VectorCount)
	assert.Equal(t, 2, st.Dimension)
	assert.Equal(t, index.Exact, st.Algorithm)
	assert.Equal(t, distance.Manhattan, st.Metric)
	assert.False(t, st.SIMDEnabled)
	assert.NotEmpty(t, st.SIMDISA)
	assert.Equal(t, vecsim.DefaultCacheCapacity, st.Cache.Capacity)
	assert.Positive(t, st.MemoryUsed)
}

func TestMetricsCollector(t *testing.T) {
	ctx := context.Background()
	mc := &vecsim.BasicMetricsCollector{}
	db := newDB(t, 2, vecsim.WithMetricsCollector(mc))

	require.NoError(t, db.Insert(ctx, "a", []float32{1, 2}, ""))
	_, err := db.Search(ctx, []float32{1, 2}, 1)
	require.NoError(t, err)
	_, err = db.Search(ctx, []float32{1, 2}, 1)
	require.NoError(t, err)
	require.NoError(t, db.Delete(ctx, "a"))

	s := mc.GetStats()
	assert.Equal(t, int64(1), s.Insert.Count)
	assert.Equal(t, int64(2), s.Search.Count)
	assert.Equal(t, int64(1), s.Delete.Count)
	assert.Zero(t, s.Delete.Errors)
	assert.Equal(t, int64(1), s.CacheHits)
	assert.Equal(t, int64(1), s.CacheMisses)
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, 8, vecsim.WithAlgorithm(index.HNSW, index.Overrides{}))

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := range 50 {
				assert.NoError(t, db.Insert(ctx, fmt.Sprintf("w%d-%d", w, i), fill(8, float32(i)), ""))
			}
		}()
		go func() {
			defer wg.Done()
			for i := range 50 {
				_, err := db.Search(ctx, fill(8, float32(i%10)), 3)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, db.Count())
}
