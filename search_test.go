package vecsim_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecsim"
	"github.com/hupe1980/vecsim/index"
)

func TestCache_SecondSearchHits(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, 2)
	require.NoError(t, db.Insert(ctx, "a", []float32{1, 2}, ""))

	first, err := db.Search(ctx, []float32{1, 1}, 1)
	require.NoError(t, err)
	second, err := db.Search(ctx, []float32{1, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	cs := db.CacheStats()
	assert.Equal(t, int64(1), cs.Hits)
	assert.Equal(t, int64(1), cs.Misses)
	assert.Equal(t, 1, cs.CurrentSize)
	assert.InDelta(t, 0.5, cs.HitRate, 1e-9)

	// Callers own their copy of cached results.
	second[0].Key = "mutated"
	third, err := db.Search(ctx, []float32{1, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, "a", third[0].Key)
}

func TestCache_KeyedByExactQuery(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, 2)
	require.NoError(t, db.Insert(ctx, "left", []float32{0, 0}, ""))
	require.NoError(t, db.Insert(ctx, "right", []float32{1, 0}, ""))

	// Adjacent floats on either side of the midpoint.
	below := []float32{math.Nextafter32(0.5, 0), 0}
	above := []float32{math.Nextafter32(0.5, 1), 0}

	res, err := db.Search(ctx, below, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"left"}, keys(res))

	res, err = db.Search(ctx, above, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"right"}, keys(res))

	res, err = db.Search(ctx, below, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"left"}, keys(res))

	cs := db.CacheStats()
	assert.Equal(t, int64(1), cs.Hits)
	assert.Equal(t, int64(2), cs.Misses)
	assert.Equal(t, 2, cs.CurrentSize)
}

func TestCache_InvalidatedByMutation(t *testing.T) {
	ctx := context.Background()
	q := []float32{1, 1}

	mutations := map[string]func(db *vecsim.DB) error{
		"insert": func(db *vecsim.DB) error {
			return db.Insert(ctx, "b", []float32{0, 0}, "")
		},
		"overwrite": func(db *vecsim.DB) error {
			return db.Insert(ctx, "a", []float32{5, 5}, "")
		},
		"batch": func(db *vecsim.DB) error {
			_, err := db.BatchInsert(ctx, []vecsim.Record{{Key: "b", Vector: []float32{0, 0}}})
			return err
		},
		"delete": func(db *vecsim.DB) error {
			return db.Delete(ctx, "a")
		},
		"metric": func(db *vecsim.DB) error {
			return db.SetMetric(ctx, "cosine")
		},
		"algorithm": func(db *vecsim.DB) error {
			_, err := db.SetAlgorithm(ctx, "hnsw", index.Overrides{})
			return err
		},
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			db := newDB(t, 2)
			require.NoError(t, db.Insert(ctx, "a", []float32{1, 2}, ""))

			_, err := db.Search(ctx, q, 1)
			require.NoError(t, err)
			require.Equal(t, 1, db.CacheStats().CurrentSize)

			require.NoError(t, mutate(db))
			assert.Zero(t, db.CacheStats().CurrentSize)

			_, err = db.Search(ctx, q, 1)
			require.NoError(t, err)
			cs := db.CacheStats()
			assert.Equal(t, int64(2), cs.Misses)
			assert.Zero(t, cs.Hits)
		})
	}
}

func TestCache_FailedMutationKeepsEntries(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, 2)
	require.NoError(t, db.Insert(ctx, "a", []float32{1, 2}, ""))
	_, err := db.Search(ctx, []float32{1, 1}, 1)
	require.NoError(t, err)

	require.Error(t, db.Insert(ctx, "b", []float32{1}, ""))
	require.Error(t, db.Delete(ctx, "missing"))
	require.Error(t, db.SetMetric(ctx, "hamming"))

	assert.Equal(t, 1, db.CacheStats().CurrentSize)
}

func TestCache_LRUEviction(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, 1, vecsim.WithCacheCapacity(2))
	require.NoError(t, db.Insert(ctx, "a", []float32{0}, ""))

	search := func(v float32) {
		_, err := db.Search(ctx, []float32{v}, 1)
		require.NoError(t, err)
		assert.LessOrEqual(t, db.CacheStats().CurrentSize, 2)
	}

	search(1) // miss
	search(2) // miss
	search(1) // hit, 2 is now least recently used
	search(3) // miss, evicts 2
	search(1) // hit
	search(2) // miss

	cs := db.CacheStats()
	assert.Equal(t, int64(2), cs.Hits)
	assert.Equal(t, int64(4), cs.Misses)
	assert.Equal(t, 2, cs.CurrentSize)
	assert.Equal(t, 2, cs.Capacity)
}

func TestCache_Disabled(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, 1, vecsim.WithCacheCapacity(0))
	require.NoError(t, db.Insert(ctx, "a", []float32{0}, ""))

	for range 3 {
		_, err := db.Search(ctx, []float32{1}, 1)
		require.NoError(t, err)
	}
	cs := db.CacheStats()
	assert.Zero(t, cs.Hits)
	assert.Equal(t, int64(3), cs.Misses)
	assert.Zero(t, cs.CurrentSize)
}

func TestSearchBatch(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, 2)
	require.NoError(t, db.Insert(ctx, "x", []float32{1, 0}, ""))
	require.NoError(t, db.Insert(ctx, "y", []float32{0, 1}, ""))

	res, err := db.SearchBatch(ctx, [][]float32{{1, 0}, {0, 1}, {1, 0}}, 1)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, "x", res[0][0].Key)
	assert.Equal(t, "y", res[1][0].Key)
	assert.Equal(t, "x", res[2][0].Key)

	_, err = db.SearchBatch(ctx, [][]float32{{1, 0}, {1}}, 1)
	var dm *vecsim.ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Contains(t, err.Error(), "query 1")

	res, err = db.SearchBatch(ctx, nil, 1)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestSearch_CanceledContext(t *testing.T) {
	db := newDB(t, 1)
	require.NoError(t, db.Insert(context.Background(), "a", []float32{0}, ""))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := db.Search(ctx, []float32{1}, 1)
	require.ErrorIs(t, err, context.Canceled)
}
