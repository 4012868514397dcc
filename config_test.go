package vecsim_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecsim"
	"github.com/hupe1980/vecsim/distance"
	"github.com/hupe1980/vecsim/index"
)

func seeded(t *testing.T, db *vecsim.DB, n, dim int) {
	t.Helper()
	ctx := context.Background()
	for i := range n {
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32((i*7+j*3)%11) - 5
		}
		require.NoError(t, db.Insert(ctx, fmt.Sprintf("k%03d", i), v, ""))
	}
}

func TestSetAlgorithm(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, 4)
	seeded(t, db, 30, 4)

	m := 8
	params, err := db.SetAlgorithm(ctx, "HNSW", index.Overrides{M: &m})
	require.NoError(t, err)
	assert.Equal(t, index.Params{M: 8, EfConstruction: index.DefaultEfConstruction, EfSearch: index.DefaultEfSearch}, params)

	algo, got := db.Algorithm()
	assert.Equal(t, index.HNSW, algo)
	assert.Equal(t, params, got)
	assert.Equal(t, int64(1), db.Stats().IndexRebuilds)

	res, err := db.Search(ctx, []float32{0, 0, 0, 0}, 5)
	require.NoError(t, err)
	assert.Len(t, res, 5)

	params, err = db.SetAlgorithm(ctx, "lsh", index.Overrides{})
	require.NoError(t, err)
	assert.Equal(t, index.DefaultParams(index.LSH), params)
	assert.Equal(t, int64(2), db.Stats().IndexRebuilds)
}

func TestSetAlgorithm_InvalidLeavesIndexIntact(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, 4, vecsim.WithAlgorithm(index.HNSW, index.Overrides{}))
	seeded(t, db, 10, 4)
	before := db.Stats().IndexRebuilds

	for _, name := range []string{"", "annoy", "hnsw2"} {
		_, err := db.SetAlgorithm(ctx, name, index.Overrides{})
		var ic *vecsim.ErrInvalidConfiguration
		require.ErrorAs(t, err, &ic, name)
		assert.Equal(t, "algorithm", ic.Field)
		assert.Equal(t, index.AvailableAlgorithms(), ic.Available)
	}

	zero := 0
	_, err := db.SetAlgorithm(ctx, "lsh", index.Overrides{NumTables: &zero})
	var ic *vecsim.ErrInvalidConfiguration
	require.ErrorAs(t, err, &ic)
	assert.Equal(t, "num_tables", ic.Field)

	algo, params := db.Algorithm()
	assert.Equal(t, index.HNSW, algo)
	assert.Equal(t, index.DefaultParams(index.HNSW), params)
	assert.Equal(t, before, db.Stats().IndexRebuilds)

	res, err := db.Search(ctx, []float32{0, 0, 0, 0}, 3)
	require.NoError(t, err)
	assert.Len(t, res, 3)
}

func TestSetAlgorithm_ConcurrentMutations(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, 4)
	seeded(t, db, 50, 4)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 50 {
			assert.NoError(t, db.Insert(ctx, fmt.Sprintf("extra%02d", i), []float32{1, 2, 3, float32(i)}, ""))
		}
	}()

	for _, name := range []string{"hnsw", "lsh", "exact", "hnsw"} {
		_, err := db.SetAlgorithm(ctx, name, index.Overrides{})
		require.NoError(t, err)
	}
	<-done

	// Whatever interleaving happened, the index must cover every record.
	_, err := db.SetAlgorithm(ctx, "exact", index.Overrides{})
	require.NoError(t, err)
	res, err := db.Search(ctx, []float32{1, 2, 3, 49}, 1)
	require.NoError(t, err)
	assert.Equal(t, "extra49", res[0].Key)
	assert.Equal(t, 100, db.Count())
}

func TestSetMetric(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, 2)
	require.NoError(t, db.Insert(ctx, "a", []float32{3, 0}, ""))
	require.NoError(t, db.Insert(ctx, "b", []float32{1, 1}, ""))

	res, err := db.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, keys(res))

	require.NoError(t, db.SetMetric(ctx, "Cosine"))
	assert.Equal(t, distance.Cosine, db.Metric())
	assert.Equal(t, int64(1), db.Stats().IndexRebuilds)

	res, err = db.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys(res))

	// Same metric is a no-op.
	require.NoError(t, db.SetMetric(ctx, "cosine"))
	assert.Equal(t, int64(1), db.Stats().IndexRebuilds)
}

func TestSetMetric_Invalid(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, 2)

	err := db.SetMetric(ctx, "hamming")
	var ic *vecsim.ErrInvalidConfiguration
	require.ErrorAs(t, err, &ic)
	assert.Equal(t, "metric", ic.Field)
	assert.Equal(t, "hamming", ic.Value)
	assert.Equal(t, distance.AvailableMetrics(), ic.Available)
	assert.Equal(t, distance.Euclidean, db.Metric())
}

func TestSetSIMD_KeepsCache(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, 16)
	seeded(t, db, 20, 16)
	q := make([]float32, 16)

	want, err := db.Search(ctx, q, 5)
	require.NoError(t, err)

	db.SetSIMD(false)
	assert.False(t, db.SIMDEnabled())
	assert.Equal(t, 1, db.CacheStats().CurrentSize)

	got, err := db.Search(ctx, q, 5)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, int64(1), db.CacheStats().Hits)
	assert.Zero(t, db.Stats().IndexRebuilds)

	db.SetSIMD(true)
	assert.True(t, db.SIMDEnabled())
	assert.NotEmpty(t, db.SIMDISA())
}

func TestSIMDAndScalarAgree(t *testing.T) {
	ctx := context.Background()
	for _, m := range []distance.Metric{distance.Euclidean, distance.Manhattan, distance.Cosine} {
		t.Run(m.String(), func(t *testing.T) {
			db := newDB(t, 37, vecsim.WithMetric(m), vecsim.WithCacheCapacity(0))
			seeded(t, db, 25, 37)
			q := make([]float32, 37)
			for i := range q {
				q[i] = float32(i%5) - 2
			}

			vec, err := db.Search(ctx, q, 25)
			require.NoError(t, err)
			db.SetSIMD(false)
			scalar, err := db.Search(ctx, q, 25)
			require.NoError(t, err)

			require.Len(t, scalar, len(vec))
			byKey := make(map[string]float32, len(vec))
			for _, r := range vec {
				byKey[r.Key] = r.Distance
			}
			for _, r := range scalar {
				assert.InDelta(t, r.Distance, byKey[r.Key], 1e-3*max(1, float64(r.Distance)), r.Key)
			}
		})
	}
}
