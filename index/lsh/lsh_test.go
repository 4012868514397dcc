package lsh

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecsim/distance"
	"github.com/hupe1980/vecsim/index"
	"github.com/hupe1980/vecsim/index/exact"
)

func randomVectors(rng *rand.Rand, n, dim int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		out[i] = v
	}
	return out
}

func newLSH(t *testing.T, dim int, p index.Params, seed uint64) *LSH {
	t.Helper()
	l, err := New(dim, distance.EuclideanSIMD, p, func(o *Options) { o.Seed = seed })
	require.NoError(t, err)
	return l
}

func TestNew_InvalidParams(t *testing.T) {
	_, err := New(4, distance.EuclideanSIMD, index.Params{NumTables: 0, NumHashFunctions: 8})
	assert.ErrorIs(t, err, index.ErrInvalidParameter)

	_, err = New(4, distance.EuclideanSIMD, index.Params{NumTables: 2, NumHashFunctions: 65})
	assert.ErrorIs(t, err, index.ErrInvalidParameter)
}

func TestExactVectorAlwaysFound(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	vecs := randomVectors(rng, 200, 16)

	l := newLSH(t, 16, index.DefaultParams(index.LSH), 1)
	for i, v := range vecs {
		require.NoError(t, l.Add(uint32(i), v))
	}

	// A stored vector always shares every bucket with itself.
	for _, i := range []int{0, 57, 199} {
		res, err := l.Search(vecs[i], 1)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, uint32(i), res[0].ID)
		assert.Zero(t, res[0].Distance)
	}
}

func TestSingleHashFunctionCoversEverything(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	vecs := randomVectors(rng, 100, 8)

	// With many one-bit tables, every vector shares some bucket with
	// the query, so results equal the exact scan.
	l := newLSH(t, 8, index.Params{NumTables: 64, NumHashFunctions: 1}, 9)
	e := exact.New(8, distance.EuclideanSIMD)
	for i, v := range vecs {
		require.NoError(t, l.Add(uint32(i), v))
		require.NoError(t, e.Add(uint32(i), v))
	}

	q := randomVectors(rng, 1, 8)[0]
	got, err := l.Search(q, 5)
	require.NoError(t, err)
	want, err := e.Search(q, 5)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRemove(t *testing.T) {
	l := newLSH(t, 2, index.Params{NumTables: 3, NumHashFunctions: 4}, 1)
	require.NoError(t, l.Add(1, []float32{1, 1}))
	require.NoError(t, l.Add(2, []float32{1, 1}))

	require.NoError(t, l.Remove(1))
	assert.ErrorIs(t, l.Remove(1), index.ErrUnknownID)
	assert.Equal(t, 1, l.Len())

	res, err := l.Search([]float32{1, 1}, 5)
	require.NoError(t, err)
	assert.Equal(t, []index.Neighbor{{2, 0}}, res)

	require.NoError(t, l.Remove(2))
	for _, n := range l.Buckets() {
		assert.Zero(t, n, "empty buckets are dropped")
	}
}

func TestAdd_Errors(t *testing.T) {
	l := newLSH(t, 2, index.DefaultParams(index.LSH), 1)
	require.NoError(t, l.Add(1, []float32{1, 1}))
	assert.ErrorIs(t, l.Add(1, []float32{2, 2}), index.ErrDuplicateID)

	var dm *index.ErrDimensionMismatch
	assert.ErrorAs(t, l.Add(2, []float32{1}), &dm)
}

func TestSearch_Validation(t *testing.T) {
	l := newLSH(t, 2, index.DefaultParams(index.LSH), 1)
	_, err := l.Search([]float32{1, 1}, 0)
	assert.ErrorIs(t, err, index.ErrInvalidK)

	res, err := l.Search([]float32{1, 1}, 3)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestRebuildMatchesIncremental(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	vecs := randomVectors(rng, 300, 12)
	p := index.Params{NumTables: 6, NumHashFunctions: 6}

	inc := newLSH(t, 12, p, 77)
	entries := make([]index.Entry, len(vecs))
	for i, v := range vecs {
		require.NoError(t, inc.Add(uint32(i), v))
		entries[i] = index.Entry{ID: uint32(i), Vector: v}
	}

	reb := newLSH(t, 12, p, 77)
	require.NoError(t, reb.Add(999, vecs[0]))
	require.NoError(t, reb.Rebuild(entries))
	assert.Equal(t, 300, reb.Len())
	assert.Equal(t, inc.Buckets(), reb.Buckets())

	for _, q := range randomVectors(rng, 5, 12) {
		a, err := inc.Search(q, 10)
		require.NoError(t, err)
		b, err := reb.Search(q, 10)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}

	// Ids from rebuilt entries can be removed individually.
	require.NoError(t, reb.Remove(10))
	assert.ErrorIs(t, reb.Remove(999), index.ErrUnknownID)
}

func TestSeedReproducible(t *testing.T) {
	a := newLSH(t, 4, index.DefaultParams(index.LSH), 42)
	b := newLSH(t, 4, index.DefaultParams(index.LSH), 42)
	c := newLSH(t, 4, index.DefaultParams(index.LSH), 43)

	assert.Equal(t, a.tables[0].planes, b.tables[0].planes)
	assert.NotEqual(t, a.tables[0].planes, c.tables[0].planes)
	assert.Equal(t, uint64(42), a.Seed())
	assert.Equal(t, index.Params{NumTables: 10, NumHashFunctions: 8}, a.Params())
}

func TestRecallAgainstExact(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	const dim, n = 16, 1000
	vecs := randomVectors(rng, n, dim)

	l := newLSH(t, dim, index.Params{NumTables: 20, NumHashFunctions: 4}, 3)
	e := exact.New(dim, distance.EuclideanSIMD)
	for i, v := range vecs {
		require.NoError(t, l.Add(uint32(i), v))
		require.NoError(t, e.Add(uint32(i), v))
	}

	hits, total := 0, 0
	for i := range 20 {
		q := vecs[i*37]
		want, _ := e.Search(q, 10)
		got, _ := l.Search(q, 10)
		found := make(map[uint32]bool, len(got))
		for _, r := range got {
			found[r.ID] = true
		}
		for _, r := range want {
			total++
			if found[r.ID] {
				hits++
			}
		}
	}
	assert.Greater(t, float64(hits)/float64(total), 0.5)
}
