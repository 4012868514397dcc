// Package lsh implements random hyperplane locality-sensitive hashing.
//
// Each of the NumTables tables owns NumHashFunctions Gaussian hyperplanes
// with Gaussian offsets. A vector's bucket key in a table is the bit
// string sign(dot(w, v) + b) over those hyperplanes. Buckets are roaring
// bitmaps of ids. A query unions its buckets across all tables and ranks
// only those candidates, so neighbors that never share a bucket with the
// query are missed.
package lsh

import (
	"fmt"
	"math/rand/v2"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecsim/distance"
	"github.com/hupe1980/vecsim/index"
	"github.com/hupe1980/vecsim/internal/simd"
)

var _ index.Index = (*LSH)(nil)

// DefaultSeed seeds the hyperplanes unless WithSeed is given.
const DefaultSeed uint64 = 0x5eed

// Options configures an LSH index.
type Options struct {
	// Seed makes hyperplanes reproducible across restarts.
	Seed uint64
}

type table struct {
	planes  []float32 // numHash × dim, row-major
	biases  []float32
	buckets map[uint64]*roaring.Bitmap
}

// LSH is a multi-table hyperplane hash index.
type LSH struct {
	dim     int
	dist    distance.Func
	params  index.Params
	seed    uint64
	tables  []table
	vectors map[uint32][]float32
	keys    map[uint32][]uint64 // bucket key per table, for removal
}

// New creates an empty index. params must carry valid LSH parameters.
func New(dim int, dist distance.Func, params index.Params, optFns ...func(o *Options)) (*LSH, error) {
	if err := params.Validate(index.LSH); err != nil {
		return nil, err
	}

	opts := Options{Seed: DefaultSeed}
	for _, fn := range optFns {
		fn(&opts)
	}

	l := &LSH{
		dim:    dim,
		dist:   dist,
		params: index.Params{NumTables: params.NumTables, NumHashFunctions: params.NumHashFunctions},
		seed:   opts.Seed,
	}
	l.tables = newTables(dim, l.params, opts.Seed)
	l.reset(0)
	return l, nil
}

func newTables(dim int, p index.Params, seed uint64) []table {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	tables := make([]table, p.NumTables)
	for t := range tables {
		planes := make([]float32, p.NumHashFunctions*dim)
		for i := range planes {
			planes[i] = float32(rng.NormFloat64())
		}
		biases := make([]float32, p.NumHashFunctions)
		for i := range biases {
			biases[i] = float32(rng.NormFloat64())
		}
		tables[t] = table{planes: planes, biases: biases}
	}
	return tables
}

func (l *LSH) reset(sizeHint int) {
	for t := range l.tables {
		l.tables[t].buckets = make(map[uint64]*roaring.Bitmap)
	}
	l.vectors = make(map[uint32][]float32, sizeHint)
	l.keys = make(map[uint32][]uint64, sizeHint)
}

// Algorithm implements index.Index.
func (*LSH) Algorithm() index.Algorithm { return index.LSH }

// Params implements index.Index.
func (l *LSH) Params() index.Params { return l.params }

// Seed returns the hyperplane seed.
func (l *LSH) Seed() uint64 { return l.seed }

// Len implements index.Index.
func (l *LSH) Len() int { return len(l.vectors) }

// Buckets returns the number of non-empty buckets per table.
func (l *LSH) Buckets() []int {
	out := make([]int, len(l.tables))
	for t := range l.tables {
		out[t] = len(l.tables[t].buckets)
	}
	return out
}

func (tb *table) hash(v []float32, dim int) uint64 {
	var key uint64
	for j := range tb.biases {
		w := tb.planes[j*dim : (j+1)*dim]
		key <<= 1
		if simd.Dot(w, v)+tb.biases[j] > 0 {
			key |= 1
		}
	}
	return key
}

func (tb *table) insert(key uint64, id uint32) {
	bm, ok := tb.buckets[key]
	if !ok {
		bm = roaring.New()
		tb.buckets[key] = bm
	}
	bm.Add(id)
}

// Add implements index.Index.
func (l *LSH) Add(id uint32, vector []float32) error {
	if len(vector) != l.dim {
		return &index.ErrDimensionMismatch{Expected: l.dim, Actual: len(vector)}
	}
	if _, ok := l.vectors[id]; ok {
		return fmt.Errorf("lsh: %w: %d", index.ErrDuplicateID, id)
	}

	v := append([]float32(nil), vector...)
	keys := make([]uint64, len(l.tables))
	for t := range l.tables {
		keys[t] = l.tables[t].hash(v, l.dim)
		l.tables[t].insert(keys[t], id)
	}
	l.vectors[id] = v
	l.keys[id] = keys
	return nil
}

// Remove implements index.Index.
func (l *LSH) Remove(id uint32) error {
	keys, ok := l.keys[id]
	if !ok {
		return fmt.Errorf("lsh: %w: %d", index.ErrUnknownID, id)
	}

	for t, key := range keys {
		tb := &l.tables[t]
		if bm, ok := tb.buckets[key]; ok {
			bm.Remove(id)
			if bm.IsEmpty() {
				delete(tb.buckets, key)
			}
		}
	}
	delete(l.vectors, id)
	delete(l.keys, id)
	return nil
}

// Rebuild implements index.Index. Tables are hashed in parallel.
func (l *LSH) Rebuild(records []index.Entry) error {
	seen := make(map[uint32]struct{}, len(records))
	for _, r := range records {
		if len(r.Vector) != l.dim {
			return &index.ErrDimensionMismatch{Expected: l.dim, Actual: len(r.Vector)}
		}
		if _, ok := seen[r.ID]; ok {
			return fmt.Errorf("lsh: %w: %d", index.ErrDuplicateID, r.ID)
		}
		seen[r.ID] = struct{}{}
	}

	l.reset(len(records))
	keys := make([][]uint64, len(records))
	for i, r := range records {
		l.vectors[r.ID] = append([]float32(nil), r.Vector...)
		keys[i] = make([]uint64, len(l.tables))
	}

	var g errgroup.Group
	for t := range l.tables {
		g.Go(func() error {
			tb := &l.tables[t]
			for i, r := range records {
				key := tb.hash(r.Vector, l.dim)
				keys[i][t] = key
				tb.insert(key, r.ID)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, r := range records {
		l.keys[r.ID] = keys[i]
	}
	return nil
}

// Candidates returns the union of the query's buckets across all tables.
func (l *LSH) Candidates(query []float32) *roaring.Bitmap {
	hits := make([]*roaring.Bitmap, 0, len(l.tables))
	for t := range l.tables {
		if bm, ok := l.tables[t].buckets[l.tables[t].hash(query, l.dim)]; ok {
			hits = append(hits, bm)
		}
	}
	if len(hits) == 0 {
		return roaring.New()
	}
	return roaring.FastOr(hits...)
}

// Search implements index.Index.
func (l *LSH) Search(query []float32, k int) ([]index.Neighbor, error) {
	if err := index.ValidateQuery(query, k, l.dim); err != nil {
		return nil, err
	}

	cands := l.Candidates(query)
	top := index.NewTopK(min(k, int(cands.GetCardinality())))

	it := cands.Iterator()
	for it.HasNext() {
		id := it.Next()
		top.Push(id, l.dist(query, l.vectors[id]))
	}
	return top.Results(), nil
}
