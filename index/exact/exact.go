// Package exact implements a brute-force index that scans every vector.
package exact

import (
	"fmt"

	"github.com/hupe1980/vecsim/distance"
	"github.com/hupe1980/vecsim/index"
)

var _ index.Index = (*Exact)(nil)

// Exact stores vectors contiguously and scans them all on every query.
// Add and Remove are O(1); Remove moves the last vector into the hole.
type Exact struct {
	dim  int
	dist distance.Func
	ids  []uint32
	data []float32
	pos  map[uint32]int
}

// New creates an empty exact index.
func New(dim int, dist distance.Func) *Exact {
	return &Exact{
		dim:  dim,
		dist: dist,
		pos:  make(map[uint32]int),
	}
}

// Algorithm implements index.Index.
func (*Exact) Algorithm() index.Algorithm { return index.Exact }

// Params implements index.Index.
func (*Exact) Params() index.Params { return index.Params{} }

// Len implements index.Index.
func (e *Exact) Len() int { return len(e.ids) }

// Add implements index.Index.
func (e *Exact) Add(id uint32, vector []float32) error {
	if len(vector) != e.dim {
		return &index.ErrDimensionMismatch{Expected: e.dim, Actual: len(vector)}
	}
	if _, ok := e.pos[id]; ok {
		return fmt.Errorf("exact: %w: %d", index.ErrDuplicateID, id)
	}

	e.pos[id] = len(e.ids)
	e.ids = append(e.ids, id)
	e.data = append(e.data, vector...)
	return nil
}

// Remove implements index.Index.
func (e *Exact) Remove(id uint32) error {
	p, ok := e.pos[id]
	if !ok {
		return fmt.Errorf("exact: %w: %d", index.ErrUnknownID, id)
	}

	last := len(e.ids) - 1
	if p != last {
		moved := e.ids[last]
		e.ids[p] = moved
		copy(e.vector(p), e.vector(last))
		e.pos[moved] = p
	}
	e.ids = e.ids[:last]
	e.data = e.data[:last*e.dim]
	delete(e.pos, id)
	return nil
}

// Rebuild implements index.Index.
func (e *Exact) Rebuild(records []index.Entry) error {
	ids := make([]uint32, 0, len(records))
	data := make([]float32, 0, len(records)*e.dim)
	pos := make(map[uint32]int, len(records))

	for _, r := range records {
		if len(r.Vector) != e.dim {
			return &index.ErrDimensionMismatch{Expected: e.dim, Actual: len(r.Vector)}
		}
		if _, ok := pos[r.ID]; ok {
			return fmt.Errorf("exact: %w: %d", index.ErrDuplicateID, r.ID)
		}
		pos[r.ID] = len(ids)
		ids = append(ids, r.ID)
		data = append(data, r.Vector...)
	}

	e.ids, e.data, e.pos = ids, data, pos
	return nil
}

// Search implements index.Index.
func (e *Exact) Search(query []float32, k int) ([]index.Neighbor, error) {
	if err := index.ValidateQuery(query, k, e.dim); err != nil {
		return nil, err
	}

	top := index.NewTopK(min(k, len(e.ids)))
	for i, id := range e.ids {
		top.Push(id, e.dist(query, e.vector(i)))
	}
	return top.Results(), nil
}

func (e *Exact) vector(i int) []float32 {
	off := i * e.dim
	return e.data[off : off+e.dim : off+e.dim]
}
