package hnsw

import (
	"fmt"
	"slices"

	"github.com/hupe1980/vecsim/index"
)

// Remove implements index.Index by tombstoning the node.
func (h *HNSW) Remove(id uint32) error {
	slot, ok := h.slots[id]
	if !ok {
		return fmt.Errorf("hnsw: %w: %d", index.ErrUnknownID, id)
	}
	h.dead.Add(slot)
	delete(h.slots, id)
	return nil
}

// Compact implements index.Compactor. It rebuilds the graph from the live
// nodes in id order and reports false if there were no tombstones.
func (h *HNSW) Compact() (bool, error) {
	if h.dead.IsEmpty() {
		return false, nil
	}

	ids := make([]uint32, 0, len(h.slots))
	for id := range h.slots {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	records := make([]index.Entry, len(ids))
	for i, id := range ids {
		// Copied because reset drops the slab they point into.
		records[i] = index.Entry{ID: id, Vector: slices.Clone(h.vector(h.slots[id]))}
	}

	if err := h.Rebuild(records); err != nil {
		return false, err
	}
	return true, nil
}

// Rebuild implements index.Index. Level assignment restarts from the
// seed, so the same records yield the same graph.
func (h *HNSW) Rebuild(records []index.Entry) error {
	seen := make(map[uint32]struct{}, len(records))
	for _, r := range records {
		if len(r.Vector) != h.dim {
			return &index.ErrDimensionMismatch{Expected: h.dim, Actual: len(r.Vector)}
		}
		if _, ok := seen[r.ID]; ok {
			return fmt.Errorf("hnsw: %w: %d", index.ErrDuplicateID, r.ID)
		}
		seen[r.ID] = struct{}{}
	}

	h.reset(len(records))
	for _, r := range records {
		h.insert(r.ID, r.Vector)
	}
	return nil
}
