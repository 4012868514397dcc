package hnsw

import (
	"sort"
	"sync"

	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/vecsim/internal/queue"
)

var visitedPool = sync.Pool{
	New: func() any { return bitset.New(1024) },
}

// greedy walks layer l towards q until no neighbor is closer.
func (h *HNSW) greedy(q []float32, ep queue.Item, l int) queue.Item {
	changed := true
	for changed {
		changed = false
		n := &h.nodes[ep.Node]
		if l >= len(n.links) {
			return ep
		}
		for _, next := range n.links[l] {
			d := h.dist(q, h.vector(next))
			if d < ep.Distance {
				ep = queue.Item{Node: next, Distance: d}
				changed = true
			}
		}
	}
	return ep
}

// searchLayer runs a beam search of width ef on layer l starting at ep
// and returns the visited candidates nearest first.
func (h *HNSW) searchLayer(q []float32, ep queue.Item, ef int, l int) []queue.Item {
	visited := visitedPool.Get().(*bitset.BitSet)
	defer func() {
		visited.ClearAll()
		visitedPool.Put(visited)
	}()

	visited.Set(uint(ep.Node))

	candidates := queue.NewMin(ef)
	candidates.Push(ep)

	top := queue.NewMax(ef + 1)
	top.Push(ep)

	for candidates.Len() > 0 {
		c, _ := candidates.Pop()
		worst, _ := top.Top()
		if c.Distance > worst.Distance {
			break
		}

		n := &h.nodes[c.Node]
		if l >= len(n.links) {
			continue
		}

		for _, next := range n.links[l] {
			if visited.Test(uint(next)) {
				continue
			}
			visited.Set(uint(next))

			item := queue.Item{Node: next, Distance: h.dist(q, h.vector(next))}
			if top.PushBounded(item, ef) {
				candidates.Push(item)
			}
		}
	}

	return top.Sorted()
}

// selectNeighbors applies the HNSW heuristic to candidates sorted nearest
// first: a candidate is kept only if it is closer to the base than to
// every neighbor already kept. Pruned candidates fill any remaining room.
func (h *HNSW) selectNeighbors(cands []queue.Item, m int) []queue.Item {
	if len(cands) <= m {
		return cands
	}

	kept := make([]queue.Item, 0, m)
	pruned := make([]queue.Item, 0, len(cands))

	for _, c := range cands {
		if len(kept) >= m {
			break
		}
		good := true
		for _, s := range kept {
			if h.dist(h.vector(s.Node), h.vector(c.Node)) < c.Distance {
				good = false
				break
			}
		}
		if good {
			kept = append(kept, c)
		} else {
			pruned = append(pruned, c)
		}
	}

	for _, c := range pruned {
		if len(kept) >= m {
			break
		}
		kept = append(kept, c)
	}
	return kept
}

// link adds an edge from -> to on layer l, pruning from's list back to
// the layer's maximum, nearest first.
func (h *HNSW) link(from, to uint32, l int) {
	maxLinks := h.mmax
	if l == 0 {
		maxLinks = h.mmax0
	}

	n := &h.nodes[from]
	n.links[l] = append(n.links[l], to)
	if len(n.links[l]) <= maxLinks {
		return
	}

	base := h.vector(from)
	cands := make([]queue.Item, len(n.links[l]))
	for i, id := range n.links[l] {
		cands[i] = queue.Item{Node: id, Distance: h.dist(base, h.vector(id))}
	}
	sort.Slice(cands, func(i, j int) bool { return queue.Before(cands[i], cands[j]) })

	selected := h.selectNeighbors(cands, maxLinks)
	links := n.links[l][:0]
	for _, c := range selected {
		links = append(links, c.Node)
	}
	n.links[l] = links
}
