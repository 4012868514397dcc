// Package hnsw implements a Hierarchical Navigable Small World graph.
//
// Nodes live in an arena addressed by uint32 slot numbers; neighbor lists
// store slots, never pointers. Each node keeps at most M links per layer
// and 2M on layer 0.
//
// Removal is lazy. A removed node is tombstoned: it still routes searches
// through the graph but is never returned. Once tombstones exceed
// RebuildThreshold of all nodes, NeedsCompaction reports true and Compact
// rebuilds the graph from the live nodes. Until then only graph quality
// degrades; returned ids are always live.
package hnsw

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/vecsim/distance"
	"github.com/hupe1980/vecsim/index"
	"github.com/hupe1980/vecsim/internal/queue"
)

var (
	_ index.Index     = (*HNSW)(nil)
	_ index.Compactor = (*HNSW)(nil)
)

// DefaultSeed seeds level generation unless overridden.
const DefaultSeed uint64 = 0x4e5357

// Options represents the options for configuring HNSW.
type Options struct {
	// Seed makes level assignment, and therefore the graph, reproducible.
	Seed uint64

	// RebuildThreshold is the tombstone fraction above which
	// NeedsCompaction reports true.
	RebuildThreshold float64
}

// DefaultOptions are used when no option function changes them.
var DefaultOptions = Options{
	Seed:             DefaultSeed,
	RebuildThreshold: index.DefaultRebuildThreshold,
}

type node struct {
	id    uint32     // external id
	level int        // highest layer the node lives on
	links [][]uint32 // per layer, slots
}

// HNSW represents the Hierarchical Navigable Small World graph.
type HNSW struct {
	dim    int
	dist   distance.Func
	params index.Params
	opts   Options

	mmax  int     // max links per node on layers above 0
	mmax0 int     // max links on layer 0
	ml    float64 // level normalization factor
	rng   *rand.Rand

	nodes   []node
	vectors []float32 // slot-major slab
	slots   map[uint32]uint32
	dead    *roaring.Bitmap // tombstoned slots

	entry    uint32
	maxLevel int
}

// New creates an empty graph. params must carry valid HNSW parameters.
func New(dim int, dist distance.Func, params index.Params, optFns ...func(o *Options)) (*HNSW, error) {
	if err := params.Validate(index.HNSW); err != nil {
		return nil, err
	}

	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.RebuildThreshold <= 0 || opts.RebuildThreshold > 1 {
		return nil, fmt.Errorf("hnsw: rebuild threshold must be in (0, 1], got %v", opts.RebuildThreshold)
	}

	// M == 1 would divide by zero in 1/ln(M).
	mForLevels := max(params.M, 2)

	h := &HNSW{
		dim:    dim,
		dist:   dist,
		params: index.Params{M: params.M, EfConstruction: params.EfConstruction, EfSearch: params.EfSearch},
		opts:   opts,
		mmax:   params.M,
		mmax0:  2 * params.M,
		ml:     1 / math.Log(float64(mForLevels)),
	}
	h.reset(0)
	return h, nil
}

func (h *HNSW) reset(sizeHint int) {
	h.rng = rand.New(rand.NewPCG(h.opts.Seed, h.opts.Seed^0xda3e39cb94b95bdb))
	h.nodes = make([]node, 0, sizeHint)
	h.vectors = make([]float32, 0, sizeHint*h.dim)
	h.slots = make(map[uint32]uint32, sizeHint)
	h.dead = roaring.New()
	h.entry = 0
	h.maxLevel = -1
}

// Algorithm implements index.Index.
func (*HNSW) Algorithm() index.Algorithm { return index.HNSW }

// Params implements index.Index.
func (h *HNSW) Params() index.Params { return h.params }

// Len implements index.Index. Tombstoned nodes are not counted.
func (h *HNSW) Len() int { return len(h.slots) }

// Tombstones implements index.Compactor.
func (h *HNSW) Tombstones() int { return int(h.dead.GetCardinality()) }

// NeedsCompaction reports whether tombstones exceed the rebuild threshold.
func (h *HNSW) NeedsCompaction() bool {
	if len(h.nodes) == 0 {
		return false
	}
	return float64(h.Tombstones()) > h.opts.RebuildThreshold*float64(len(h.nodes))
}

func (h *HNSW) vector(slot uint32) []float32 {
	off := int(slot) * h.dim
	return h.vectors[off : off+h.dim : off+h.dim]
}

func (h *HNSW) randomLevel() int {
	// 1 - Float64() lies in (0, 1], so the log is finite.
	return int(math.Floor(-math.Log(1-h.rng.Float64()) * h.ml))
}

// Add implements index.Index.
func (h *HNSW) Add(id uint32, vector []float32) error {
	if len(vector) != h.dim {
		return &index.ErrDimensionMismatch{Expected: h.dim, Actual: len(vector)}
	}
	if _, ok := h.slots[id]; ok {
		return fmt.Errorf("hnsw: %w: %d", index.ErrDuplicateID, id)
	}
	h.insert(id, vector)
	return nil
}

func (h *HNSW) insert(id uint32, vector []float32) {
	slot := uint32(len(h.nodes))
	level := h.randomLevel()

	h.vectors = append(h.vectors, vector...)
	h.nodes = append(h.nodes, node{id: id, level: level, links: make([][]uint32, level+1)})
	h.slots[id] = slot

	if h.maxLevel < 0 {
		h.entry = slot
		h.maxLevel = level
		return
	}

	v := h.vector(slot)

	// Greedy descent through the layers above the new node.
	ep := queue.Item{Node: h.entry, Distance: h.dist(v, h.vector(h.entry))}
	for l := h.maxLevel; l > level; l-- {
		ep = h.greedy(v, ep, l)
	}

	for l := min(level, h.maxLevel); l >= 0; l-- {
		cands := h.searchLayer(v, ep, h.params.EfConstruction, l)
		ep = cands[0]

		live := cands[:0:0]
		for _, c := range cands {
			if !h.dead.Contains(c.Node) {
				live = append(live, c)
			}
		}
		if len(live) == 0 {
			live = cands
		}

		neighbors := h.selectNeighbors(live, h.mmax)
		links := make([]uint32, len(neighbors))
		for i, n := range neighbors {
			links[i] = n.Node
		}
		h.nodes[slot].links[l] = links

		for _, n := range links {
			h.link(n, slot, l)
		}
	}

	if level > h.maxLevel {
		h.entry = slot
		h.maxLevel = level
	}
}

// Search implements index.Index.
func (h *HNSW) Search(query []float32, k int) ([]index.Neighbor, error) {
	if err := index.ValidateQuery(query, k, h.dim); err != nil {
		return nil, err
	}

	ef := max(h.params.EfSearch, k)

	// Small graphs are scanned exactly.
	if len(h.slots) <= ef {
		return h.scan(query, k), nil
	}

	ep := queue.Item{Node: h.entry, Distance: h.dist(query, h.vector(h.entry))}
	for l := h.maxLevel; l > 0; l-- {
		ep = h.greedy(query, ep, l)
	}

	// Widen the beam so tombstones do not crowd out live results.
	ef += min(h.Tombstones(), ef)

	top := index.NewTopK(k)
	for _, c := range h.searchLayer(query, ep, ef, 0) {
		if h.dead.Contains(c.Node) {
			continue
		}
		top.Push(h.nodes[c.Node].id, c.Distance)
	}
	return top.Results(), nil
}

func (h *HNSW) scan(query []float32, k int) []index.Neighbor {
	top := index.NewTopK(min(k, len(h.slots)))
	for slot := range h.nodes {
		if h.dead.Contains(uint32(slot)) {
			continue
		}
		top.Push(h.nodes[slot].id, h.dist(query, h.vector(uint32(slot))))
	}
	return top.Results()
}
