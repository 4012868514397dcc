package index

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/vecsim/internal/queue"
)

var (
	// ErrInvalidK is returned when k < 1.
	ErrInvalidK = errors.New("k must be at least 1")
	// ErrUnknownAlgorithm is returned for an unrecognized algorithm name.
	ErrUnknownAlgorithm = errors.New("unknown algorithm")
	// ErrInvalidParameter is returned when a parameter is out of range.
	ErrInvalidParameter = errors.New("invalid index parameter")
	// ErrDuplicateID is returned when Add is called with an id already present.
	ErrDuplicateID = errors.New("id already indexed")
	// ErrUnknownID is returned when Remove is called with an id that is not indexed.
	ErrUnknownID = errors.New("id not indexed")
)

// ErrDimensionMismatch is returned when a vector has the wrong length.
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Algorithm identifies an index implementation.
type Algorithm int

const (
	// Exact is a linear scan over all vectors.
	Exact Algorithm = iota
	// LSH is random-hyperplane locality-sensitive hashing.
	LSH
	// HNSW is a hierarchical navigable small world graph.
	HNSW
)

var algorithmNames = [...]string{"exact", "lsh", "hnsw"}

// AvailableAlgorithms lists the names accepted by ParseAlgorithm.
func AvailableAlgorithms() []string {
	return append([]string(nil), algorithmNames[:]...)
}

func (a Algorithm) String() string {
	if !a.Valid() {
		return fmt.Sprintf("Algorithm(%d)", int(a))
	}
	return algorithmNames[a]
}

// Valid reports whether a names a known algorithm.
func (a Algorithm) Valid() bool {
	return a >= Exact && a <= HNSW
}

// ParseAlgorithm resolves a case-insensitive algorithm name.
func ParseAlgorithm(s string) (Algorithm, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range algorithmNames {
		if n == name {
			return Algorithm(i), nil
		}
	}
	return Exact, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
}

// MarshalText implements encoding.TextMarshaler.
func (a Algorithm) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAlgorithm, int(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Algorithm) UnmarshalText(text []byte) error {
	parsed, err := ParseAlgorithm(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Neighbor is one search hit.
type Neighbor struct {
	ID       uint32
	Distance float32
}

// Entry is an (id, vector) pair used to build an index.
type Entry struct {
	ID     uint32
	Vector []float32
}

// Index is the contract shared by all nearest-neighbor algorithms.
//
// Ids are assigned by the vector store in insertion order, so ordering
// equal distances by id yields insertion order. Implementations copy the
// vectors they are given. They are not synchronized; the DB holds its
// lock around every call.
type Index interface {
	// Search returns up to k neighbors ordered by (distance, id).
	Search(query []float32, k int) ([]Neighbor, error)
	// Add indexes a vector under id.
	Add(id uint32, vector []float32) error
	// Remove drops id from the index.
	Remove(id uint32) error
	// Rebuild discards all state and indexes records.
	Rebuild(records []Entry) error
	// Len returns the number of indexed vectors.
	Len() int
	// Algorithm identifies the implementation.
	Algorithm() Algorithm
	// Params returns the effective parameters.
	Params() Params
}

// Compactor is implemented by indexes with deferred cleanup.
type Compactor interface {
	// Compact reclaims deleted entries and reports whether work was done.
	Compact() (bool, error)
	// Tombstones returns the number of deleted entries awaiting cleanup.
	Tombstones() int
	// NeedsCompaction reports whether cleanup is due.
	NeedsCompaction() bool
}

// ValidateQuery checks k and the query length.
func ValidateQuery(query []float32, k, dim int) error {
	if k < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	if len(query) != dim {
		return &ErrDimensionMismatch{Expected: dim, Actual: len(query)}
	}
	return nil
}

// TopK keeps the k best candidates pushed into it.
type TopK struct {
	k  int
	pq *queue.PriorityQueue
}

// NewTopK creates a collector for k results.
func NewTopK(k int) *TopK {
	return &TopK{k: k, pq: queue.NewMax(max(k, 0) + 1)}
}

// Push offers a candidate.
func (t *TopK) Push(id uint32, dist float32) {
	if t.k <= 0 {
		return
	}
	t.pq.PushBounded(queue.Item{Node: id, Distance: dist}, t.k)
}

// Results drains the collector, best first.
func (t *TopK) Results() []Neighbor {
	items := t.pq.Sorted()
	out := make([]Neighbor, len(items))
	for i, it := range items {
		out[i] = Neighbor{ID: it.Node, Distance: it.Distance}
	}
	return out
}

// SortNeighbors orders neighbors by (distance, id).
func SortNeighbors(ns []Neighbor) {
	sort.Slice(ns, func(i, j int) bool {
		if ns[i].Distance != ns[j].Distance {
			return ns[i].Distance < ns[j].Distance
		}
		return ns[i].ID < ns[j].ID
	})
}
