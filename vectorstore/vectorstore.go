// Package vectorstore holds the authoritative key to (vector, metadata)
// mapping that every index is built from.
//
// Each key is assigned a dense uint32 id the first time it is inserted.
// Ids grow monotonically, so id order is insertion order; an overwrite
// keeps the original id and therefore the original position. Vectors live
// in one contiguous slab addressed by id. Deleted slots are reclaimed by
// Compact, which renumbers ids while preserving order.
//
// The store is not synchronized. The DB serializes writers and lets
// readers share access.
package vectorstore

import (
	"errors"
	"fmt"

	"github.com/google/btree"

	"github.com/hupe1980/vecsim/internal/resource"
)

const (
	// DefaultPerPage is used when List is called with perPage < 1.
	DefaultPerPage = 100
	// MaxPerPage caps the page size.
	MaxPerPage = 1000
)

var (
	// ErrNotFound is returned when a key is not present.
	ErrNotFound = errors.New("vector not found")
	// ErrWrongDimension is returned when a vector doesn't match the store dimension.
	ErrWrongDimension = errors.New("wrong vector dimension")
	// ErrEmptyKey is returned for an empty key.
	ErrEmptyKey = errors.New("empty key")
)

// DimensionError reports a vector of the wrong length.
type DimensionError struct {
	Expected int
	Actual   int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("wrong vector dimension: expected %d, got %d", e.Expected, e.Actual)
}

func (e *DimensionError) Unwrap() error { return ErrWrongDimension }

// Record is a stored vector with its key and metadata.
type Record struct {
	Key      string
	Vector   []float32
	Metadata string
}

// Page is one page of a List call.
type Page struct {
	Records    []Record
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

type slot struct {
	key      string
	metadata string
	live     bool
	size     int64
}

// Store maps keys to records.
type Store struct {
	dim     int
	data    []float32 // data[id*dim : (id+1)*dim]
	slots   []slot
	keys    map[string]uint32
	order   *btree.BTreeG[uint32]
	version uint64
	rc      *resource.Controller
}

// Option configures a Store.
type Option func(*Store)

// WithResourceController charges vector and metadata bytes against rc.
func WithResourceController(rc *resource.Controller) Option {
	return func(s *Store) {
		s.rc = rc
	}
}

// New creates an empty store for vectors of length dim.
func New(dim int, optFns ...Option) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("vectorstore: dimension must be positive, got %d", dim)
	}

	s := &Store{
		dim:   dim,
		keys:  make(map[string]uint32),
		order: btree.NewOrderedG[uint32](32),
	}
	for _, fn := range optFns {
		fn(s)
	}
	return s, nil
}

// Dimension returns the fixed vector length.
func (s *Store) Dimension() int { return s.dim }

// Len returns the number of live records.
func (s *Store) Len() int { return len(s.keys) }

// Version increases on every successful mutation.
func (s *Store) Version() uint64 { return s.version }

// Validate checks key and vector without mutating the store.
func (s *Store) Validate(key string, vector []float32) error {
	if key == "" {
		return ErrEmptyKey
	}
	if len(vector) != s.dim {
		return &DimensionError{Expected: s.dim, Actual: len(vector)}
	}
	return nil
}

// Put inserts or overwrites key. It returns the record's id and whether
// an existing record was replaced. The vector is copied.
func (s *Store) Put(key string, vector []float32, metadata string) (uint32, bool, error) {
	if err := s.Validate(key, vector); err != nil {
		return 0, false, err
	}

	if id, ok := s.keys[key]; ok {
		sl := &s.slots[id]
		size := s.recordSize(key, metadata)
		if err := s.rc.ResizeMemory(sl.size, size); err != nil {
			return 0, false, err
		}
		copy(s.vector(id), vector)
		sl.metadata = metadata
		sl.size = size
		s.version++
		return id, true, nil
	}

	size := s.recordSize(key, metadata)
	if err := s.rc.AcquireMemory(size); err != nil {
		return 0, false, err
	}

	id := uint32(len(s.slots))
	s.slots = append(s.slots, slot{key: key, metadata: metadata, live: true, size: size})
	s.data = append(s.data, vector...)
	s.keys[key] = id
	s.order.ReplaceOrInsert(id)
	s.version++
	return id, false, nil
}

// Get returns a copy of the record stored under key.
func (s *Store) Get(key string) (Record, error) {
	id, ok := s.keys[key]
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return s.record(id, true), nil
}

// ID returns the id assigned to key.
func (s *Store) ID(key string) (uint32, bool) {
	id, ok := s.keys[key]
	return id, ok
}

// Lookup returns the record with the given id. The vector aliases store
// memory and must not be modified.
func (s *Store) Lookup(id uint32) (Record, bool) {
	if int(id) >= len(s.slots) || !s.slots[id].live {
		return Record{}, false
	}
	return s.record(id, false), true
}

// Vector returns the vector with the given id without copying.
func (s *Store) Vector(id uint32) ([]float32, bool) {
	if int(id) >= len(s.slots) || !s.slots[id].live {
		return nil, false
	}
	return s.vector(id), true
}

// Delete removes key and returns the id it held.
func (s *Store) Delete(key string) (uint32, error) {
	id, ok := s.keys[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrNotFound, key)
	}

	sl := &s.slots[id]
	s.rc.ReleaseMemory(sl.size)
	clear(s.vector(id))
	*sl = slot{}
	delete(s.keys, key)
	s.order.Delete(id)
	s.version++
	return id, nil
}

// Ascend calls fn for each live record in insertion order until fn
// returns false. Vectors alias store memory.
func (s *Store) Ascend(fn func(id uint32, rec Record) bool) {
	s.order.Ascend(func(id uint32) bool {
		return fn(id, s.record(id, false))
	})
}

// List returns one page of records in insertion order. page is 1-based;
// page < 1 is treated as 1. perPage < 1 selects DefaultPerPage and values
// above MaxPerPage are capped. A page past the end is empty.
func (s *Store) List(page, perPage int) Page {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	total := len(s.keys)
	p := Page{
		Records:    []Record{},
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: (total + perPage - 1) / perPage,
	}

	skip := (page - 1) * perPage
	if skip >= total {
		return p
	}

	pos := 0
	s.order.Ascend(func(id uint32) bool {
		if pos >= skip {
			p.Records = append(p.Records, s.record(id, true))
		}
		pos++
		return len(p.Records) < perPage
	})
	return p
}

// Holes returns the number of deleted slots awaiting compaction.
func (s *Store) Holes() int {
	return len(s.slots) - len(s.keys)
}

// Compact drops deleted slots and renumbers ids densely in insertion
// order. It returns false if there was nothing to reclaim. Indexes built
// on the old ids must be rebuilt.
func (s *Store) Compact() bool {
	if s.Holes() == 0 {
		return false
	}

	data := make([]float32, 0, len(s.keys)*s.dim)
	slots := make([]slot, 0, len(s.keys))
	order := btree.NewOrderedG[uint32](32)

	s.order.Ascend(func(id uint32) bool {
		newID := uint32(len(slots))
		slots = append(slots, s.slots[id])
		data = append(data, s.vector(id)...)
		s.keys[s.slots[id].key] = newID
		order.ReplaceOrInsert(newID)
		return true
	})

	s.data = data
	s.slots = slots
	s.order = order
	s.version++
	return true
}

// MemoryUsage returns the bytes charged for live records.
func (s *Store) MemoryUsage() int64 {
	var n int64
	for id := range s.slots {
		n += s.slots[id].size
	}
	return n
}

// Close releases the store's memory reservation.
func (s *Store) Close() {
	s.rc.ReleaseMemory(s.MemoryUsage())
	s.data = nil
	s.slots = nil
	s.keys = make(map[string]uint32)
	s.order.Clear(false)
}

func (s *Store) vector(id uint32) []float32 {
	off := int(id) * s.dim
	return s.data[off : off+s.dim : off+s.dim]
}

func (s *Store) record(id uint32, copyVector bool) Record {
	sl := s.slots[id]
	vec := s.vector(id)
	if copyVector {
		vec = append([]float32(nil), vec...)
	}
	return Record{Key: sl.key, Vector: vec, Metadata: sl.metadata}
}

func (s *Store) recordSize(key, metadata string) int64 {
	return int64(s.dim*4 + len(key) + len(metadata))
}
