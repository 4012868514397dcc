package cache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/vecsim/internal/resource"
)

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Hits        int64
	Misses      int64
	CurrentSize int
	Capacity    int
}

// HitRate returns hits / (hits + misses), or 0 before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// LRU is a strict least-recently-used cache bounded by entry count.
// A hit promotes the entry to most recent. Hit and miss counters are
// monotonic: Clear drops entries but keeps the counters.
type LRU[K comparable, V any] struct {
	mu        sync.Mutex
	capacity  int
	items     map[K]*list.Element
	evictList *list.List
	rc        *resource.Controller
	sizeOf    func(V) int64

	hits   atomic.Int64
	misses atomic.Int64
}

type entry[K comparable, V any] struct {
	key   K
	value V
	size  int64
}

// Option configures an LRU.
type Option[K comparable, V any] func(*LRU[K, V])

// WithResourceController charges each entry's size (as reported by sizeOf)
// against rc. Entries that rc cannot admit are not cached.
func WithResourceController[K comparable, V any](rc *resource.Controller, sizeOf func(V) int64) Option[K, V] {
	return func(c *LRU[K, V]) {
		c.rc = rc
		c.sizeOf = sizeOf
	}
}

// NewLRU creates a cache holding at most capacity entries. A capacity
// below 1 disables caching; lookups still count as misses.
func NewLRU[K comparable, V any](capacity int, optFns ...Option[K, V]) *LRU[K, V] {
	if capacity < 0 {
		capacity = 0
	}
	c := &LRU[K, V]{
		capacity:  capacity,
		items:     make(map[K]*list.Element),
		evictList: list.New(),
	}
	for _, fn := range optFns {
		fn(c)
	}
	return c
}

// Get returns the cached value for key and promotes it.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(ent)
		return ent.Value.(*entry[K, V]).value, true
	}
	c.misses.Add(1)
	var zero V
	return zero, false
}

// Put caches value under key, evicting the least recently used entry
// when full.
func (c *LRU[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capacity == 0 {
		return
	}

	size := c.size(value)

	if ent, ok := c.items[key]; ok {
		old := ent.Value.(*entry[K, V])
		if c.rc != nil && size > old.size {
			if c.rc.AcquireMemory(size-old.size) != nil {
				return
			}
		} else if c.rc != nil && size < old.size {
			c.rc.ReleaseMemory(old.size - size)
		}
		old.value = value
		old.size = size
		c.evictList.MoveToFront(ent)
		return
	}

	for c.evictList.Len() >= c.capacity {
		c.removeElement(c.evictList.Back())
	}

	if c.rc != nil && c.rc.AcquireMemory(size) != nil {
		return
	}

	element := c.evictList.PushFront(&entry[K, V]{key: key, value: value, size: size})
	c.items[key] = element
}

// Clear removes all entries. Counters are preserved.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rc != nil {
		for e := c.evictList.Front(); e != nil; e = e.Next() {
			c.rc.ReleaseMemory(e.Value.(*entry[K, V]).size)
		}
	}
	c.items = make(map[K]*list.Element)
	c.evictList.Init()
}

// Len returns the number of live entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// Capacity returns the maximum number of entries.
func (c *LRU[K, V]) Capacity() int {
	return c.capacity
}

// Stats returns the current counters.
func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	size := c.evictList.Len()
	c.mu.Unlock()

	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		CurrentSize: size,
		Capacity:    c.capacity,
	}
}

func (c *LRU[K, V]) size(v V) int64 {
	if c.sizeOf == nil {
		return 0
	}
	return c.sizeOf(v)
}

func (c *LRU[K, V]) removeElement(e *list.Element) {
	c.evictList.Remove(e)
	kv := e.Value.(*entry[K, V])
	delete(c.items, kv.key)
	if c.rc != nil {
		c.rc.ReleaseMemory(kv.size)
	}
}
