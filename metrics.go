package vecsim

import (
	"sync/atomic"
	"time"
)

// MetricsCollector receives per-operation measurements. Implementations
// must be safe for concurrent use.
type MetricsCollector interface {
	// RecordInsert is called after each single-record insert.
	RecordInsert(duration time.Duration, err error)

	// RecordBatchInsert is called once per batch with the number of items
	// attempted and rejected.
	RecordBatchInsert(count, failed int, duration time.Duration)

	// RecordSearch is called after each query, cached or not.
	RecordSearch(k int, duration time.Duration, err error)

	// RecordDelete is called after each delete operation.
	RecordDelete(duration time.Duration, err error)

	// RecordRebuild is called after the active index is rebuilt from the
	// store or brought up to date with a batch. records is the number of
	// entries indexed.
	RecordRebuild(records int, duration time.Duration)

	// RecordCacheLookup is called for every query cache lookup.
	RecordCacheLookup(hit bool)
}

// NoopMetricsCollector discards everything.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordInsert(time.Duration, error)         {}
func (NoopMetricsCollector) RecordBatchInsert(int, int, time.Duration) {}
func (NoopMetricsCollector) RecordSearch(int, time.Duration, error)    {}
func (NoopMetricsCollector) RecordDelete(time.Duration, error)         {}
func (NoopMetricsCollector) RecordRebuild(int, time.Duration)          {}
func (NoopMetricsCollector) RecordCacheLookup(bool)                    {}

type opCounter struct {
	count, errors, nanos atomic.Int64
}

func (c *opCounter) record(d time.Duration, err error) {
	c.count.Add(1)
	c.nanos.Add(d.Nanoseconds())
	if err != nil {
		c.errors.Add(1)
	}
}

func (c *opCounter) load() OpStats {
	s := OpStats{Count: c.count.Load(), Errors: c.errors.Load()}
	if s.Count > 0 {
		s.Avg = time.Duration(c.nanos.Load() / s.Count)
	}
	return s
}

// BasicMetricsCollector counts operations in memory. The zero value is
// ready to use.
type BasicMetricsCollector struct {
	insert, search, remove opCounter

	batches, batchItems, batchFailed atomic.Int64
	rebuilds, rebuildRecords         atomic.Int64
	cacheHits, cacheMisses           atomic.Int64
}

// RecordInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInsert(d time.Duration, err error) { b.insert.record(d, err) }

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(_ int, d time.Duration, err error) {
	b.search.record(d, err)
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(d time.Duration, err error) { b.remove.record(d, err) }

// RecordBatchInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBatchInsert(count, failed int, _ time.Duration) {
	b.batches.Add(1)
	b.batchItems.Add(int64(count))
	b.batchFailed.Add(int64(failed))
}

// RecordRebuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRebuild(records int, _ time.Duration) {
	b.rebuilds.Add(1)
	b.rebuildRecords.Add(int64(records))
}

// RecordCacheLookup implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCacheLookup(hit bool) {
	if hit {
		b.cacheHits.Add(1)
		return
	}
	b.cacheMisses.Add(1)
}

// OpStats summarizes one kind of operation.
type OpStats struct {
	Count  int64
	Errors int64
	Avg    time.Duration
}

// BasicMetricsStats is a point-in-time copy of a BasicMetricsCollector.
type BasicMetricsStats struct {
	Insert OpStats
	Search OpStats
	Delete OpStats

	Batches           int64
	BatchItems        int64
	BatchItemsFailed  int64
	Rebuilds          int64
	RebuiltRecords    int64
	CacheHits         int64
	CacheMisses       int64
}

// GetStats returns the current counters.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		Insert:           b.insert.load(),
		Search:           b.search.load(),
		Delete:           b.remove.load(),
		Batches:          b.batches.Load(),
		BatchItems:       b.batchItems.Load(),
		BatchItemsFailed: b.batchFailed.Load(),
		Rebuilds:         b.rebuilds.Load(),
		RebuiltRecords:   b.rebuildRecords.Load(),
		CacheHits:        b.cacheHits.Load(),
		CacheMisses:      b.cacheMisses.Load(),
	}
}
