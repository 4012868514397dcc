// Package cache provides the LRU used as the query result cache.
//
// Entries are keyed by the exact bytes of a query. Eviction is strict LRU by
// entry count, and an optional resource controller bounds the memory the
// cached results may hold. Hit and miss counters track historical access
// and survive Clear; only the live entries are dropped.
package cache
