// Package resource bounds what a DB may consume.
//
// A Controller governs three budgets:
//
//   - Memory: vector payloads and cached query results reserve bytes with
//     AcquireMemory. Reservation never blocks; exceeding the limit fails
//     with ErrMemoryLimitExceeded, which the DB reports as capacity
//     exceeded.
//   - Background work: index builds for algorithm switches and HNSW
//     compaction hold a background slot.
//   - IO: snapshot uploads and downloads go through Writer and Reader,
//     which draw from a token bucket.
//
// A nil *Controller is valid and imposes no limits.
package resource
