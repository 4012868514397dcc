// Package vecsim provides an in-memory vector similarity search engine.
//
// Vectors of a fixed dimension are stored under string keys with optional
// metadata and queried for their nearest neighbors under a configurable
// distance metric (euclidean, manhattan, cosine). The index algorithm is
// pluggable and can be switched at runtime:
//
//   - exact: linear scan, always correct
//   - lsh: random hyperplane hashing, approximate and fast on large sets
//   - hnsw: navigable small world graph, approximate with high recall
//
// # Quick Start
//
//	ctx := context.Background()
//	db, _ := vecsim.New(128, vecsim.WithMetric(distance.Cosine))
//	defer db.Close()
//
//	_ = db.Insert(ctx, "doc-1", vec, `{"title":"hello"}`)
//	results, _ := db.Search(ctx, query, 5, vecsim.WithMetadata(true))
//	for _, r := range results {
//	    fmt.Println(r.Key, r.Distance, r.Metadata)
//	}
//
// # Switching Configuration
//
//	m := 32
//	params, _ := db.SetAlgorithm(ctx, "hnsw", index.Overrides{M: &m})
//	_ = db.SetMetric(ctx, "manhattan")
//	db.SetSIMD(false)
//
// Algorithm and metric switches rebuild the index from the store and clear
// the query cache. A rejected switch leaves the active index untouched.
// The SIMD toggle affects only the next distance computation.
//
// # Query Cache
//
// Search results are cached in an LRU keyed by the exact bytes of the
// query vector, k, metric, algorithm and its parameters. Every mutation clears
// the cache. CacheStats reports hits and misses, which survive clears.
//
// # Durability
//
// With WithWAL (or WithJournal) every mutation is appended to a commit log
// before the call returns. With WithSnapshot (or WithBlobStore) Save
// writes a full snapshot and truncates the log. Open recovers the latest
// snapshot and replays the log on top of it:
//
//	db, _ := vecsim.Open(ctx, 128,
//	    vecsim.WithWAL("./data"),
//	    vecsim.WithSnapshot("./data", "vectors.db"),
//	)
//
// # Thread Safety
//
// A DB is safe for concurrent use. Searches and reads share a lock;
// mutations and configuration changes are exclusive.
package vecsim
