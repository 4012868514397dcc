// Package index defines the nearest-neighbor index contract and the
// parameters shared by its implementations.
//
// Three algorithms satisfy Index:
//
//   - exact: linear scan, perfect recall
//   - lsh: random hyperplane locality-sensitive hashing
//   - hnsw: hierarchical navigable small world graph
//
// Indexes work on dense uint32 ids handed out by the vector store. Results
// are ordered by distance, then by id, so equal distances resolve to the
// record inserted first.
package index
