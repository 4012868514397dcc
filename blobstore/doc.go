// Package blobstore abstracts where snapshots are kept.
//
// Store is a flat namespace of named blobs with atomic writes: a blob
// created with Create or Put is either fully visible or absent. The
// CURRENT blob holds the name of the latest committed snapshot, which
// lets object stores without atomic rename publish a new snapshot with a
// single small write.
//
// # Built-in Implementations
//
//   - LocalStore: local directory, temp file plus fsync plus rename
//   - MemoryStore: in-process map, for tests
//   - s3.Store and s3.DDBCommitStore: Amazon S3, optionally with a
//     DynamoDB conditional write guarding CURRENT
//   - minio.Store: MinIO and other S3-compatible servers
package blobstore
