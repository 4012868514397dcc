// Package minio keeps snapshots in a MinIO bucket, or any server speaking
// the S3 API, through minio-go.
//
// Keys are the blob names joined under a root prefix. EnsureBucket
// creates the bucket on first start. Streaming writes become visible only
// when Close succeeds; an aborted upload leaves nothing behind. The CURRENT
// pointer is an ordinary object, so concurrent writers to one prefix are
// not coordinated. Use the s3 package with a DynamoDB commit table for
// that.
package minio
