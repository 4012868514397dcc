// Package s3 stores snapshots in Amazon S3.
//
// Store streams snapshot uploads through the multipart uploader and maps
// missing objects to blobstore.ErrNotFound. S3 has no atomic rename, so
// snapshots are published by rewriting the CURRENT pointer; wrap the
// store in a DDBCommitStore to turn that rewrite into a DynamoDB
// conditional write when several writers may race.
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "vectors/")
//	committed := s3.NewDDBCommitStore(store, dynamodb.NewFromConfig(cfg), "vecsim-commits", "s3://my-bucket/vectors/")
package s3
