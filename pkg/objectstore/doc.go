// Package objectstore ships backup files to and from S3-compatible object
// storage.
//
// Scheduled backups are uploaded under the configured key prefix, and
// restores accept s3://bucket/key sources:
//
//	client, err := objectstore.New(ctx, cfg.Backup.S3)
//	bucket, key, err := objectstore.ParseURL("s3://backups/conductor-backup.jsonl")
//	rc, err := client.Open(ctx, bucket, key)
package objectstore
