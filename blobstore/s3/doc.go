// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("backups/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	err = backup.Export(ctx, "./forest", store, "nightly")
//
// # Features
//
//   - Range reads for efficient partial fetches
//   - Multipart uploads for large stashes
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
