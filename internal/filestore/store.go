// Package filestore defines the contract of the object storage backend.
//
// All providers (MinIO, S3, …) implement the Store interface. Callers
// depend only on this package, never on a specific provider package.
//
// Usage:
//
//	cfg := filestore.DefaultConfig("localhost:9000")
//	store, err := minio.New(ctx, cfg, credcache.NewStatic(creds))
//	if err != nil { ... }
//	defer store.Close()
//
//	raw, err := store.GetBucketPolicy(ctx, "reports")
package filestore

import (
	"context"
	"io"
	"time"
)

// PolicyStore reads and writes bucket access-policy documents.
type PolicyStore interface {
	// GetBucketPolicy returns the raw JSON policy of bucket. It fails with
	// errs.ErrKindNoSuchBucketPolicy when the bucket has none.
	GetBucketPolicy(ctx context.Context, bucket string) (string, error)

	// SetBucketPolicy replaces the policy of bucket with the raw JSON document.
	SetBucketPolicy(ctx context.Context, bucket, policy string) error
}

// Presigner issues time-limited download URLs.
type Presigner interface {
	// PresignGetURL returns a URL that allows anyone to download the object
	// at key inside bucket until ttl elapses. It fails with
	// errs.ErrKindObjectNotFound when the object does not exist.
	PresignGetURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// Store is the single interface all file storage providers must implement.
type Store interface {
	PolicyStore
	Presigner

	// Ping verifies the storage backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources.
	Close() error

	// BucketExists reports whether bucket exists and is visible to the caller.
	BucketExists(ctx context.Context, bucket string) (bool, error)

	// ListBuckets returns every bucket visible to the current credentials.
	ListBuckets(ctx context.Context) ([]BucketInfo, error)

	// ListObjects returns the objects in bucket that match opts.
	// Virtual directory entries (common prefixes) are included when opts.Recursive is false.
	ListObjects(ctx context.Context, bucket string, opts ListOptions) ([]ObjectInfo, error)

	// StatObject returns metadata for the object at key inside bucket
	// without downloading its content.
	StatObject(ctx context.Context, bucket, key string) (*ObjectInfo, error)

	// PutObject stores size bytes from r at key inside bucket.
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (*ObjectInfo, error)

	// RemoveObject deletes the object at key inside bucket.
	RemoveObject(ctx context.Context, bucket, key string) error
}
