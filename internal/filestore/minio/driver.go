// Package minio provides a MinIO implementation of filestore.Store.
//
// The driver never holds long-lived keys. Every call asks the credential
// source for credentials, and the SDK client is rebuilt whenever the source
// issues new ones.
//
// Usage:
//
//	cfg := filestore.DefaultConfig("localhost:9000")
//	store, err := minio.New(ctx, cfg, cache)
//	if err != nil { ... }
//	defer store.Close()
//
//	raw, err := store.GetBucketPolicy(ctx, "reports")
package minio

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/koustreak/bucketvis/internal/credcache"
	"github.com/koustreak/bucketvis/internal/errs"
	"github.com/koustreak/bucketvis/internal/filestore"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Driver is a MinIO implementation of filestore.Store.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	cfg   *filestore.Config
	creds credcache.Source

	mu    sync.Mutex
	bound *boundClient

	unsubscribe func()
}

// boundClient is an SDK client together with the credentials it signs with.
type boundClient struct {
	creds  credcache.Credentials
	client *miniogo.Client
}

// New returns a Driver for cfg that signs requests with credentials from
// src. It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg *filestore.Config, src credcache.Source) (*Driver, error) {
	d := NewLazy(cfg, src)
	if err := d.Ping(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// NewLazy is New without the initial Ping.
func NewLazy(cfg *filestore.Config, src credcache.Source) *Driver {
	d := &Driver{cfg: cfg, creds: src}
	d.unsubscribe = src.Subscribe(func(credcache.Credentials) {
		d.mu.Lock()
		d.bound = nil
		d.mu.Unlock()
	})
	return d
}

// client returns an SDK client signed with currently valid credentials.
func (d *Driver) client(ctx context.Context) (*miniogo.Client, error) {
	creds, err := d.creds.Get(ctx)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.bound != nil && d.bound.creds.Equal(creds) {
		return d.bound.client, nil
	}

	client, err := miniogo.New(d.cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken),
		Secure: d.cfg.UseSSL,
		Region: d.cfg.Region,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create minio client", err)
	}

	d.bound = &boundClient{creds: creds, client: client}
	return client, nil
}

// fail maps err and drops the cached credentials when the backend rejected
// them as expired or unknown.
func (d *Driver) fail(err error, msg string) *errs.Error {
	mapped := mapError(err, msg)
	if staleCredentialCodes[mapped.Code] {
		d.creds.Invalidate()
	}
	return mapped
}

// --- filestore.Store implementation ---

// Ping verifies the MinIO server is reachable by listing buckets.
func (d *Driver) Ping(ctx context.Context) error {
	c, err := d.client(ctx)
	if err != nil {
		return err
	}
	if _, err := c.ListBuckets(ctx); err != nil {
		return d.fail(err, "ping failed")
	}
	return nil
}

// Close detaches the driver from its credential source.
func (d *Driver) Close() error {
	if d.unsubscribe != nil {
		d.unsubscribe()
	}
	return nil
}

// BucketExists reports whether bucket exists.
func (d *Driver) BucketExists(ctx context.Context, bucket string) (bool, error) {
	c, err := d.client(ctx)
	if err != nil {
		return false, err
	}
	ok, err := c.BucketExists(ctx, bucket)
	if err != nil {
		return false, d.fail(err, "failed to check bucket")
	}
	return ok, nil
}

// ListBuckets returns every bucket visible to the current credentials.
func (d *Driver) ListBuckets(ctx context.Context) ([]filestore.BucketInfo, error) {
	c, err := d.client(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := c.ListBuckets(ctx)
	if err != nil {
		return nil, d.fail(err, "failed to list buckets")
	}

	buckets := make([]filestore.BucketInfo, len(raw))
	for i, b := range raw {
		buckets[i] = filestore.BucketInfo{Name: b.Name, CreatedAt: b.CreationDate}
	}
	return buckets, nil
}

// GetBucketPolicy returns the raw policy of bucket. The SDK reports a
// missing policy as an empty document; it is turned back into
// errs.ErrKindNoSuchBucketPolicy here.
func (d *Driver) GetBucketPolicy(ctx context.Context, bucket string) (string, error) {
	c, err := d.client(ctx)
	if err != nil {
		return "", err
	}
	raw, err := c.GetBucketPolicy(ctx, bucket)
	if err != nil {
		return "", d.fail(err, "failed to get bucket policy")
	}
	if strings.TrimSpace(raw) == "" {
		return "", errs.New(errs.ErrKindNoSuchBucketPolicy, "bucket "+bucket+" has no policy").
			WithCode(miniogo.NoSuchBucketPolicy)
	}
	return raw, nil
}

// SetBucketPolicy replaces the policy of bucket.
func (d *Driver) SetBucketPolicy(ctx context.Context, bucket, policy string) error {
	if strings.TrimSpace(policy) == "" {
		// The SDK would delete the policy instead.
		return errs.New(errs.ErrKindInvalidInput, "refusing to write an empty bucket policy")
	}
	c, err := d.client(ctx)
	if err != nil {
		return err
	}
	if err := c.SetBucketPolicy(ctx, bucket, policy); err != nil {
		return d.fail(err, "failed to set bucket policy")
	}
	return nil
}

// ListObjects returns objects in bucket that match opts.
func (d *Driver) ListObjects(ctx context.Context, bucket string, opts filestore.ListOptions) ([]filestore.ObjectInfo, error) {
	c, err := d.client(ctx)
	if err != nil {
		return nil, err
	}

	listOpts := miniogo.ListObjectsOptions{
		Prefix:    opts.Prefix,
		Recursive: opts.Recursive,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var results []filestore.ObjectInfo
	for obj := range c.ListObjects(ctx, bucket, listOpts) {
		if obj.Err != nil {
			return nil, d.fail(obj.Err, "failed to list objects")
		}

		results = append(results, filestore.ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			ContentType:  obj.ContentType,
			ETag:         obj.ETag,
			LastModified: obj.LastModified,
			IsDir:        strings.HasSuffix(obj.Key, "/"),
		})

		if opts.Limit > 0 && len(results) >= opts.Limit {
			break
		}
	}

	return results, nil
}

// StatObject returns metadata for the object at key inside bucket
// without downloading its content.
func (d *Driver) StatObject(ctx context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	c, err := d.client(ctx)
	if err != nil {
		return nil, err
	}
	stat, err := c.StatObject(ctx, bucket, key, miniogo.StatObjectOptions{})
	if err != nil {
		return nil, d.fail(err, "failed to stat object")
	}

	return &filestore.ObjectInfo{
		Key:          stat.Key,
		Size:         stat.Size,
		ContentType:  stat.ContentType,
		ETag:         stat.ETag,
		LastModified: stat.LastModified,
	}, nil
}

// PutObject uploads size bytes from r.
func (d *Driver) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (*filestore.ObjectInfo, error) {
	c, err := d.client(ctx)
	if err != nil {
		return nil, err
	}
	info, err := c.PutObject(ctx, bucket, key, r, size, miniogo.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return nil, d.fail(err, "failed to put object")
	}

	return &filestore.ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		ContentType:  contentType,
		ETag:         info.ETag,
		LastModified: info.LastModified,
	}, nil
}

// RemoveObject deletes the object at key.
func (d *Driver) RemoveObject(ctx context.Context, bucket, key string) error {
	c, err := d.client(ctx)
	if err != nil {
		return err
	}
	if err := c.RemoveObject(ctx, bucket, key, miniogo.RemoveObjectOptions{}); err != nil {
		return d.fail(err, "failed to remove object")
	}
	return nil
}

// PresignGetURL returns a time-limited download URL for the object.
// Presigning happens locally, so the object is looked up first to report
// missing objects instead of handing out a dead link.
func (d *Driver) PresignGetURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	c, err := d.client(ctx)
	if err != nil {
		return "", err
	}
	if _, err := c.StatObject(ctx, bucket, key, miniogo.StatObjectOptions{}); err != nil {
		return "", d.fail(err, "failed to stat object before presigning")
	}
	u, err := c.PresignedGetObject(ctx, bucket, key, ttl, nil)
	if err != nil {
		return "", d.fail(err, "failed to generate presigned URL")
	}
	return u.String(), nil
}
