// Package credcache obtains short-lived storage credentials by exchanging an
// identity token, and caches them until they get close to expiry.
//
// One Cache is built per process and handed to everything that talks to the
// storage backend:
//
//	cache := credcache.New(identity.NewFile(path), &credcache.STSExchanger{Endpoint: sts})
//	store, err := minio.New(ctx, cfg, cache)
package credcache

import (
	"context"
	"time"

	"github.com/koustreak/bucketvis/internal/errs"
)

// Credentials are temporary storage credentials. Values are immutable:
// a refresh replaces them, it never mutates them.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// ExpiresAt is zero for credentials that never expire.
	ExpiresAt time.Time
}

// Expires reports whether the credentials carry an expiry time.
func (c Credentials) Expires() bool {
	return !c.ExpiresAt.IsZero()
}

// Remaining returns how long the credentials stay valid after now.
func (c Credentials) Remaining(now time.Time) time.Duration {
	return c.ExpiresAt.Sub(now)
}

// ValidFor reports whether the credentials stay valid for at least d after now.
func (c Credentials) ValidFor(now time.Time, d time.Duration) bool {
	if !c.Expires() {
		return true
	}
	return c.Remaining(now) >= d
}

// Equal reports whether both values describe the same issued credentials.
func (c Credentials) Equal(o Credentials) bool {
	return c.AccessKeyID == o.AccessKeyID &&
		c.SecretAccessKey == o.SecretAccessKey &&
		c.SessionToken == o.SessionToken &&
		c.ExpiresAt.Equal(o.ExpiresAt)
}

// Source hands out credentials for storage clients.
type Source interface {
	// Get returns credentials that are valid for at least the source's
	// minimum validity window.
	Get(ctx context.Context) (Credentials, error)

	// Subscribe registers fn to be called with every newly issued value.
	// Storage clients bound to older credentials must be rebuilt.
	Subscribe(fn func(Credentials)) (unsubscribe func())

	// Invalidate drops the current value so the next Get refreshes.
	Invalidate()
}

// Static is a Source for fixed, non-expiring credentials (local development).
type Static struct {
	creds Credentials
}

// NewStatic returns a Source that always hands out creds.
func NewStatic(creds Credentials) *Static {
	return &Static{creds: creds}
}

func (s *Static) Get(_ context.Context) (Credentials, error) {
	if s.creds.AccessKeyID == "" || s.creds.SecretAccessKey == "" {
		return Credentials{}, errs.New(errs.ErrKindAuthExchange, "static credentials are not configured")
	}
	return s.creds, nil
}

func (s *Static) Subscribe(func(Credentials)) func() { return func() {} }

func (s *Static) Invalidate() {}
