package credcache

import (
	"context"
	"sync"
	"time"

	"github.com/koustreak/bucketvis/internal/errs"
	"github.com/koustreak/bucketvis/internal/identity"
	"github.com/koustreak/bucketvis/internal/logger"
	"github.com/koustreak/bucketvis/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// DefaultMinValidity is how much validity cached credentials must have left
// to be handed out without a refresh.
const DefaultMinValidity = 5 * time.Minute

// Exchanger trades an identity token for storage credentials.
type Exchanger interface {
	Exchange(ctx context.Context, token string) (Credentials, error)
}

// Cache is the process-wide credential cache. It is safe for concurrent
// use; concurrent refreshes are coalesced into a single exchange.
type Cache struct {
	identity    identity.Provider
	exchanger   Exchanger
	minValidity time.Duration
	now         func() time.Time
	log         *logger.Logger
	metrics     *metrics.Metrics

	flight singleflight.Group

	mu      sync.RWMutex
	current *Credentials

	subsMu sync.Mutex
	subs   map[int]func(Credentials)
	nextID int
}

// Option configures a Cache.
type Option func(*Cache)

// WithMinValidity sets the minimum remaining validity (default 5m).
func WithMinValidity(d time.Duration) Option {
	return func(c *Cache) { c.minValidity = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Cache) { c.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// New returns an empty cache. Nothing is fetched until the first Get.
func New(p identity.Provider, x Exchanger, opts ...Option) *Cache {
	c := &Cache{
		identity:    p,
		exchanger:   x,
		minValidity: DefaultMinValidity,
		now:         time.Now,
		log:         logger.L(),
		subs:        make(map[int]func(Credentials)),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.Component("credcache")
	return c
}

// Get returns the cached credentials when they are valid for at least the
// minimum validity window, and refreshes them otherwise.
//
// A caller whose ctx ends stops waiting, but a refresh already in flight is
// not cancelled: other callers may be waiting on it.
func (c *Cache) Get(ctx context.Context) (Credentials, error) {
	if creds, ok := c.cached(); ok {
		return creds, nil
	}

	ch := c.flight.DoChan("refresh", func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Credentials{}, res.Err
		}
		return res.Val.(Credentials), nil
	case <-ctx.Done():
		return Credentials{}, errs.Wrap(errs.ErrKindTimeout, "gave up waiting for credential refresh", ctx.Err())
	}
}

// Subscribe registers fn for every newly issued value.
func (c *Cache) Subscribe(fn func(Credentials)) func() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	id := c.nextID
	c.nextID++
	c.subs[id] = fn

	return func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		delete(c.subs, id)
	}
}

// Invalidate drops the cached value, e.g. after the backend reported the
// session token as expired.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
}

func (c *Cache) cached() (Credentials, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.current == nil || !c.current.ValidFor(c.now(), c.minValidity) {
		return Credentials{}, false
	}
	return *c.current, true
}

func (c *Cache) refresh(ctx context.Context) (Credentials, error) {
	// A flight that finished just before this one started may already
	// have stored fresh credentials.
	if creds, ok := c.cached(); ok {
		return creds, nil
	}

	token, err := c.identity.Token(ctx)
	if err != nil {
		c.metrics.CredentialRefreshFailed()
		c.log.WarnWith("identity token unavailable", err, nil)
		return Credentials{}, errs.Wrap(errs.ErrKindAuthExchange, "failed to obtain identity token", err)
	}

	creds, err := c.exchanger.Exchange(ctx, token)
	if err == nil {
		err = validate(creds, c.now())
	}
	if err != nil {
		c.metrics.CredentialRefreshFailed()
		c.log.WarnWith("credential exchange failed", err, nil)
		return Credentials{}, errs.Wrap(errs.ErrKindAuthExchange, "failed to exchange identity token", err)
	}

	now := c.now()
	if !creds.ValidFor(now, c.minValidity) {
		c.log.WarnWith("issued credentials are shorter-lived than the minimum validity window", nil, map[string]any{
			"remaining":    creds.Remaining(now).String(),
			"min_validity": c.minValidity.String(),
		})
	}

	c.mu.Lock()
	c.current = &creds
	c.mu.Unlock()

	c.metrics.CredentialRefreshed(creds.Remaining(now))
	c.log.InfoWith("storage credentials refreshed", map[string]any{
		"access_key": creds.AccessKeyID,
		"expires_at": creds.ExpiresAt,
	})
	c.publish(creds)

	return creds, nil
}

func (c *Cache) publish(creds Credentials) {
	c.subsMu.Lock()
	fns := make([]func(Credentials), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subsMu.Unlock()

	for _, fn := range fns {
		fn(creds)
	}
}

func validate(creds Credentials, now time.Time) error {
	switch {
	case creds.AccessKeyID == "", creds.SecretAccessKey == "", creds.SessionToken == "":
		return errs.New(errs.ErrKindInvalidInput, "credential envelope is incomplete")
	case !creds.Expires():
		return errs.New(errs.ErrKindInvalidInput, "credential envelope has no expiration")
	case !creds.ExpiresAt.After(now):
		return errs.New(errs.ErrKindInvalidInput, "credential envelope is already expired")
	}
	return nil
}
