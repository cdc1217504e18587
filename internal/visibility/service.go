// Package visibility reads and toggles the public visibility of bucket paths.
//
// Every operation fetches the current bucket policy, so results always
// reflect the backend. A bucket that has never had a policy gets the default
// document on first use and the operation is attempted exactly once more.
// Mutations on the same bucket are serialized; reads are not.
package visibility

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/koustreak/bucketvis/internal/errs"
	"github.com/koustreak/bucketvis/internal/filestore"
	"github.com/koustreak/bucketvis/internal/logger"
	"github.com/koustreak/bucketvis/internal/metrics"
	"github.com/koustreak/bucketvis/internal/notify"
	"github.com/koustreak/bucketvis/internal/policy"
)

// Operation names used in notifications and metrics.
const (
	OpSetPublic      = "set_public"
	OpSetPrivate     = "set_private"
	OpDeleteResource = "delete_resource"
)

// Result is the outcome of a mutation.
type Result struct {
	// Policy is the document re-read from the backend after the operation,
	// or the fetched one when nothing was written.
	Policy *policy.Document `json:"-"`

	// Resources lists Policy's first-statement resources.
	Resources []string `json:"resources"`

	// Visibility of the target, computed from Policy. Zero for
	// DeleteResourceEntry.
	Visibility policy.Visibility `json:"visibility"`

	// Changed is set when a new document was written.
	Changed bool `json:"changed"`

	// Disabled is set when the target is public through an ancestor and the
	// toggle was refused.
	Disabled bool `json:"disabled"`
}

// Service reads and mutates bucket policies through a filestore.PolicyStore.
type Service struct {
	store   filestore.PolicyStore
	sink    notify.Sink
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithSink sets where mutation outcomes are reported. Defaults to notify.Discard.
func WithSink(sink notify.Sink) Option {
	return func(s *Service) { s.sink = sink }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = l.Component("visibility") }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service over store.
func New(store filestore.PolicyStore, opts ...Option) *Service {
	s := &Service{
		store: store,
		sink:  notify.Discard{},
		log:   logger.Nop(),
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve fetches the bucket policy and classifies t against it.
func (s *Service) Resolve(ctx context.Context, t policy.Target) (policy.Visibility, error) {
	doc, err := s.read(ctx, t.Bucket)
	if err != nil {
		return policy.Visibility{}, err
	}
	return policy.Resolve(t, doc), nil
}

// ResolveMany classifies every path of a listing with a single policy fetch.
func (s *Service) ResolveMany(ctx context.Context, bucket string, paths []string) ([]policy.Visibility, error) {
	doc, err := s.read(ctx, bucket)
	if err != nil {
		return nil, err
	}
	return policy.ResolveMany(bucket, paths, doc), nil
}

// Resources returns every resource currently listed in the bucket policy.
func (s *Service) Resources(ctx context.Context, bucket string) ([]string, error) {
	doc, err := s.read(ctx, bucket)
	if err != nil {
		return nil, err
	}
	return doc.Resources(), nil
}

// SetPathPublic adds t's own resource to the bucket policy.
func (s *Service) SetPathPublic(ctx context.Context, t policy.Target) (*Result, error) {
	return s.toggle(ctx, OpSetPublic, t, func(doc *policy.Document) *policy.Document {
		if doc.Has(t.OwnResource()) {
			return nil
		}
		return doc.WithResource(t.OwnResource())
	})
}

// SetPathPrivate removes t's own resource from the bucket policy.
func (s *Service) SetPathPrivate(ctx context.Context, t policy.Target) (*Result, error) {
	return s.toggle(ctx, OpSetPrivate, t, func(doc *policy.Document) *policy.Document {
		if !doc.Has(t.OwnResource()) {
			return nil
		}
		return doc.WithoutResource(t.OwnResource())
	})
}

// DeleteResourceEntry removes resourceID from the bucket policy. Only the
// exact entry is removed: dropping a directory wildcard leaves entries for
// paths below it in place.
func (s *Service) DeleteResourceEntry(ctx context.Context, bucket, resourceID string) (*Result, error) {
	root := policy.ResourceID(bucket, "")
	if resourceID != root && !strings.HasPrefix(resourceID, root+"/") {
		err := errs.New(errs.ErrKindInvalidInput, "resource does not belong to bucket "+bucket)
		s.report(ctx, OpDeleteResource, bucket, resourceID, nil, err)
		return nil, err
	}
	path := strings.TrimPrefix(strings.TrimPrefix(resourceID, root), "/")

	unlock := s.lock(bucket)
	defer unlock()

	res, err := withBootstrap(ctx, s, bucket, func() (*Result, error) {
		doc, err := s.fetch(ctx, bucket)
		if err != nil {
			return nil, err
		}
		if !doc.Has(resourceID) {
			return newResult(doc, policy.Visibility{}), nil
		}
		return s.write(ctx, bucket, doc.WithoutResource(resourceID), nil)
	})
	s.report(ctx, OpDeleteResource, bucket, path, res, err)
	return res, err
}

// toggle runs one Set* attempt under the bucket lock. build returns the new
// document, or nil when doc already has the desired state.
func (s *Service) toggle(ctx context.Context, op string, t policy.Target, build func(*policy.Document) *policy.Document) (*Result, error) {
	unlock := s.lock(t.Bucket)
	defer unlock()

	res, err := withBootstrap(ctx, s, t.Bucket, func() (*Result, error) {
		doc, err := s.fetch(ctx, t.Bucket)
		if err != nil {
			return nil, err
		}
		current := policy.Resolve(t, doc)
		if current.ToggleDisabled() {
			r := newResult(doc, current)
			r.Disabled = true
			return r, nil
		}
		next := build(doc)
		if next == nil {
			return newResult(doc, current), nil
		}
		return s.write(ctx, t.Bucket, next, &t)
	})
	s.report(ctx, op, t.Bucket, t.Path, res, err)
	return res, err
}

// write persists next and re-reads the document the backend kept. The
// visibility of t, when given, is computed from the re-read document. A failed
// re-read is reported as an error that says the write already landed.
func (s *Service) write(ctx context.Context, bucket string, next *policy.Document, t *policy.Target) (*Result, error) {
	raw, err := next.JSON()
	if err != nil {
		return nil, err
	}
	if err := s.store.SetBucketPolicy(ctx, bucket, raw); err != nil {
		return nil, err
	}

	stored, err := s.fetch(ctx, bucket)
	if err != nil {
		// The write landed. Callers re-resolve rather than assume the new state.
		kind := errs.KindOf(err)
		if kind == errs.ErrKindNoSuchBucketPolicy || kind == errs.ErrKindUnknown {
			kind = errs.ErrKindQueryFailed
		}
		return nil, errs.Wrap(kind, "policy written but re-read failed", err).WithCode(errs.CodeOf(err))
	}
	var v policy.Visibility
	if t != nil {
		v = policy.Resolve(*t, stored)
	}
	r := newResult(stored, v)
	r.Changed = true
	return r, nil
}

// read fetches the bucket policy for read-only callers, bootstrapping it
// when missing.
func (s *Service) read(ctx context.Context, bucket string) (*policy.Document, error) {
	doc, err := s.fetch(ctx, bucket)
	if !errs.IsNoSuchBucketPolicy(err) {
		return doc, err
	}

	// Mutations hold the bucket lock while writing, so the default document
	// is only written when no policy appeared in the meantime.
	unlock := s.lock(bucket)
	_, err = s.fetch(ctx, bucket)
	if errs.IsNoSuchBucketPolicy(err) {
		err = s.initialize(ctx, bucket)
	}
	unlock()
	if err != nil {
		return nil, err
	}
	return s.fetch(ctx, bucket)
}

func (s *Service) fetch(ctx context.Context, bucket string) (*policy.Document, error) {
	raw, err := s.store.GetBucketPolicy(ctx, bucket)
	if err != nil {
		return nil, err
	}
	return policy.Parse(raw)
}

// initialize writes the default document to bucket.
func (s *Service) initialize(ctx context.Context, bucket string) error {
	raw, err := policy.Default().JSON()
	if err != nil {
		return err
	}
	if err := s.store.SetBucketPolicy(ctx, bucket, raw); err != nil {
		return err
	}
	s.metrics.Bootstrapped()
	s.log.InfoWith("bucket policy initialized", map[string]any{"bucket": bucket})
	return nil
}

func (s *Service) lock(bucket string) (unlock func()) {
	s.mu.Lock()
	m, ok := s.locks[bucket]
	if !ok {
		m = &sync.Mutex{}
		s.locks[bucket] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// withBootstrap runs attempt. If it fails because bucket has no policy, the
// default document is written and attempt runs once more; whatever that
// second run returns is final.
func withBootstrap[T any](ctx context.Context, s *Service, bucket string, attempt func() (T, error)) (T, error) {
	v, err := attempt()
	if !errs.IsNoSuchBucketPolicy(err) {
		return v, err
	}
	if err := s.initialize(ctx, bucket); err != nil {
		var zero T
		return zero, err
	}
	return attempt()
}

func newResult(doc *policy.Document, v policy.Visibility) *Result {
	return &Result{Policy: doc, Resources: doc.Resources(), Visibility: v}
}
