// Package links issues download references for bucket objects: a direct URL
// when the object is publicly readable, a presigned URL otherwise.
package links

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/bucketvis/internal/errs"
	"github.com/koustreak/bucketvis/internal/filestore"
	"github.com/koustreak/bucketvis/internal/logger"
	"github.com/koustreak/bucketvis/internal/metrics"
	"github.com/koustreak/bucketvis/internal/policy"
)

// DefaultTTL is the longest validity a SigV4 presigned URL may have.
const DefaultTTL = 7 * 24 * time.Hour

const amzDateLayout = "20060102T150405Z"

// Kind tells how a Reference grants access.
type Kind string

const (
	KindDirect    Kind = "direct"
	KindPresigned Kind = "presigned"
)

// Reference is a download link for one object. It is computed per request
// and never cached.
type Reference struct {
	Kind Kind   `json:"kind"`
	URL  string `json:"url"`

	// Set for presigned references only.
	ExpirationLabel string    `json:"expirationLabel,omitempty"`
	ExpiresAt       time.Time `json:"expiresAt,omitzero"`
}

// Resolver reports the visibility of a path.
type Resolver interface {
	Resolve(ctx context.Context, t policy.Target) (policy.Visibility, error)
}

// Service issues download references.
type Service struct {
	resolver  Resolver
	presigner filestore.Presigner
	base      *url.URL
	ttl       time.Duration
	labeler   *Labeler
	log       *logger.Logger
	metrics   *metrics.Metrics
}

type Option func(*Service)

// WithTTL sets the validity of presigned URLs. Values outside (0, DefaultTTL]
// fall back to DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 && ttl <= DefaultTTL {
			s.ttl = ttl
		}
	}
}

func WithLabeler(l *Labeler) Option {
	return func(s *Service) { s.labeler = l }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = l.Component("links") }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates a Service. base is where public objects are served from.
func New(resolver Resolver, presigner filestore.Presigner, base *url.URL, opts ...Option) *Service {
	s := &Service{
		resolver:  resolver,
		presigner: presigner,
		base:      base,
		ttl:       DefaultTTL,
		labeler:   NewLabeler("", time.UTC),
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DownloadReference returns a direct URL when t is public, and a freshly
// presigned URL with its expiration label otherwise.
func (s *Service) DownloadReference(ctx context.Context, t policy.Target) (*Reference, error) {
	if t.IsDir() {
		return nil, errs.New(errs.ErrKindInvalidInput, "directories have no download link")
	}

	v, err := s.resolver.Resolve(ctx, t)
	if err != nil {
		return nil, err
	}
	if v.Public() {
		s.metrics.DownloadLink(string(KindDirect))
		return &Reference{Kind: KindDirect, URL: DirectURL(s.base, t)}, nil
	}

	raw, err := s.presigner.PresignGetURL(ctx, t.Bucket, t.Key(), s.ttl)
	if err != nil {
		return nil, err
	}
	expiresAt, err := ParseExpiry(raw)
	if err != nil {
		return nil, err
	}

	labeler := s.labeler
	if locale := localeFrom(ctx); locale != "" {
		labeler = labeler.ForLocale(locale)
	}

	s.metrics.DownloadLink(string(KindPresigned))
	s.log.DebugWith("presigned download link", map[string]any{
		"bucket":     t.Bucket,
		"path":       t.Path,
		"expires_at": expiresAt,
	})
	return &Reference{
		Kind:            KindPresigned,
		URL:             raw,
		ExpirationLabel: labeler.Format(expiresAt),
		ExpiresAt:       expiresAt,
	}, nil
}

// DirectURL is the anonymous URL of t below base. The key is escaped segment
// by segment and never cleaned, so "a//b" and "a/../b" keep naming the object
// whose visibility was resolved.
func DirectURL(base *url.URL, t policy.Target) string {
	key := t.Key()
	segments := []string{url.PathEscape(t.Bucket)}
	for _, seg := range strings.Split(key, "/") {
		segments = append(segments, url.PathEscape(seg))
	}

	u := *base
	u.Path = strings.TrimSuffix(base.Path, "/") + "/" + t.Bucket + "/" + key
	u.RawPath = strings.TrimSuffix(base.EscapedPath(), "/") + "/" + strings.Join(segments, "/")
	return u.String()
}

// ParseExpiry reads the instant a presigned URL stops working from its
// X-Amz-Date and X-Amz-Expires query parameters.
func ParseExpiry(raw string) (time.Time, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return time.Time{}, errs.Wrap(errs.ErrKindInvalidInput, "malformed presigned url", err)
	}
	q := u.Query()

	issued, err := time.Parse(amzDateLayout, q.Get("X-Amz-Date"))
	if err != nil {
		return time.Time{}, errs.Wrap(errs.ErrKindInvalidInput, "presigned url has no valid X-Amz-Date", err)
	}
	secs, err := strconv.ParseInt(q.Get("X-Amz-Expires"), 10, 64)
	if err != nil || secs < 0 {
		return time.Time{}, errs.Wrap(errs.ErrKindInvalidInput, "presigned url has no valid X-Amz-Expires", err)
	}
	if secs > int64(DefaultTTL/time.Second) {
		return time.Time{}, errs.New(errs.ErrKindInvalidInput, "presigned url X-Amz-Expires exceeds 604800 seconds")
	}
	return issued.Add(time.Duration(secs) * time.Second), nil
}
