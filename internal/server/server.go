// Package server exposes the visibility and download-link services over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/koustreak/bucketvis/internal/filestore"
	"github.com/koustreak/bucketvis/internal/links"
	"github.com/koustreak/bucketvis/internal/logger"
	"github.com/koustreak/bucketvis/internal/metrics"
	"github.com/koustreak/bucketvis/internal/notify"
	"github.com/koustreak/bucketvis/internal/policy"
	"github.com/koustreak/bucketvis/internal/visibility"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Visibility is the subset of visibility.Service the API serves.
type Visibility interface {
	Resolve(ctx context.Context, t policy.Target) (policy.Visibility, error)
	ResolveMany(ctx context.Context, bucket string, paths []string) ([]policy.Visibility, error)
	Resources(ctx context.Context, bucket string) ([]string, error)
	SetPathPublic(ctx context.Context, t policy.Target) (*visibility.Result, error)
	SetPathPrivate(ctx context.Context, t policy.Target) (*visibility.Result, error)
	DeleteResourceEntry(ctx context.Context, bucket, resourceID string) (*visibility.Result, error)
}

// Links issues download references.
type Links interface {
	DownloadReference(ctx context.Context, t policy.Target) (*links.Reference, error)
}

// Objects lists bucket contents and reports backend health.
type Objects interface {
	Ping(ctx context.Context) error
	ListObjects(ctx context.Context, bucket string, opts filestore.ListOptions) ([]filestore.ObjectInfo, error)
}

// Options wires a Server. Journal and Gatherer are optional.
type Options struct {
	Visibility Visibility
	Links      Links
	Objects    Objects
	Journal    notify.Reader
	Logger     *logger.Logger
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer
}

// Server is the HTTP API.
type Server struct {
	vis     Visibility
	links   Links
	objects Objects
	journal notify.Reader
	log     *logger.Logger
	metrics *metrics.Metrics
	router  chi.Router
}

// New builds the router.
func New(opts Options) *Server {
	s := &Server{
		vis:     opts.Visibility,
		links:   opts.Links,
		objects: opts.Objects,
		journal: opts.Journal,
		log:     opts.Logger,
		metrics: opts.Metrics,
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	s.log = s.log.Component("http")

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestID)
	r.Use(s.instrument)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/notifications", s.handleNotifications)

		r.Route("/buckets/{bucket}", func(r chi.Router) {
			r.Get("/visibility", s.handleVisibility)
			r.Put("/public", s.handleSetPublic)
			r.Delete("/public", s.handleSetPrivate)
			r.Get("/policy/resources", s.handleResources)
			r.Delete("/policy/resources", s.handleDeleteResource)
			r.Get("/download", s.handleDownload)
			r.Get("/objects", s.handleObjects)
		})
	})

	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Config holds listener settings.
type Config struct {
	Listen          string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, cfg Config) error {
	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		BaseContext:  func(_ net.Listener) context.Context { return s.log.WithContext(context.Background()) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	s.log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
