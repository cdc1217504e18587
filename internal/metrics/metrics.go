// Package metrics holds the Prometheus collectors for bucketvis.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeDisabled = "disabled"
	OutcomeNoop     = "noop"
)

var (
	defaultOnce     sync.Once
	defaultInstance *Metrics
)

// Metrics holds every collector the service exports. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	CredentialRefreshes *prometheus.CounterVec   // bucketvis_credential_refreshes_total{outcome}
	CredentialTTL       prometheus.Gauge         // bucketvis_credential_ttl_seconds
	PolicyMutations     *prometheus.CounterVec   // bucketvis_policy_mutations_total{operation,outcome}
	PolicyBootstraps    prometheus.Counter       // bucketvis_policy_bootstraps_total
	DownloadLinks       *prometheus.CounterVec   // bucketvis_download_links_total{kind}
	RequestDuration     *prometheus.HistogramVec // bucketvis_http_request_duration_seconds{route,status}
}

// New registers a fresh set of collectors with registry.
func New(registry prometheus.Registerer) *Metrics {
	f := promauto.With(registry)
	return &Metrics{
		CredentialRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bucketvis_credential_refreshes_total",
			Help: "Storage credential exchanges by outcome",
		}, []string{"outcome"}),

		CredentialTTL: f.NewGauge(prometheus.GaugeOpts{
			Name: "bucketvis_credential_ttl_seconds",
			Help: "Remaining validity of the cached storage credentials at last refresh",
		}),

		PolicyMutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bucketvis_policy_mutations_total",
			Help: "Bucket policy mutation attempts by operation and outcome",
		}, []string{"operation", "outcome"}),

		PolicyBootstraps: f.NewCounter(prometheus.CounterOpts{
			Name: "bucketvis_policy_bootstraps_total",
			Help: "Default policy documents created for buckets without one",
		}),

		DownloadLinks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bucketvis_download_links_total",
			Help: "Download references issued by kind",
		}, []string{"kind"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bucketvis_http_request_duration_seconds",
			Help:    "HTTP API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

// Default returns the process-wide instance registered with the default
// registerer. Subsequent calls return the same instance.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultInstance = New(prometheus.DefaultRegisterer)
	})
	return defaultInstance
}

func (m *Metrics) CredentialRefreshed(ttl time.Duration) {
	if m == nil {
		return
	}
	m.CredentialRefreshes.WithLabelValues(OutcomeSuccess).Inc()
	m.CredentialTTL.Set(ttl.Seconds())
}

func (m *Metrics) CredentialRefreshFailed() {
	if m == nil {
		return
	}
	m.CredentialRefreshes.WithLabelValues(OutcomeFailure).Inc()
}

func (m *Metrics) Mutation(operation, outcome string) {
	if m == nil {
		return
	}
	m.PolicyMutations.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) Bootstrapped() {
	if m == nil {
		return
	}
	m.PolicyBootstraps.Inc()
}

func (m *Metrics) DownloadLink(kind string) {
	if m == nil {
		return
	}
	m.DownloadLinks.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveRequest(route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(route, status).Observe(d.Seconds())
}
