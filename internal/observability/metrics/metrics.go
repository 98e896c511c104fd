// Package metrics provides Prometheus instrumentation for dappkit-server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled     bool
	serviceName string
	registry    *prometheus.Registry

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Snapshot metrics
	snapshotSaveTotal   *prometheus.CounterVec
	snapshotGetTotal    *prometheus.CounterVec
	snapshotBytes       prometheus.Histogram
	sessionClearTotal   *prometheus.CounterVec
	sessionsPurgedTotal prometheus.Counter
)

// Init initializes the metrics system. Each call starts a fresh registry.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	serviceName = svcName

	if !enabled {
		return
	}

	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)
	constLabels := prometheus.Labels{"service": svcName}

	httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: constLabels,
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request latency in seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"method", "path"},
	)

	snapshotSaveTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "form_snapshot_save_total",
			Help:        "Total number of form snapshot saves",
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)

	snapshotGetTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "form_snapshot_get_total",
			Help:        "Total number of form snapshot reads",
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)

	snapshotBytes = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:        "form_snapshot_bytes",
			Help:        "Size of saved form snapshots in bytes",
			Buckets:     prometheus.ExponentialBuckets(64, 4, 7),
			ConstLabels: constLabels,
		},
	)

	sessionClearTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "form_session_clear_total",
			Help:        "Total number of explicitly ended sessions",
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)

	sessionsPurgedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name:        "form_sessions_purged_total",
			Help:        "Total number of expired sessions removed by the purge loop",
			ConstLabels: constLabels,
		},
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}

// ServiceName returns the configured service name for metric labels.
func ServiceName() string {
	return serviceName
}
