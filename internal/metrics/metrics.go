// Package metrics defines the broker's Prometheus instrumentation. Every
// metric is registered at package-init time via promauto, the same
// pattern used throughout this codebase's ancestry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "broker_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Session lifecycle metrics
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broker_active_sessions",
			Help: "Number of transcoder sessions currently tracked by the registry",
		},
	)

	SpawnsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_spawns_total",
			Help: "Total number of transcoder child processes spawned",
		},
	)

	SpawnFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_spawn_failures_total",
			Help: "Total number of transcoder spawn attempts that failed",
		},
	)

	ReapsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_reaps_total",
			Help: "Total number of sessions removed by the idle reaper",
		},
		[]string{"reason"},
	)

	// Origin probe metrics
	ProbeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "broker_probe_duration_seconds",
			Help:    "Time spent waiting for the origin to report a stream live",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to 51.2s
		},
		[]string{"outcome"},
	)

	// Cache metrics
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// Events metrics
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_events_published_total",
			Help: "Total number of lifecycle events published",
		},
		[]string{"event", "status"},
	)

	// Audit metrics
	AuditWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_audit_writes_total",
			Help: "Total number of audit sink writes",
		},
		[]string{"status"},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_errors_total",
			Help: "Total number of errors by component and kind",
		},
		[]string{"component", "kind"},
	)
)

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordSpawn records a transcoder spawn attempt.
func RecordSpawn(ok bool) {
	if ok {
		SpawnsTotal.Inc()
		return
	}
	SpawnFailuresTotal.Inc()
}

// RecordReap records an idle-reaper eviction.
func RecordReap(reason string) {
	ReapsTotal.WithLabelValues(reason).Inc()
}

// RecordProbe records the outcome and duration of an origin probe wait.
func RecordProbe(live bool, duration float64) {
	outcome := "timeout"
	if live {
		outcome = "live"
	}
	ProbeDuration.WithLabelValues(outcome).Observe(duration)
}

// RecordCacheAccess records a cache hit or miss.
func RecordCacheAccess(cacheType string, hit bool) {
	if hit {
		CacheHitsTotal.WithLabelValues(cacheType).Inc()
	} else {
		CacheMissesTotal.WithLabelValues(cacheType).Inc()
	}
}

// RecordEventPublished records the outcome of a lifecycle-event publish.
func RecordEventPublished(event string, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	EventsPublishedTotal.WithLabelValues(event, status).Inc()
}

// RecordAuditWrite records the outcome of an audit sink write.
func RecordAuditWrite(ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	AuditWritesTotal.WithLabelValues(status).Inc()
}

// RecordError records an error.
func RecordError(component, kind string) {
	ErrorsTotal.WithLabelValues(component, kind).Inc()
}
