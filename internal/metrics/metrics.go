// Package metrics exposes Prometheus collectors shared across every
// component: one registered Metrics struct per process rather than
// ad-hoc package-level collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aerosuite/platform/pkg/version"
)

// Metrics holds every collector the platform registers.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
	ErrorsTotal      *prometheus.CounterVec

	DatabaseQueriesTotal    *prometheus.CounterVec
	DatabaseQueryDuration   *prometheus.HistogramVec
	DatabaseConnectionsOpen prometheus.Gauge

	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
	CacheDegraded    prometheus.Gauge

	SessionsActive     prometheus.Gauge
	SessionsRevoked    *prometheus.CounterVec

	WorkerPoolQueueDepth prometheus.Gauge
	WorkerPoolActive     prometheus.Gauge
	WorkerRestartsTotal  *prometheus.CounterVec

	ClusterWorkersRunning prometheus.Gauge
	ClusterRestartsTotal  prometheus.Counter

	AutoscaleDesiredWorkers prometheus.Gauge

	InferenceRequestsTotal    *prometheus.CounterVec
	InferenceDuration         *prometheus.HistogramVec
	InferenceQueueDepth       *prometheus.GaugeVec
	DriftScore                *prometheus.GaugeVec

	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates and registers a Metrics instance against the default registry.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against registerer,
// which may be nil to skip registration (used in unit tests).
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total", Help: "Total number of HTTP requests",
		}, []string{"service", "method", "path", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"service", "method", "path"}),
		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight", Help: "Current in-flight HTTP requests",
		}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "errors_total", Help: "Total errors by kind",
		}, []string{"service", "kind", "operation"}),

		DatabaseQueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "database_queries_total", Help: "Total database queries",
		}, []string{"service", "operation", "status"}),
		DatabaseQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "database_query_duration_seconds", Help: "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"service", "operation"}),
		DatabaseConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "database_connections_open", Help: "Current open database connections",
		}),

		CacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_hits_total", Help: "Cache hits by level",
		}, []string{"level"}),
		CacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_misses_total", Help: "Cache misses by level",
		}, []string{"level"}),
		CacheDegraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_degraded", Help: "1 when the shared cache store is unreachable",
		}),

		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sessions_active", Help: "Currently active sessions",
		}),
		SessionsRevoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessions_revoked_total", Help: "Sessions revoked by reason",
		}, []string{"reason"}),

		WorkerPoolQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "worker_pool_queue_depth", Help: "Jobs waiting in the worker pool queue",
		}),
		WorkerPoolActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "worker_pool_active_workers", Help: "Workers currently executing a job",
		}),
		WorkerRestartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_restarts_total", Help: "Worker goroutine restarts after crash",
		}, []string{"worker"}),

		ClusterWorkersRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cluster_workers_running", Help: "Worker child processes currently running",
		}),
		ClusterRestartsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cluster_worker_restarts_total", Help: "Worker child process restarts",
		}),

		AutoscaleDesiredWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autoscale_desired_workers", Help: "Desired worker count from the autoscaling controller",
		}),

		InferenceRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inference_requests_total", Help: "Inference requests by model and outcome",
		}, []string{"model", "version", "outcome"}),
		InferenceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "inference_duration_seconds", Help: "Inference latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"model", "version"}),
		InferenceQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "inference_queue_depth", Help: "Pending inference requests per model",
		}, []string{"model"}),
		DriftScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "drift_score", Help: "Latest drift score per model and feature",
		}, []string{"model", "feature", "method"}),

		ServiceUptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "service_uptime_seconds", Help: "Service uptime in seconds",
		}),
		ServiceInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "service_info", Help: "Static service build information",
		}, []string{"service", "version"}),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal, m.RequestDuration, m.RequestsInFlight, m.ErrorsTotal,
			m.DatabaseQueriesTotal, m.DatabaseQueryDuration, m.DatabaseConnectionsOpen,
			m.CacheHitsTotal, m.CacheMissesTotal, m.CacheDegraded,
			m.SessionsActive, m.SessionsRevoked,
			m.WorkerPoolQueueDepth, m.WorkerPoolActive, m.WorkerRestartsTotal,
			m.ClusterWorkersRunning, m.ClusterRestartsTotal,
			m.AutoscaleDesiredWorkers,
			m.InferenceRequestsTotal, m.InferenceDuration, m.InferenceQueueDepth, m.DriftScore,
			m.ServiceUptime, m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, version.Version).Set(1)
	return m
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, d time.Duration) {
	m.RequestsTotal.WithLabelValues(service, method, path, status).Inc()
	m.RequestDuration.WithLabelValues(service, method, path).Observe(d.Seconds())
}

// RecordError records one error of the given kind.
func (m *Metrics) RecordError(service, kind, operation string) {
	m.ErrorsTotal.WithLabelValues(service, kind, operation).Inc()
}

// RecordDatabaseQuery records one repository query.
func (m *Metrics) RecordDatabaseQuery(service, operation, status string, d time.Duration) {
	m.DatabaseQueriesTotal.WithLabelValues(service, operation, status).Inc()
	m.DatabaseQueryDuration.WithLabelValues(service, operation).Observe(d.Seconds())
}

// UpdateUptime refreshes the service uptime gauge from startTime.
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

// RecordCacheHit records one cache hit at the given level ("local" or
// "shared").
func (m *Metrics) RecordCacheHit(level string) {
	m.CacheHitsTotal.WithLabelValues(level).Inc()
}

// RecordCacheMiss records one cache miss at the given level.
func (m *Metrics) RecordCacheMiss(level string) {
	m.CacheMissesTotal.WithLabelValues(level).Inc()
}

// SetCacheDegraded mirrors the cache engine's degraded flag.
func (m *Metrics) SetCacheDegraded(degraded bool) {
	if degraded {
		m.CacheDegraded.Set(1)
		return
	}
	m.CacheDegraded.Set(0)
}
