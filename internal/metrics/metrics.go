// Package metrics exports pool, authentication and HTTP metrics for
// Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/plantdesk/plantdesk/internal/pool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector on its own registry
type Metrics struct {
	registry *prometheus.Registry

	acquireTotal      *prometheus.CounterVec
	acquireWait       prometheus.Histogram
	discardedTotal    prometheus.Counter
	authAttemptsTotal *prometheus.CounterVec
	lockoutsTotal     prometheus.Counter

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates and registers the collectors under namespace
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		acquireTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "acquire_total",
			Help:      "Connection acquires by outcome.",
		}, []string{"outcome"}),
		acquireWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "acquire_wait_seconds",
			Help:      "Time spent waiting for a connection.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .25, .5, 1, 2.5},
		}),
		discardedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "discarded_connections_total",
			Help:      "Closed connections dropped from the pool.",
		}),
		authAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Authentication attempts by outcome.",
		}, []string{"outcome"}),
		lockoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "lockouts_total",
			Help:      "Accounts locked after too many failed attempts.",
		}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.acquireTotal, m.acquireWait, m.discardedTotal,
		m.authAttemptsTotal, m.lockoutsTotal,
		m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration,
	)
	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// AcquireObserved implements pool.Observer
func (m *Metrics) AcquireObserved(outcome string, wait time.Duration) {
	m.acquireTotal.WithLabelValues(outcome).Inc()
	m.acquireWait.Observe(wait.Seconds())
}

// ConnectionDiscarded implements pool.Observer
func (m *Metrics) ConnectionDiscarded() {
	m.discardedTotal.Inc()
}

// AuthAttempt implements service.Recorder
func (m *Metrics) AuthAttempt(outcome string) {
	m.authAttemptsTotal.WithLabelValues(outcome).Inc()
}

// AccountLocked implements service.Recorder
func (m *Metrics) AccountLocked() {
	m.lockoutsTotal.Inc()
}

// WatchPool registers gauges that read the pool's counters at scrape time
func (m *Metrics) WatchPool(namespace string, p *pool.Pool) {
	gauge := func(name, help string, read func(pool.Stats) int) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read(p.Stats())) })
	}
	m.registry.MustRegister(
		gauge("live_connections", "Open connections owned by the pool.", func(s pool.Stats) int { return s.Live }),
		gauge("idle_connections", "Connections waiting in the idle queue.", func(s pool.Stats) int { return s.Idle }),
		gauge("in_use_connections", "Connections checked out by callers.", func(s pool.Stats) int { return s.InUse }),
		gauge("max_connections", "Configured connection ceiling.", func(s pool.Stats) int { return s.Max }),
	)
}

// Instrument records request count, latency and in-flight requests. The path
// label is the matched route pattern so IDs in URLs don't explode cardinality.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(sw.code)
		m.httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
