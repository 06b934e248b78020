// Package metrics provides a self-contained Prometheus registry plus
// HTTP middleware so the API layer can be instrumented without import
// cycles.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg        *prometheus.Registry
	inflight   prometheus.Gauge
	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	operations *prometheus.CounterVec
	authFails  prometheus.Counter
}

// New creates a Metrics instance with a fresh registry and registers
// all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	inflight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "storagesvc",
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of inflight HTTP requests.",
	})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storagesvc",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests processed, partitioned by status code and method.",
	}, []string{"code", "method"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "storagesvc",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Histogram of latencies for HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"code", "method"})
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storagesvc",
		Subsystem: "s3",
		Name:      "operations_total",
		Help:      "Total number of S3 operations dispatched, partitioned by operation name.",
	}, []string{"operation"})
	authFails := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "storagesvc",
		Subsystem: "s3",
		Name:      "auth_failures_total",
		Help:      "Total number of requests rejected during authentication.",
	})

	_ = reg.Register(inflight)
	_ = reg.Register(requests)
	_ = reg.Register(latency)
	_ = reg.Register(operations)
	_ = reg.Register(authFails)

	return &Metrics{
		reg:        reg,
		inflight:   inflight,
		requests:   requests,
		latency:    latency,
		operations: operations,
		authFails:  authFails,
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ObserveOperation counts a dispatched S3 operation.
func (m *Metrics) ObserveOperation(operation string) {
	m.operations.WithLabelValues(operation).Inc()
}

// ObserveAuthFailure counts a rejected authentication attempt.
func (m *Metrics) ObserveAuthFailure() {
	m.authFails.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records the inflight gauge, request counter and latency
// histogram for every request it wraps.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.inflight.Inc()
		defer m.inflight.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		code := strconv.Itoa(rec.status)
		m.requests.WithLabelValues(code, r.Method).Inc()
		m.latency.WithLabelValues(code, r.Method).Observe(time.Since(start).Seconds())
	})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}
