// Package observability collects Prometheus metrics for the engine.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the registry and the engine's instruments.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	allocatorRetries   prometheus.Counter
	allocatorDegraded  prometheus.Counter
	allocatorExhausted prometheus.Counter
	voidCascades       prometheus.Counter
	schemaRetries      prometheus.Counter
}

// NewMetrics initialises the registry and base instruments.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowbooks_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flowbooks_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	allocRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flowbooks_allocator_cas_retries_total",
		Help: "Counter CAS attempts lost to a concurrent allocator.",
	})
	allocDegraded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flowbooks_allocator_degraded_total",
		Help: "Allocations that fell back to a timestamp-suffixed number.",
	})
	allocExhausted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flowbooks_allocator_exhausted_total",
		Help: "Allocations that failed every strategy.",
	})
	cascades := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flowbooks_void_cascades_total",
		Help: "Void operations that reverted predecessor documents.",
	})
	schemaRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flowbooks_schema_variant_retries_total",
		Help: "Store patches retried with legacy column names.",
	})
	registry.MustRegister(requests, duration, allocRetries, allocDegraded, allocExhausted, cascades, schemaRetries)
	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:      requests,
		requestDuration:    duration,
		allocatorRetries:   allocRetries,
		allocatorDegraded:  allocDegraded,
		allocatorExhausted: allocExhausted,
		voidCascades:       cascades,
		schemaRetries:      schemaRetries,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveAllocatorRetry records a lost CAS attempt.
func (m *Metrics) ObserveAllocatorRetry() {
	if m != nil {
		m.allocatorRetries.Inc()
	}
}

// ObserveAllocatorDegraded records a timestamp-suffix fallback.
func (m *Metrics) ObserveAllocatorDegraded() {
	if m != nil {
		m.allocatorDegraded.Inc()
	}
}

// ObserveAllocatorExhausted records a fully failed allocation.
func (m *Metrics) ObserveAllocatorExhausted() {
	if m != nil {
		m.allocatorExhausted.Inc()
	}
}

// ObserveVoidCascade records a cascaded void.
func (m *Metrics) ObserveVoidCascade() {
	if m != nil {
		m.voidCascades.Inc()
	}
}

// ObserveSchemaRetry records a legacy-column retry.
func (m *Metrics) ObserveSchemaRetry() {
	if m != nil {
		m.schemaRetries.Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware instruments HTTP handlers with request count and duration.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
