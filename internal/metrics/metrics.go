// Package metrics exposes Prometheus instrumentation for the sandbox pool,
// the remote machine client and the HTTP API.
//
// All methods are safe on a nil *Metrics, so instrumentation stays optional
// for library callers and tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Start outcomes recorded by ObserveStart.
const (
	ResultSpawned = "spawned"
	ResultReused  = "reused"
	ResultError   = "error"
)

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	sandboxesLive  prometheus.Gauge
	startsTotal    *prometheus.CounterVec
	stopsTotal     prometheus.Counter
	evictionsTotal prometheus.Counter
	crashesTotal   prometheus.Counter
	readiness      prometheus.Histogram
	machineOps     *prometheus.CounterVec
	httpReqsTotal  *prometheus.CounterVec
	httpReqDur     *prometheus.HistogramVec
}

// New creates a Metrics with its own registry, including Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sandboxesLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forage_pool_sandboxes_live",
			Help: "Sandboxes currently tracked by the pool",
		}),
		startsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forage_pool_starts_total",
			Help: "Start requests by outcome",
		}, []string{"result"}),
		stopsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forage_pool_stops_total",
			Help: "Sandboxes stopped, including evictions",
		}),
		evictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forage_pool_evictions_total",
			Help: "Sandboxes evicted to make room under capacity pressure",
		}),
		crashesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forage_pool_crashes_total",
			Help: "Sandboxes whose process died without being stopped",
		}),
		readiness: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "forage_pool_readiness_seconds",
			Help:    "Time from spawn until the dev server answered",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		machineOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forage_pool_machine_operations_total",
			Help: "Remote machine API operations by outcome",
		}, []string{"op", "result"}),
		httpReqsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forage_pool_http_requests_total",
			Help: "Total HTTP requests handled by the forage-pool API",
		}, []string{"method", "path", "status"}),
		httpReqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "forage_pool_http_request_duration_seconds",
			Help:    "HTTP request latency for the forage-pool API",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sandboxesLive,
		m.startsTotal,
		m.stopsTotal,
		m.evictionsTotal,
		m.crashesTotal,
		m.readiness,
		m.machineOps,
		m.httpReqsTotal,
		m.httpReqDur,
	)
	return m
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetLive records the number of tracked sandboxes.
func (m *Metrics) SetLive(n int) {
	if m == nil {
		return
	}
	m.sandboxesLive.Set(float64(n))
}

// ObserveStart counts a start request by outcome.
func (m *Metrics) ObserveStart(result string) {
	if m == nil {
		return
	}
	m.startsTotal.WithLabelValues(result).Inc()
}

// ObserveReady records how long a dev server took to answer.
func (m *Metrics) ObserveReady(d time.Duration) {
	if m == nil {
		return
	}
	m.readiness.Observe(d.Seconds())
}

// ObserveStop counts a stop.
func (m *Metrics) ObserveStop() {
	if m == nil {
		return
	}
	m.stopsTotal.Inc()
}

// ObserveEviction counts an LRU eviction.
func (m *Metrics) ObserveEviction() {
	if m == nil {
		return
	}
	m.evictionsTotal.Inc()
}

// ObserveCrash counts a process found dead.
func (m *Metrics) ObserveCrash() {
	if m == nil {
		return
	}
	m.crashesTotal.Inc()
}

// ObserveMachineOp counts a remote operation.
func (m *Metrics) ObserveMachineOp(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.machineOps.WithLabelValues(op, result).Inc()
}

// Middleware records request counts and latency keyed by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := []string{r.Method, path, strconv.Itoa(status)}
		m.httpReqsTotal.WithLabelValues(labels...).Inc()
		m.httpReqDur.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	})
}
