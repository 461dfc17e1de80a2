// Package metrics exposes Prometheus collectors for HTTP traffic and the
// product visibility workflow.
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

const namespace = "eamcrm"

// Metrics owns its registry so several servers (and tests) can coexist in
// one process.
type Metrics struct {
	reg *prometheus.Registry

	RequestDuration *prometheus.HistogramVec
	APIRequests     *prometheus.CounterVec
	APIErrors       *prometheus.CounterVec

	Logins            *prometheus.CounterVec
	VisibilityToggles *prometheus.CounterVec
	SyncChanges       *prometheus.CounterVec
	EntitlementChange *prometheus.CounterVec
	EventFailures     *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		reg: reg,
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total number of API requests",
		}, []string{"method", "path"}),
		APIErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_errors_total",
			Help:      "Total number of API responses with status >= 400",
		}, []string{"method", "path", "status"}),
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by result",
		}, []string{"result"}),
		VisibilityToggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "product_visibility_toggles_total",
			Help:      "Per-tenant product visibility changes by product origin",
		}, []string{"origin"}),
		SyncChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "product_sync_changes_total",
			Help:      "Tenant product rows added or removed by sync updates",
		}, []string{"change"}),
		EntitlementChange: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "module_entitlement_changes_total",
			Help:      "Per-tenant module enable and disable calls",
		}, []string{"enabled"}),
		EventFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_failures_total",
			Help:      "Domain events that could not be published",
		}, []string{"type"}),
	}
	reg.MustRegister(m.RequestDuration, m.APIRequests, m.APIErrors,
		m.Logins, m.VisibilityToggles, m.SyncChanges, m.EntitlementChange, m.EventFailures)
	return m
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Middleware records request counts and latency labelled by the matched
// route pattern, so path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				path = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		code := strconv.Itoa(status)
		m.APIRequests.WithLabelValues(r.Method, path).Inc()
		m.RequestDuration.WithLabelValues(r.Method, path, code).Observe(time.Since(start).Seconds())
		if status >= 400 {
			m.APIErrors.WithLabelValues(r.Method, path, code).Inc()
		}
	})
}
