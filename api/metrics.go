package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics of the hosting server.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	backendUp       prometheus.Gauge
	registry        *prometheus.Registry
}

// NewMetrics creates the server metrics and registers them on registry.
func NewMetrics(registry *prometheus.Registry, demo string) (*Metrics, error) {
	labels := prometheus.Labels{"demo": demo}
	m := &Metrics{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "controlnet_http_requests_total",
			Help:        "Total number of HTTP requests by route and status code.",
			ConstLabels: labels,
		}, []string{"method", "route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "controlnet_http_request_duration_seconds",
			Help:        "Duration of HTTP requests in seconds.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.005, 4, 10),
		}, []string{"route"}),
		backendUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "controlnet_backend_up",
			Help:        "Whether the last health check reached the inference backend.",
			ConstLabels: labels,
		}),
	}
	for _, c := range []prometheus.Collector{m.requests, m.requestDuration, m.backendUp} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetBackendUp records the outcome of a backend health check.
func (m *Metrics) SetBackendUp(up bool) {
	if up {
		m.backendUp.Set(1)
	} else {
		m.backendUp.Set(0)
	}
}

// Middleware counts requests by their chi route pattern. Unmatched paths are
// grouped under "other" to bound label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "other"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
