package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics of the console.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	signals         *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	mounts          prometheus.Gauge
}

// NewMetrics initialises the registry and every console metric.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "learnhub_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "learnhub_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	signals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "learnhub_signal_events_total",
		Help: "Cross-context user-updated signals by direction.",
	}, []string{"direction"})
	refreshes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "learnhub_identity_refresh_total",
		Help: "Identity refreshes by result.",
	}, []string{"result"})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "learnhub_notifications_total",
		Help: "Toasts pushed by variant.",
	}, []string{"variant"})
	mounts := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "learnhub_mounted_contexts",
		Help: "Browsing contexts currently mounted.",
	})
	registry.MustRegister(requests, duration, signals, refreshes, notifications, mounts)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		signals:         signals,
		refreshes:       refreshes,
		notifications:   notifications,
		mounts:          mounts,
	}
}

// Handler returns the http.Handler for /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for custom metrics.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObserveSignal counts emitted, received and dispatched signals.
func (m *Metrics) ObserveSignal(direction string) {
	if m == nil {
		return
	}
	m.signals.WithLabelValues(direction).Inc()
}

// ObserveRefresh counts identity refresh outcomes.
func (m *Metrics) ObserveRefresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

// ObserveNotification counts pushed toasts.
func (m *Metrics) ObserveNotification(variant string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(variant).Inc()
}

// MountOpened and MountClosed track live browsing contexts.
func (m *Metrics) MountOpened() {
	if m != nil {
		m.mounts.Inc()
	}
}

func (m *Metrics) MountClosed() {
	if m != nil {
		m.mounts.Dec()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps event streams working behind the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
