package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "cephview").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for request duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "cephview",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the Prometheus collectors for the server. All methods are
// safe on a nil receiver.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	operationsTotal *prometheus.CounterVec
	activeSessions  prometheus.Gauge
	sessionsEnded   *prometheus.CounterVec
	wsConnections   prometheus.Gauge
	wsErrors        *prometheus.CounterVec
	uploadsTotal    *prometheus.CounterVec
}

// NewMetrics creates and registers the server metrics. Registering twice
// against the same registry panics, so build one Metrics per registry.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests by route and status",
			ConstLabels: config.ConstLabels,
		}, []string{"method", "route", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"method", "route"}),

		operationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "registry_operations_total",
			Help:        "Total overlay registry operations by op and whether state changed",
			ConstLabels: config.ConstLabels,
		}, []string{"op", "changed"}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_sessions",
			Help:        "Number of active viewer sessions",
			ConstLabels: config.ConstLabels,
		}),

		sessionsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "sessions_ended_total",
			Help:        "Total ended sessions by reason",
			ConstLabels: config.ConstLabels,
		}, []string{"reason"}),

		wsConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "websocket_connections",
			Help:        "Number of open viewer WebSocket connections",
			ConstLabels: config.ConstLabels,
		}),

		wsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "websocket_errors_total",
			Help:        "Total WebSocket errors by type",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),

		uploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "uploads_total",
			Help:        "Total image uploads by outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"status"}),
	}
}

// Middleware records request count and duration, labeled by the chi route
// pattern rather than the raw path to keep label cardinality bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		route := routePattern(r)
		status := ww.Status()
		if status == 0 {
			// Hijacked (WebSocket) or nothing written.
			status = http.StatusOK
		}
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		m.requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}

// RecordOperation records one registry operation and whether it changed state.
func (m *Metrics) RecordOperation(op string, changed bool) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(op, strconv.FormatBool(changed)).Inc()
}

// RecordSessionStart records a new session.
func (m *Metrics) RecordSessionStart() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// RecordSessionEnd records a session ending for reason.
func (m *Metrics) RecordSessionEnd(reason string) {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
	m.sessionsEnded.WithLabelValues(reason).Inc()
}

// RecordWebSocketOpen records a viewer connection opening.
func (m *Metrics) RecordWebSocketOpen() {
	if m == nil {
		return
	}
	m.wsConnections.Inc()
}

// RecordWebSocketClose records a viewer connection closing.
func (m *Metrics) RecordWebSocketClose() {
	if m == nil {
		return
	}
	m.wsConnections.Dec()
}

// RecordWebSocketError records a WebSocket error.
func (m *Metrics) RecordWebSocketError(errorType string) {
	if m == nil {
		return
	}
	m.wsErrors.WithLabelValues(errorType).Inc()
}

// RecordUpload records an upload attempt by outcome ("ok", "too_large", ...).
func (m *Metrics) RecordUpload(status string) {
	if m == nil {
		return
	}
	m.uploadsTotal.WithLabelValues(status).Inc()
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
