// Package middleware provides the observability middleware for the cephview
// HTTP server.
//
// This package includes:
//   - Prometheus metrics for requests, registry operations and sessions
//   - OpenTelemetry tracing with one server span per request
//
// # Prometheus Metrics
//
// Metrics are collected on a Metrics value built with NewMetrics:
//   - cephview_http_requests_total: Requests by method, route and status
//   - cephview_http_request_duration_seconds: Request duration histogram
//   - cephview_registry_operations_total: Overlay operations by op and outcome
//   - cephview_active_sessions: Current number of sessions
//   - cephview_sessions_ended_total: Ended sessions by reason
//   - cephview_websocket_connections: Open viewer connections
//
//	m := middleware.NewMetrics(middleware.WithNamespace("cephview"))
//	r := chi.NewRouter()
//	r.Use(m.Middleware)
//	r.Handle("/metrics", promhttp.Handler())
//
// A nil *Metrics is valid and records nothing, so callers can disable
// metrics without guarding every call site.
//
// # OpenTelemetry Middleware
//
// Tracing uses the global tracer provider unless one is passed with
// WithTracerProvider. Spans are named after the chi route pattern and carry
// the session ID when the route has one.
//
//	r.Use(middleware.OpenTelemetry(middleware.WithTracerName("cephview")))
package middleware
