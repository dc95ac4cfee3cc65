package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Default tracer name for cephview.
const defaultTracerName = "cephview"

// SessionParam is the chi URL parameter holding the session ID.
const SessionParam = "sid"

// OTelConfig configures the OpenTelemetry middleware.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "cephview").
	TracerName string

	// Provider supplies the tracer. Defaults to the global provider.
	Provider trace.TracerProvider

	// Filter determines which requests to trace.
	// Return true to trace the request, false to skip.
	// If nil, all requests are traced.
	Filter func(r *http.Request) bool

	// AttributeExtractor extracts custom attributes from the request.
	AttributeExtractor func(r *http.Request) []attribute.KeyValue
}

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *OTelConfig) {
		c.Provider = tp
	}
}

// WithRequestFilter sets a filter function for requests.
func WithRequestFilter(filter func(r *http.Request) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(r *http.Request) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

// OpenTelemetry creates middleware that wraps every request in a server span.
//
// The middleware:
//   - Starts a span and injects it into the request context
//   - Renames the span to the chi route pattern once routing is done
//   - Adds the session ID when the route carries one
//   - Marks 5xx responses as errors
//
// Configure the global provider in main() before starting the server:
//
//	otel.SetTracerProvider(tp)
func OpenTelemetry(opts ...OTelOption) func(http.Handler) http.Handler {
	config := OTelConfig{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Provider == nil {
		config.Provider = otel.GetTracerProvider()
	}
	tracer := config.Provider.Tracer(config.TracerName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config.Filter != nil && !config.Filter(r) {
				next.ServeHTTP(w, r)
				return
			}

			attrs := []attribute.KeyValue{
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			}
			if config.AttributeExtractor != nil {
				attrs = append(attrs, config.AttributeExtractor(r)...)
			}

			ctx, span := tracer.Start(r.Context(), "HTTP "+r.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attrs...),
			)
			defer span.End()

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			route := routePattern(r)
			span.SetName(r.Method + " " + route)
			span.SetAttributes(attribute.String("http.route", route))
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if sid := rctx.URLParam(SessionParam); sid != "" {
					span.SetAttributes(attribute.String("cephview.session_id", sid))
				}
			}

			status := ww.Status()
			if status != 0 {
				span.SetAttributes(attribute.Int("http.status_code", status))
			}
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			} else {
				span.SetStatus(codes.Ok, "")
			}
		})
	}
}

// SpanFromRequest returns the span started for r, or a non-recording span.
func SpanFromRequest(r *http.Request) trace.Span {
	return trace.SpanFromContext(r.Context())
}
