package server

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cephview/cephview/pkg/upload"
)

// Config configures the HTTP server.
type Config struct {
	// Addr is the TCP address to listen on.
	// Default: "localhost:8080".
	Addr string

	// ReadHeaderTimeout bounds reading request headers.
	// Default: 10 seconds.
	ReadHeaderTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown once Run's context is done.
	// Default: 15 seconds.
	ShutdownTimeout time.Duration

	// AllowedOrigins lists origins allowed to open WebSockets in addition
	// to same-origin requests. "*" allows any origin.
	AllowedOrigins []string

	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP.
	// Only enable behind a proxy that overwrites those headers.
	TrustProxy bool

	// StaticDir is the directory with the viewer's assets. Empty disables
	// static serving.
	StaticDir string

	// MetricsPath is where Prometheus metrics are exposed. Empty disables
	// the endpoint.
	// Default: "/metrics".
	MetricsPath string

	// Upload configures the upload handler.
	Upload *upload.Config

	// WebSocket configures viewer connections.
	WebSocket WebSocketConfig
}

// WebSocketConfig configures viewer WebSocket connections.
type WebSocketConfig struct {
	// ReadTimeout is how long a connection may stay silent. Pongs count.
	// Default: 60 seconds.
	ReadTimeout time.Duration

	// WriteTimeout bounds each frame write.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// PingInterval is how often the server pings. Must be below ReadTimeout.
	// Default: 25 seconds.
	PingInterval time.Duration

	// ReplyBuffer is how many error replies may queue before the reader
	// waits for the writer.
	// Default: 16.
	ReplyBuffer int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:              "localhost:8080",
		ReadHeaderTimeout: 10 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		MetricsPath:       "/metrics",
		Upload:            upload.DefaultConfig(),
		WebSocket:         DefaultWebSocketConfig(),
	}
}

// DefaultWebSocketConfig returns the default WebSocket settings.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		PingInterval: 25 * time.Second,
		ReplyBuffer:  16,
	}
}

func (c *WebSocketConfig) applyDefaults() {
	d := DefaultWebSocketConfig()
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.ReadTimeout {
		c.PingInterval = c.ReadTimeout * 9 / 10
	}
	if c.ReplyBuffer <= 0 {
		c.ReplyBuffer = d.ReplyBuffer
	}
}

// SameOriginCheck validates that the WebSocket request origin matches the host.
// Requests without an Origin header (non-browser clients) are allowed.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if r.Host == "" {
		return false
	}
	return strings.EqualFold(originURL.Host, r.Host)
}

// originChecker allows same-origin requests plus the listed origins.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return SameOriginCheck
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.ToLower(strings.TrimSuffix(o, "/"))] = true
	}
	return func(r *http.Request) bool {
		if SameOriginCheck(r) {
			return true
		}
		return set[strings.ToLower(r.Header.Get("Origin"))]
	}
}
