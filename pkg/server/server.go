package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	cverrors "github.com/cephview/cephview/internal/errors"
	"github.com/cephview/cephview/pkg/middleware"
	"github.com/cephview/cephview/pkg/session"
	"github.com/cephview/cephview/pkg/upload"
)

// Server serves overlay sessions over HTTP and WebSocket.
type Server struct {
	config   Config
	sessions *session.Manager
	uploads  upload.Store
	metrics  *middleware.Metrics
	gatherer prometheus.Gatherer
	tracing  []middleware.OTelOption
	traced   bool
	logger   *slog.Logger

	upgrader websocket.Upgrader
	router   chi.Router

	// Open WebSocket connections, closed on shutdown.
	connsMu sync.Mutex
	conns   map[*viewerConn]struct{}
	connsWG sync.WaitGroup

	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithUploadStore enables the upload endpoints backed by store.
func WithUploadStore(store upload.Store) Option {
	return func(s *Server) {
		s.uploads = store
	}
}

// WithMetrics records request and operation metrics on m. gatherer backs
// the metrics endpoint; nil means prometheus.DefaultGatherer.
func WithMetrics(m *middleware.Metrics, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = gatherer
	}
}

// WithTracing wraps every request in an OpenTelemetry span.
func WithTracing(opts ...middleware.OTelOption) Option {
	return func(s *Server) {
		s.traced = true
		s.tracing = opts
	}
}

// New creates a server for the sessions in manager.
func New(config Config, sessions *session.Manager, opts ...Option) *Server {
	if config.Upload == nil {
		config.Upload = upload.DefaultConfig()
	}
	config.WebSocket.applyDefaults()

	s := &Server{
		config:   config,
		sessions: sessions,
		logger:   slog.Default(),
		conns:    make(map[*viewerConn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	s.logger = s.logger.With("component", "server")

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(config.AllowedOrigins),
	}
	s.router = s.routes()

	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run listens on the configured address and serves until ctx is done, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return cverrors.New("E141").WithDetail(err.Error()).Wrap(err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", ln.Addr().String())
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err

	case <-ctx.Done():
		s.logger.Info("shutting down...")
		timeout := s.config.ShutdownTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown stops accepting requests, closes viewer connections and waits
// for in-flight requests to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		// Hijacked WebSocket connections are not tracked by http.Server.
		err = s.httpServer.Shutdown(ctx)
	}

	s.connsMu.Lock()
	for c := range s.conns {
		c.close()
	}
	s.connsMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.connsWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}

	if err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}
	s.logger.Info("server shutdown complete")
	return nil
}

// metricsHandler serves the Prometheus scrape endpoint.
func (s *Server) metricsHandler() http.Handler {
	return promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
}

func (s *Server) trackConn(c *viewerConn) {
	s.connsMu.Lock()
	s.conns[c] = struct{}{}
	s.connsWG.Add(1)
	s.connsMu.Unlock()
}

func (s *Server) untrackConn(c *viewerConn) {
	s.connsMu.Lock()
	if _, ok := s.conns[c]; ok {
		delete(s.conns, c)
		s.connsWG.Done()
	}
	s.connsMu.Unlock()
}
