package main

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cephview/cephview/internal/config"
	"github.com/cephview/cephview/internal/errors"
	"github.com/cephview/cephview/pkg/middleware"
	"github.com/cephview/cephview/pkg/overlay"
	"github.com/cephview/cephview/pkg/server"
	"github.com/cephview/cephview/pkg/session"
	"github.com/cephview/cephview/pkg/upload"
)

type serveOptions struct {
	configPath string
	addr       string
	staticDir  string
	logLevel   string
}

func serveCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the comparison server",
		Long: `Start the HTTP and WebSocket server.

Configuration is read from cephview.json or cephview.yaml in the
working directory (or --config), then CEPHVIEW_* environment
variables, then the flags below.

Examples:
  cephview serve
  cephview serve --addr=0.0.0.0:8080
  cephview serve --config=/etc/cephview.yaml --log-level=debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := resolveConfig(opts, os.Getenv)
			if err != nil {
				return err
			}
			printBanner()
			info("listening on http://%s", cfg.Server.Addr)
			return runServe(ctx, cfg, os.Stderr)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default: cephview.json or cephview.yaml in the working directory)")
	cmd.Flags().StringVarP(&opts.addr, "addr", "a", "", "Address to listen on (default from config)")
	cmd.Flags().StringVar(&opts.staticDir, "static", "", "Directory with viewer assets (default from config)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error")

	return cmd
}

// resolveConfig layers file, environment and flags, then validates.
func resolveConfig(opts serveOptions, getenv func(string) string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.LoadDir(".")
		var e *errors.Error
		if stderrors.As(err, &e) && e.Code == "E124" {
			cfg, err = config.New(), nil
		}
	}
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnv(getenv)

	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if opts.staticDir != "" {
		cfg.Static.Dir = opts.staticDir
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runServe runs the server and the upload sweeper until ctx is done or
// either fails.
func runServe(ctx context.Context, cfg *config.Config, logOut io.Writer) error {
	logger := newLogger(cfg.Log, logOut)
	slog.SetDefault(logger)

	var (
		metrics  *middleware.Metrics
		gatherer prometheus.Gatherer
	)
	if !cfg.Metrics.Disabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = middleware.NewMetrics(
			middleware.WithNamespace(cfg.Metrics.Namespace),
			middleware.WithRegistry(reg),
		)
		gatherer = reg
	}

	sessions := session.NewManager(sessionConfig(cfg, metrics), logger)

	store, err := newUploadStore(cfg.Upload)
	if err != nil {
		_ = sessions.Shutdown(context.Background())
		return err
	}

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithMetrics(metrics, gatherer),
	}
	if store != nil {
		opts = append(opts, server.WithUploadStore(store))
	}
	if cfg.Tracing.Enabled {
		opts = append(opts, server.WithTracing(middleware.WithTracerName(cfg.Tracing.TracerName)))
	}
	srv := server.New(serverConfig(cfg), sessions, opts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if store != nil {
		g.Go(func() error {
			sweepUploads(gctx, store,
				config.Duration(cfg.Upload.CleanupInterval, time.Hour),
				config.Duration(cfg.Upload.MaxAge, 24*time.Hour),
				logger)
			return nil
		})
	}
	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		config.Duration(cfg.Server.ShutdownTimeout, 15*time.Second))
	defer cancel()
	if serr := sessions.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	return err
}

// sweepUploads removes expired uploads every interval until ctx is done.
func sweepUploads(ctx context.Context, store upload.Store, interval, maxAge time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Cleanup(ctx, maxAge); err != nil && ctx.Err() == nil {
				logger.Warn("upload cleanup failed", "error", err)
			}
		}
	}
}

func newLogger(cfg config.LogConfig, out io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

func sessionConfig(cfg *config.Config, metrics *middleware.Metrics) session.Config {
	sc := session.DefaultConfig()
	sc.MaxSessions = cfg.Session.MaxSessions
	sc.MaxSessionsPerIP = cfg.Session.MaxSessionsPerIP
	sc.IdleTimeout = config.Duration(cfg.Session.IdleTimeout, sc.IdleTimeout)
	sc.CleanupInterval = config.Duration(cfg.Session.CleanupInterval, sc.CleanupInterval)
	if cfg.Session.Eviction == "none" {
		sc.EvictionPolicy = session.EvictionNone
	}
	if cfg.Session.PermissiveActive {
		sc.RegistryOptions = append(sc.RegistryOptions, overlay.WithPermissiveActive())
	}
	sc.OnStart = func(*session.Session) {
		metrics.RecordSessionStart()
	}
	sc.OnEnd = func(_ *session.Session, reason session.EndReason) {
		metrics.RecordSessionEnd(reason.String())
	}
	return sc
}

func serverConfig(cfg *config.Config) server.Config {
	sc := server.DefaultConfig()
	sc.Addr = cfg.Server.Addr
	sc.ReadHeaderTimeout = config.Duration(cfg.Server.ReadHeaderTimeout, sc.ReadHeaderTimeout)
	sc.ShutdownTimeout = config.Duration(cfg.Server.ShutdownTimeout, sc.ShutdownTimeout)
	sc.AllowedOrigins = cfg.Server.AllowedOrigins
	sc.TrustProxy = cfg.Server.TrustProxy
	sc.StaticDir = cfg.Static.Dir
	if cfg.Metrics.Disabled {
		sc.MetricsPath = ""
	} else {
		sc.MetricsPath = cfg.Metrics.Path
	}

	uc := upload.DefaultConfig()
	uc.MaxFileSize = cfg.Upload.MaxFileSize
	uc.MaxAge = config.Duration(cfg.Upload.MaxAge, uc.MaxAge)
	sc.Upload = uc
	return sc
}

// newUploadStore builds the configured backend. The "none" backend returns
// a nil store, which disables the upload routes.
func newUploadStore(cfg config.UploadConfig) (upload.Store, error) {
	switch cfg.Backend {
	case "none":
		return nil, nil
	case "s3":
		client := upload.NewS3Client(upload.S3ClientOptions{
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
		})
		store := upload.NewS3Store(client, cfg.S3.Bucket, cfg.S3.Prefix, cfg.MaxFileSize).
			WithURLExpiry(config.Duration(cfg.S3.URLExpiry, 15*time.Minute))
		return store, nil
	default:
		store, err := upload.NewDiskStore(cfg.Dir, cfg.MaxFileSize)
		if err != nil {
			return nil, errors.New("E131").WithDetail("Cannot create upload directory " + cfg.Dir).Wrap(err)
		}
		return store, nil
	}
}
