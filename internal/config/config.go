package config

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cephview/cephview/internal/errors"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "localhost:8080"

	// DefaultStaticDir is the default directory for viewer assets.
	DefaultStaticDir = "public"

	// DefaultUploadDir is the default directory for disk uploads.
	DefaultUploadDir = "uploads"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "CEPHVIEW_"
)

// FileNames are the configuration files LoadDir looks for, in order.
var FileNames = []string{"cephview.json", "cephview.yaml", "cephview.yml"}

// Config represents the complete server configuration.
type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server"`
	Static  StaticConfig  `json:"static" yaml:"static"`
	Session SessionConfig `json:"session" yaml:"session"`
	Upload  UploadConfig  `json:"upload" yaml:"upload"`
	Log     LogConfig     `json:"log" yaml:"log"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Addr is the host:port to listen on.
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`

	// ReadHeaderTimeout bounds reading request headers (e.g., "10s").
	ReadHeaderTimeout string `json:"readHeaderTimeout,omitempty" yaml:"readHeaderTimeout,omitempty"`

	// ShutdownTimeout bounds graceful shutdown (e.g., "15s").
	ShutdownTimeout string `json:"shutdownTimeout,omitempty" yaml:"shutdownTimeout,omitempty"`

	// AllowedOrigins lists origins allowed to open WebSockets. Empty means
	// same-origin only.
	AllowedOrigins []string `json:"allowedOrigins,omitempty" yaml:"allowedOrigins,omitempty"`

	// TrustProxy takes client IPs from X-Forwarded-For / X-Real-IP.
	TrustProxy bool `json:"trustProxy,omitempty" yaml:"trustProxy,omitempty"`
}

// StaticConfig contains static file serving configuration.
type StaticConfig struct {
	// Dir is the directory containing the viewer's static files. Empty
	// disables static serving.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// SessionConfig contains session manager settings.
type SessionConfig struct {
	MaxSessions      int `json:"maxSessions,omitempty" yaml:"maxSessions,omitempty"`
	MaxSessionsPerIP int `json:"maxSessionsPerIP,omitempty" yaml:"maxSessionsPerIP,omitempty"`

	// IdleTimeout ends sessions without activity (e.g., "30m").
	IdleTimeout string `json:"idleTimeout,omitempty" yaml:"idleTimeout,omitempty"`

	// CleanupInterval is how often idle sessions are swept (e.g., "1m").
	CleanupInterval string `json:"cleanupInterval,omitempty" yaml:"cleanupInterval,omitempty"`

	// Eviction is "lru" or "none".
	Eviction string `json:"eviction,omitempty" yaml:"eviction,omitempty"`

	// PermissiveActive lets setActiveImage accept unknown image IDs.
	PermissiveActive bool `json:"permissiveActive,omitempty" yaml:"permissiveActive,omitempty"`
}

// UploadConfig contains image payload storage settings.
type UploadConfig struct {
	// Backend is "disk", "s3" or "none".
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`

	// Dir is the directory for the disk backend.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`

	// MaxFileSize is the upload size limit in bytes.
	MaxFileSize int64 `json:"maxFileSize,omitempty" yaml:"maxFileSize,omitempty"`

	// MaxAge is how long uploads are kept (e.g., "24h").
	MaxAge string `json:"maxAge,omitempty" yaml:"maxAge,omitempty"`

	// CleanupInterval is how often expired uploads are removed (e.g., "1h").
	CleanupInterval string `json:"cleanupInterval,omitempty" yaml:"cleanupInterval,omitempty"`

	S3 S3Config `json:"s3,omitempty" yaml:"s3,omitempty"`
}

// S3Config contains settings for the S3 upload backend.
type S3Config struct {
	Bucket          string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix          string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Region          string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint        string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	AccessKeyID     string `json:"accessKeyId,omitempty" yaml:"accessKeyId,omitempty"`
	SecretAccessKey string `json:"secretAccessKey,omitempty" yaml:"secretAccessKey,omitempty"`
	UsePathStyle    bool   `json:"usePathStyle,omitempty" yaml:"usePathStyle,omitempty"`

	// URLExpiry is how long presigned URLs stay valid (e.g., "15m").
	URLExpiry string `json:"urlExpiry,omitempty" yaml:"urlExpiry,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `json:"level,omitempty" yaml:"level,omitempty"`

	// Format is "text" or "json".
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	// Disabled turns off the metrics endpoint and collectors.
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`

	// Path is the scrape endpoint (default "/metrics").
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Namespace prefixes every metric name (default "cephview").
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	// Enabled wraps requests in spans from the global tracer provider.
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`

	// TracerName names the tracer (default "cephview").
	TracerName string `json:"tracerName,omitempty" yaml:"tracerName,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// LoadDir looks for a configuration file in dir.
func LoadDir(dir string) (*Config, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New("E124").
		WithDetail("No cephview.json or cephview.yaml found in " + dir).
		WithSuggestion("Run 'cephview config init' to create one")
}

// LoadFile reads configuration from the specified file path. The format is
// chosen by extension: .yaml and .yml are YAML, everything else JSON.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E124").
				WithDetail("No configuration file exists at " + path).
				WithSuggestion("Run 'cephview config init' to create one")
		}
		return nil, errors.New("E120").Wrap(err)
	}

	cfg := &Config{}
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, errors.New("E121").
			WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error())
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// SaveTo writes the configuration to path, as YAML or JSON by extension.
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return errors.New("E120").Wrap(err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New("E120").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// ApplyEnv overrides fields from CEPHVIEW_* variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	str := func(name string, dst *string) {
		if v := getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}

	str("ADDR", &c.Server.Addr)
	str("STATIC_DIR", &c.Static.Dir)
	str("SESSION_IDLE_TIMEOUT", &c.Session.IdleTimeout)
	str("UPLOAD_BACKEND", &c.Upload.Backend)
	str("UPLOAD_DIR", &c.Upload.Dir)
	str("S3_BUCKET", &c.Upload.S3.Bucket)
	str("S3_PREFIX", &c.Upload.S3.Prefix)
	str("S3_REGION", &c.Upload.S3.Region)
	str("S3_ENDPOINT", &c.Upload.S3.Endpoint)
	str("S3_ACCESS_KEY_ID", &c.Upload.S3.AccessKeyID)
	str("S3_SECRET_ACCESS_KEY", &c.Upload.S3.SecretAccessKey)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v := getenv(EnvPrefix + "MAX_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Session.MaxSessions = n
		}
	}
	boolean := func(name string, dst *bool) {
		if v := getenv(EnvPrefix + name); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	boolean("TRACING", &c.Tracing.Enabled)
	boolean("TRUST_PROXY", &c.Server.TrustProxy)
	boolean("METRICS_DISABLED", &c.Metrics.Disabled)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.ReadHeaderTimeout == "" {
		c.Server.ReadHeaderTimeout = "10s"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "15s"
	}

	if c.Session.MaxSessions == 0 {
		c.Session.MaxSessions = 10000
	}
	if c.Session.MaxSessionsPerIP == 0 {
		c.Session.MaxSessionsPerIP = 100
	}
	if c.Session.IdleTimeout == "" {
		c.Session.IdleTimeout = "30m"
	}
	if c.Session.CleanupInterval == "" {
		c.Session.CleanupInterval = "1m"
	}
	if c.Session.Eviction == "" {
		c.Session.Eviction = "lru"
	}

	if c.Upload.Backend == "" {
		c.Upload.Backend = "disk"
	}
	if c.Upload.Dir == "" {
		c.Upload.Dir = DefaultUploadDir
	}
	if c.Upload.MaxFileSize == 0 {
		c.Upload.MaxFileSize = 20 * 1024 * 1024
	}
	if c.Upload.MaxAge == "" {
		c.Upload.MaxAge = "24h"
	}
	if c.Upload.CleanupInterval == "" {
		c.Upload.CleanupInterval = "1h"
	}
	if c.Upload.S3.URLExpiry == "" {
		c.Upload.S3.URLExpiry = "15m"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "cephview"
	}
	if c.Tracing.TracerName == "" {
		c.Tracing.TracerName = "cephview"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	_, port, err := net.SplitHostPort(c.Server.Addr)
	if err != nil {
		return errors.New("E122").WithDetail(err.Error())
	}
	if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		return errors.New("E122").
			WithDetail("Port must be between 0 and 65535, got " + port)
	}

	durations := map[string]string{
		"server.readHeaderTimeout": c.Server.ReadHeaderTimeout,
		"server.shutdownTimeout":   c.Server.ShutdownTimeout,
		"session.idleTimeout":      c.Session.IdleTimeout,
		"session.cleanupInterval":  c.Session.CleanupInterval,
		"upload.maxAge":            c.Upload.MaxAge,
		"upload.cleanupInterval":   c.Upload.CleanupInterval,
		"upload.s3.urlExpiry":      c.Upload.S3.URLExpiry,
	}
	for field, v := range durations {
		if d, err := time.ParseDuration(v); err != nil || d < 0 {
			return invalid(field, "must be a non-negative duration like \"30s\", got "+strconv.Quote(v))
		}
	}

	if c.Session.MaxSessions < 0 || c.Session.MaxSessionsPerIP < 0 {
		return invalid("session", "limits must not be negative")
	}
	switch c.Session.Eviction {
	case "lru", "none":
	default:
		return invalid("session.eviction", "must be \"lru\" or \"none\"")
	}

	switch c.Upload.Backend {
	case "disk", "none":
	case "s3":
		if c.Upload.S3.Bucket == "" {
			return invalid("upload.s3.bucket", "is required for the s3 backend")
		}
		if c.Upload.S3.Region == "" {
			return invalid("upload.s3.region", "is required for the s3 backend")
		}
	default:
		return invalid("upload.backend", "must be \"disk\", \"s3\" or \"none\"")
	}
	if c.Upload.MaxFileSize < 0 {
		return invalid("upload.maxFileSize", "must not be negative")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level", "must be debug, info, warn or error")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return invalid("log.format", "must be \"text\" or \"json\"")
	}

	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return invalid("metrics.path", "must start with /")
	}
	return nil
}

// Duration returns a parsed duration field, or fallback if it does not parse.
// Call Validate first to surface malformed values.
func Duration(v string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func invalid(field, msg string) error {
	return errors.New("E123").WithDetail(field + " " + msg)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
