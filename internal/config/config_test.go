package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cephview/cephview/internal/errors"
)

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.Server.Addr != DefaultAddr {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, DefaultAddr)
	}
	if cfg.Session.MaxSessions != 10000 {
		t.Errorf("Session.MaxSessions = %d, want 10000", cfg.Session.MaxSessions)
	}
	if cfg.Session.Eviction != "lru" {
		t.Errorf("Session.Eviction = %q, want lru", cfg.Session.Eviction)
	}
	if cfg.Upload.Backend != "disk" {
		t.Errorf("Upload.Backend = %q, want disk", cfg.Upload.Backend)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want /metrics", cfg.Metrics.Path)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoadFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cephview.json")
	content := `{
		"server": {"addr": ":9090", "allowedOrigins": ["https://viewer.example"]},
		"session": {"idleTimeout": "5m", "permissiveActive": true},
		"log": {"level": "debug"}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr = %q, want :9090", cfg.Server.Addr)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "https://viewer.example" {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if !cfg.Session.PermissiveActive {
		t.Error("expected PermissiveActive")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	// Defaults still fill unspecified fields.
	if cfg.Session.CleanupInterval != "1m" {
		t.Errorf("Session.CleanupInterval = %q, want 1m", cfg.Session.CleanupInterval)
	}
	if cfg.Path() != path {
		t.Errorf("Path() = %q, want %q", cfg.Path(), path)
	}
}

func TestLoadFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cephview.yaml")
	content := `
server:
  addr: "0.0.0.0:8000"
upload:
  backend: s3
  maxFileSize: 1048576
  s3:
    bucket: ceph-images
    region: eu-west-1
    usePathStyle: true
tracing:
  enabled: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Upload.Backend != "s3" || cfg.Upload.S3.Bucket != "ceph-images" || !cfg.Upload.S3.UsePathStyle {
		t.Errorf("unexpected upload config: %+v", cfg.Upload)
	}
	if cfg.Upload.MaxFileSize != 1<<20 {
		t.Errorf("MaxFileSize = %d, want %d", cfg.Upload.MaxFileSize, 1<<20)
	}
	if !cfg.Tracing.Enabled {
		t.Error("expected tracing enabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.json"))
	assertCode(t, err, "E124")

	bad := filepath.Join(dir, "cephview.json")
	os.WriteFile(bad, []byte("{not json"), 0o644)
	_, err = LoadFile(bad)
	assertCode(t, err, "E121")

	badYAML := filepath.Join(dir, "cephview.yaml")
	os.WriteFile(badYAML, []byte("server: [unclosed"), 0o644)
	_, err = LoadFile(badYAML)
	assertCode(t, err, "E121")
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadDir(dir)
	assertCode(t, err, "E124")

	os.WriteFile(filepath.Join(dir, "cephview.yml"), []byte("log:\n  format: json\n"), 0o644)
	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want json", cfg.Log.Format)
	}

	// JSON wins when both exist.
	os.WriteFile(filepath.Join(dir, "cephview.json"), []byte(`{"log":{"format":"text"}}`), 0o644)
	cfg, err = LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want text", cfg.Log.Format)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"CEPHVIEW_ADDR":           ":7000",
		"CEPHVIEW_UPLOAD_BACKEND": "none",
		"CEPHVIEW_MAX_SESSIONS":   "5",
		"CEPHVIEW_TRACING":        "true",
		"CEPHVIEW_S3_BUCKET":      "b",
	}
	cfg := New()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.Server.Addr != ":7000" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Upload.Backend != "none" {
		t.Errorf("Upload.Backend = %q", cfg.Upload.Backend)
	}
	if cfg.Session.MaxSessions != 5 {
		t.Errorf("Session.MaxSessions = %d", cfg.Session.MaxSessions)
	}
	if !cfg.Tracing.Enabled {
		t.Error("expected tracing enabled")
	}
	if cfg.Upload.S3.Bucket != "b" {
		t.Errorf("S3.Bucket = %q", cfg.Upload.S3.Bucket)
	}
	// Unset variables leave values alone.
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		code   string
	}{
		{"bad addr", func(c *Config) { c.Server.Addr = "nope" }, "E122"},
		{"bad port", func(c *Config) { c.Server.Addr = ":70000" }, "E122"},
		{"bad duration", func(c *Config) { c.Session.IdleTimeout = "soon" }, "E123"},
		{"negative duration", func(c *Config) { c.Upload.MaxAge = "-1h" }, "E123"},
		{"bad eviction", func(c *Config) { c.Session.Eviction = "fifo" }, "E123"},
		{"bad backend", func(c *Config) { c.Upload.Backend = "ftp" }, "E123"},
		{"s3 without bucket", func(c *Config) { c.Upload.Backend = "s3"; c.Upload.S3.Region = "x" }, "E123"},
		{"s3 without region", func(c *Config) { c.Upload.Backend = "s3"; c.Upload.S3.Bucket = "x" }, "E123"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "E123"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "E123"},
		{"bad metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, "E123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.modify(cfg)
			assertCode(t, cfg.Validate(), tt.code)
		})
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"cephview.json", "cephview.yaml"} {
		path := filepath.Join(dir, name)
		cfg := New()
		cfg.Server.Addr = ":8181"
		cfg.Upload.S3.Bucket = "bucket"
		if err := cfg.SaveTo(path); err != nil {
			t.Fatalf("SaveTo(%s) failed: %v", name, err)
		}

		loaded, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile(%s) failed: %v", name, err)
		}
		if loaded.Server.Addr != ":8181" || loaded.Upload.S3.Bucket != "bucket" {
			t.Errorf("%s: round trip lost values: %+v", name, loaded)
		}
	}

	data, _ := os.ReadFile(filepath.Join(dir, "cephview.yaml"))
	if !strings.Contains(string(data), "server:\n") || !strings.Contains(string(data), "8181") {
		t.Errorf("expected YAML output, got:\n%s", data)
	}
}

func TestDuration(t *testing.T) {
	if d := Duration("90s", time.Second); d != 90*time.Second {
		t.Errorf("Duration(90s) = %v", d)
	}
	if d := Duration("junk", time.Second); d != time.Second {
		t.Errorf("Duration(junk) = %v, want fallback", d)
	}
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %s, got nil", code)
	}
	var e *errors.Error
	if !stderrors.As(err, &e) {
		t.Fatalf("expected *errors.Error, got %T: %v", err, err)
	}
	if e.Code != code {
		t.Errorf("expected code %s, got %s (%v)", code, e.Code, err)
	}
}
