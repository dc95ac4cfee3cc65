package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cephview/cephview/internal/config"
	"github.com/cephview/cephview/internal/errors"
	"github.com/cephview/cephview/pkg/session"
	"github.com/cephview/cephview/pkg/upload"
)

func TestResolveConfigLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cephview.yaml")
	os.WriteFile(path, []byte("server:\n  addr: \"127.0.0.1:9000\"\nlog:\n  level: warn\n"), 0o644)

	env := map[string]string{"CEPHVIEW_LOG_LEVEL": "error", "CEPHVIEW_STATIC_DIR": "env-static"}
	cfg, err := resolveConfig(serveOptions{configPath: path, staticDir: "flag-static"}, func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("resolveConfig: %v", err)
	}

	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Errorf("file value lost: addr=%q", cfg.Server.Addr)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("env should override file: level=%q", cfg.Log.Level)
	}
	if cfg.Static.Dir != "flag-static" {
		t.Errorf("flag should override env: static=%q", cfg.Static.Dir)
	}
}

func TestResolveConfigRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cephview.json")
	os.WriteFile(path, []byte(`{}`), 0o644)

	_, err := resolveConfig(serveOptions{configPath: path, logLevel: "chatty"}, func(string) string { return "" })
	if err == nil || !strings.Contains(err.Error(), "E123") {
		t.Errorf("expected E123, got %v", err)
	}

	_, err = resolveConfig(serveOptions{configPath: filepath.Join(dir, "missing.yaml")}, func(string) string { return "" })
	if err == nil || !strings.Contains(err.Error(), "E124") {
		t.Errorf("expected E124 for an explicit missing file, got %v", err)
	}
}

func TestNewUploadStore(t *testing.T) {
	store, err := newUploadStore(config.UploadConfig{Backend: "none"})
	if err != nil || store != nil {
		t.Errorf("none backend: store=%v err=%v", store, err)
	}

	store, err = newUploadStore(config.UploadConfig{Backend: "disk", Dir: filepath.Join(t.TempDir(), "up")})
	if err != nil {
		t.Fatalf("disk backend: %v", err)
	}
	if _, ok := store.(*upload.DiskStore); !ok {
		t.Errorf("disk backend returned %T", store)
	}

	store, err = newUploadStore(config.UploadConfig{
		Backend: "s3",
		S3:      config.S3Config{Bucket: "b", Region: "eu-west-1", URLExpiry: "5m"},
	})
	if err != nil {
		t.Fatalf("s3 backend: %v", err)
	}
	if _, ok := store.(*upload.S3Store); !ok {
		t.Errorf("s3 backend returned %T", store)
	}
}

func TestSessionConfig(t *testing.T) {
	cfg := config.New()
	cfg.Session.Eviction = "none"
	cfg.Session.IdleTimeout = "90s"
	cfg.Session.PermissiveActive = true

	sc := sessionConfig(cfg, nil)
	if sc.EvictionPolicy != session.EvictionNone {
		t.Errorf("EvictionPolicy = %v", sc.EvictionPolicy)
	}
	if sc.IdleTimeout != 90*time.Second {
		t.Errorf("IdleTimeout = %v", sc.IdleTimeout)
	}
	if len(sc.RegistryOptions) != 1 {
		t.Errorf("expected the permissive registry option, got %d options", len(sc.RegistryOptions))
	}

	// Hooks must tolerate disabled metrics.
	m := session.NewManager(sc, nil)
	defer m.Shutdown(context.Background())
	sess, err := m.Create("10.0.0.1")
	if err != nil {
		t.Fatal(err)
	}
	if !sess.Registry().SetActiveImage("not-yet-added") {
		t.Error("permissive registry should accept unknown active IDs")
	}
	m.End(sess.ID)
}

func TestRunServeStopsOnCancel(t *testing.T) {
	cfg := config.New()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Upload.Dir = t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- runServe(ctx, cfg, io.Discard) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("runServe returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runServe did not stop")
	}
}

func TestConfigInitAndShow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conf", "cephview.json")

	root := rootCmd()
	root.SetArgs([]string{"config", "init", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}

	root = rootCmd()
	root.SetArgs([]string{"config", "init", path})
	if err := root.Execute(); err == nil || !strings.Contains(err.Error(), "E150") {
		t.Errorf("config init should refuse to overwrite without --force, got %v", err)
	}

	var out bytes.Buffer
	root = rootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"config", "show", "--config", path, "--format", "json"})
	if err := root.Execute(); err != nil {
		t.Fatalf("config show: %v", err)
	}

	var shown config.Config
	if err := json.Unmarshal(out.Bytes(), &shown); err != nil {
		t.Fatalf("config show output is not JSON: %v\n%s", err, out.String())
	}
	if shown.Server.Addr != config.DefaultAddr || shown.Static.Dir != config.DefaultStaticDir {
		t.Errorf("unexpected config %+v", shown.Server)
	}
}

func TestVersionShort(t *testing.T) {
	var out bytes.Buffer
	root := rootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--short"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out.String()) != version {
		t.Errorf("version output = %q", out.String())
	}
}

func TestConfigShowRejectsUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cephview.json")
	os.WriteFile(path, []byte(`{}`), 0o644)

	root := rootCmd()
	root.SetOut(io.Discard)
	root.SetArgs([]string{"config", "show", "--config", path, "--format", "xml"})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "E150") {
		t.Fatalf("expected E150, got %v", err)
	}
}

func TestConfigureColors(t *testing.T) {
	t.Cleanup(errors.EnableColors)

	configureColors(false, func(string) string { return "" })
	if !errors.ColorsEnabled() {
		t.Error("colors should default to on")
	}

	configureColors(false, func(k string) string {
		if k == "NO_COLOR" {
			return "1"
		}
		return ""
	})
	if errors.ColorsEnabled() {
		t.Error("NO_COLOR should turn colors off")
	}

	configureColors(false, func(string) string { return "" })
	root := rootCmd()
	root.SetOut(io.Discard)
	root.SetArgs([]string{"--no-color", "version", "--short"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if errors.ColorsEnabled() {
		t.Error("--no-color should turn colors off")
	}
}
