package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Fatalf("ListenAddr = %q, want :9090", cfg.ListenAddr)
	}
	if cfg.SQLiteDSN == "" {
		t.Fatal("SQLiteDSN default must not be empty")
	}
	if cfg.MetricsAddr != "" {
		t.Fatal("metrics listener must default to disabled")
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("ShutdownTimeout = %v, want 10s", cfg.ShutdownTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RIDESHARE_LISTEN_ADDR", "127.0.0.1:7777")
	t.Setenv("RIDESHARE_SQLITE_DSN", "file:test.db")
	t.Setenv("RIDESHARE_METRICS_ADDR", ":2112")
	t.Setenv("RIDESHARE_LOG_LEVEL", "DEBUG")
	t.Setenv("RIDESHARE_SHUTDOWN_TIMEOUT", "3s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:7777" {
		t.Fatalf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.SQLiteDSN != "file:test.db" {
		t.Fatalf("SQLiteDSN = %q", cfg.SQLiteDSN)
	}
	if cfg.MetricsAddr != ":2112" {
		t.Fatalf("MetricsAddr = %q", cfg.MetricsAddr)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q, want lowercased debug", cfg.LogLevel)
	}
	if cfg.ShutdownTimeout != 3*time.Second {
		t.Fatalf("ShutdownTimeout = %v", cfg.ShutdownTimeout)
	}
}

func TestLoadRejectsInvalidTimeout(t *testing.T) {
	t.Setenv("RIDESHARE_SHUTDOWN_TIMEOUT", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("Load should reject an unparsable shutdown timeout")
	}
}
