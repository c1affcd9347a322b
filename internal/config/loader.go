package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config captures environment driven configuration values for the rideshare
// server process.
type Config struct {
	ListenAddr      string
	SQLiteDSN       string
	MetricsAddr     string
	LogLevel        string
	ShutdownTimeout time.Duration
}

// Load parses configuration values from the current process environment.
//
// Every field has a sensible default so the binary runs locally without
// setup; invalid values are collected and reported together.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:      ":9090",
		SQLiteDSN:       "file:rideshare.db?_pragma=foreign_keys(1)",
		LogLevel:        "info",
		ShutdownTimeout: 10 * time.Second,
	}

	invalid := make([]string, 0, 1)

	if addr := strings.TrimSpace(os.Getenv("RIDESHARE_LISTEN_ADDR")); addr != "" {
		cfg.ListenAddr = addr
	}

	if dsn := strings.TrimSpace(os.Getenv("RIDESHARE_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	// Empty keeps the metrics listener disabled.
	cfg.MetricsAddr = strings.TrimSpace(os.Getenv("RIDESHARE_METRICS_ADDR"))

	if level := strings.TrimSpace(os.Getenv("RIDESHARE_LOG_LEVEL")); level != "" {
		cfg.LogLevel = strings.ToLower(level)
	}

	if raw := strings.TrimSpace(os.Getenv("RIDESHARE_SHUTDOWN_TIMEOUT")); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil || timeout <= 0 {
			invalid = append(invalid, "RIDESHARE_SHUTDOWN_TIMEOUT")
		} else {
			cfg.ShutdownTimeout = timeout
		}
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}
