// Package config provides core service configuration - NO per-request state.
//
// This module contains only configuration relevant to the compiler service:
//   - Listener addresses
//   - Worker and cache bounds
//   - Live-session timing
//
// Environment parsing is centralized here; packages receive parsed structs,
// never raw environment lookups.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

// Config holds the service configuration.
type Config struct {
	// Listeners
	HTTPAddr    string `json:"http_addr" env:"LUMORA_HTTP_ADDR" envDefault:":8632"`
	TCPAddr     string `json:"tcp_addr" env:"LUMORA_TCP_ADDR" envDefault:""`
	MetricsAddr string `json:"metrics_addr" env:"LUMORA_METRICS_ADDR" envDefault:":9632"`

	// Project
	WatchDir string `json:"watch_dir" env:"LUMORA_WATCH_DIR" envDefault:"."`

	// Compiler
	Workers         int  `json:"workers" env:"LUMORA_WORKERS" envDefault:"0"` // 0 = host core count
	CacheMaxEntries int  `json:"cache_max_entries" env:"LUMORA_CACHE_MAX" envDefault:"100"`
	CacheTTLSeconds int  `json:"cache_ttl_seconds" env:"LUMORA_CACHE_TTL" envDefault:"60"`
	DisableCache    bool `json:"disable_cache" env:"LUMORA_DISABLE_CACHE" envDefault:"false"`

	// Live sessions
	BatchWindowMs    int `json:"batch_window_ms" env:"LUMORA_BATCH_WINDOW_MS" envDefault:"50"`
	PingIntervalSecs int `json:"ping_interval_seconds" env:"LUMORA_PING_INTERVAL" envDefault:"30"`
	PongTimeoutSecs  int `json:"pong_timeout_seconds" env:"LUMORA_PONG_TIMEOUT" envDefault:"60"`
	DeltaThreshold   int `json:"delta_threshold" env:"LUMORA_DELTA_THRESHOLD" envDefault:"50"`

	// Auth
	AuthToken string `json:"-" env:"LUMORA_AUTH_TOKEN" envDefault:""`

	// Observability
	OTLPEndpoint string `json:"otlp_endpoint" env:"LUMORA_OTLP_ENDPOINT" envDefault:""`
	LogLevel     string `json:"log_level" env:"LUMORA_LOG_LEVEL" envDefault:"info"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		HTTPAddr:         ":8632",
		MetricsAddr:      ":9632",
		WatchDir:         ".",
		CacheMaxEntries:  100,
		CacheTTLSeconds:  60,
		BatchWindowMs:    50,
		PingIntervalSecs: 30,
		PongTimeoutSecs:  60,
		DeltaThreshold:   50,
		LogLevel:         "info",
	}
}

// FromEnv parses the configuration from the environment, falling back to
// the defaults.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks bounds.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("http_addr is required")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.CacheMaxEntries < 0 {
		return fmt.Errorf("cache_max_entries must be >= 0, got %d", c.CacheMaxEntries)
	}
	if c.BatchWindowMs <= 0 {
		return fmt.Errorf("batch_window_ms must be > 0, got %d", c.BatchWindowMs)
	}
	if c.PongTimeoutSecs < c.PingIntervalSecs {
		return fmt.Errorf("pong_timeout_seconds (%d) must cover ping_interval_seconds (%d)",
			c.PongTimeoutSecs, c.PingIntervalSecs)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return nil
}

// BatchWindow returns the session batch window as a duration.
func (c *Config) BatchWindow() time.Duration {
	return time.Duration(c.BatchWindowMs) * time.Millisecond
}

// PingInterval returns the heartbeat period as a duration.
func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalSecs) * time.Second
}

// PongTimeout returns the heartbeat dead window as a duration.
func (c *Config) PongTimeout() time.Duration {
	return time.Duration(c.PongTimeoutSecs) * time.Second
}

// CacheTTL returns the AST cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}
