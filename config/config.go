// Package config loads the lock subsystem configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// JournalConfig configures the optional PostgreSQL lock-event journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// Config is the top-level configuration.
type Config struct {
	// ConcurrencyLevel is the stripe count of each latch pool. Higher
	// reduces false contention at the cost of memory.
	ConcurrencyLevel int `yaml:"concurrency_level"`

	// LockTimeoutMs bounds each latch acquisition step. Zero waits forever.
	LockTimeoutMs int64 `yaml:"lock_timeout_ms"`

	// EventQueueCapacity bounds the lock table dispatch queue. On overflow
	// the oldest event is dropped.
	EventQueueCapacity int `yaml:"event_queue_capacity"`

	// MetricsListenAddr is the address lockmon serves Prometheus metrics
	// on. Empty disables the endpoint.
	MetricsListenAddr string `yaml:"metrics_listen_addr"`

	Journal JournalConfig `yaml:"journal"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		ConcurrencyLevel:   100,
		LockTimeoutMs:      0,
		EventQueueCapacity: 4096,
		MetricsListenAddr:  "",
	}
}

// Load reads the YAML file at path on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.ConcurrencyLevel < 1 {
		return fmt.Errorf("concurrency_level must be >= 1, got %d", c.ConcurrencyLevel)
	}
	if c.LockTimeoutMs < 0 {
		return fmt.Errorf("lock_timeout_ms must be >= 0, got %d", c.LockTimeoutMs)
	}
	if c.EventQueueCapacity < 1 {
		return fmt.Errorf("event_queue_capacity must be >= 1, got %d", c.EventQueueCapacity)
	}
	if c.Journal.Enabled && c.Journal.DSN == "" {
		return fmt.Errorf("journal.dsn must be set when the journal is enabled")
	}
	return nil
}

// LockTimeout returns the lock timeout as a duration. Zero means infinite.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutMs) * time.Millisecond
}
