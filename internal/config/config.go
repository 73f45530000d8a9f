// Package config provides centralized configuration management for rulesync.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Supported values for DatabaseConfig.Driver.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Database DatabaseConfig
	Sync     SyncConfig
	Lock     LockConfig
	Logging  LoggingConfig
}

// DatabaseConfig holds row store connection settings.
type DatabaseConfig struct {
	// Driver selects the row store: postgres or sqlite (default: postgres)
	Driver string `env:"DB_DRIVER" default:"postgres"`

	// URL is the connection string, or the database file path for sqlite (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// SyncConfig holds reconciliation settings.
type SyncConfig struct {
	// Timeout bounds a whole sync, lock wait included (default: 30s)
	Timeout time.Duration `env:"SYNC_TIMEOUT" default:"30s"`

	// DuplicatePolicy is keep or collapse (default: keep)
	DuplicatePolicy string `env:"SYNC_DUPLICATE_POLICY" default:"keep"`

	// RequireVersion rejects syncs submitted without a version token (default: false)
	RequireVersion bool `env:"SYNC_REQUIRE_VERSION" default:"false"`
}

// LockConfig holds per-domain sync lock settings.
type LockConfig struct {
	// RedisURL enables the distributed lock; empty uses an in-process lock
	RedisURL string `env:"LOCK_REDIS_URL"`

	// TTL is how long a held lock survives a crashed holder (default: 30s)
	TTL time.Duration `env:"LOCK_TTL" default:"30s"`

	// Prefix namespaces lock keys in Redis (default: rulesync:lock:)
	Prefix string `env:"LOCK_PREFIX" default:"rulesync:lock:"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Distributed reports whether syncs are serialized through Redis.
func (c *LockConfig) Distributed() bool {
	return c.RedisURL != ""
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Sprintf("DB_DRIVER (%q) must be one of: postgres, sqlite", c.Database.Driver))
	}
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}

	// Sync validation
	if c.Sync.Timeout <= 0 {
		errs = append(errs, "SYNC_TIMEOUT must be positive")
	}
	switch strings.ToLower(c.Sync.DuplicatePolicy) {
	case "keep", "collapse":
	default:
		errs = append(errs, fmt.Sprintf("SYNC_DUPLICATE_POLICY (%q) must be one of: keep, collapse", c.Sync.DuplicatePolicy))
	}

	// Lock validation
	if c.Lock.TTL <= 0 {
		errs = append(errs, "LOCK_TTL must be positive")
	}
	if c.Lock.Distributed() {
		if _, err := url.Parse(c.Lock.RedisURL); err != nil {
			errs = append(errs, fmt.Sprintf("LOCK_REDIS_URL is not a valid URL: %v", err))
		}
		if c.Lock.TTL < c.Sync.Timeout {
			errs = append(errs, fmt.Sprintf("LOCK_TTL (%s) must be >= SYNC_TIMEOUT (%s)", c.Lock.TTL, c.Sync.Timeout))
		}
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Connection strings are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Database: {Driver: %q, URL: [MASKED], MaxConns: %d, MinConns: %d}, ",
		c.Database.Driver, c.Database.MaxConns, c.Database.MinConns))
	b.WriteString(fmt.Sprintf("Sync: {Timeout: %s, DuplicatePolicy: %q, RequireVersion: %v}, ",
		c.Sync.Timeout, c.Sync.DuplicatePolicy, c.Sync.RequireVersion))
	redis := "[NONE]"
	if c.Lock.Distributed() {
		redis = "[MASKED]"
	}
	b.WriteString(fmt.Sprintf("Lock: {RedisURL: %s, TTL: %s, Prefix: %q}, ", redis, c.Lock.TTL, c.Lock.Prefix))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
