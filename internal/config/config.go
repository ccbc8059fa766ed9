// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) initializer to build a Config with defaults.
// - All loading functions accept context.Context as the first parameter.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// Store drivers accepted by store_driver.
const (
	DriverREST   = "rest"
	DriverSQLite = "sqlite"
)

// maxDirectoryPageSize is the largest page the user directory will serve.
const maxDirectoryPageSize = 1000

// metricNamespace is the legacy Prometheus name charset.
var metricNamespace = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the persistence backend: rest or sqlite.
	StoreDriver string `koanf:"store_driver"`

	// StoreURL is the base URL of the hosted database (rest driver).
	StoreURL string `koanf:"store_url"`

	// ServiceKey authenticates against the hosted database (rest driver).
	ServiceKey string `koanf:"service_key"`

	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string `koanf:"sqlite_path"`

	// SQLiteSeedUsers are emails added to the sqlite user directory on open.
	SQLiteSeedUsers []string `koanf:"sqlite_seed_users"`

	// RequestTimeoutMS bounds each outbound store call.
	RequestTimeoutMS int `koanf:"request_timeout_ms"`

	// DirectoryPageSize and DirectoryMaxPages bound the user directory scan.
	DirectoryPageSize int `koanf:"directory_page_size"`
	DirectoryMaxPages int `koanf:"directory_max_pages"`

	// DedupeSize sets the size of the delivery deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// IntakeAllowAnonymous lets intake insert projects without an owner
	// when no identity can be resolved.
	IntakeAllowAnonymous bool `koanf:"intake_allow_anonymous"`

	// LowQualityPhrases overrides the answers scored as low quality.
	// Empty keeps the built-in list.
	LowQualityPhrases []string `koanf:"low_quality_phrases"`

	// MetricsEnabled turns metric recording on or off. /metrics is served either way.
	MetricsEnabled bool `koanf:"metrics_enabled"`

	// MetricsNamespace prefixes every exported metric name.
	MetricsNamespace string `koanf:"metrics_namespace"`
}

// New creates a Config populated with defaults. The context is reserved for
// future use.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":8080",
		StoreDriver:       DriverREST,
		SQLitePath:        "tallyscore.db",
		RequestTimeoutMS:  10_000,
		DirectoryPageSize: maxDirectoryPageSize,
		DirectoryMaxPages: 50,
		DedupeSize:        50_000,
		MetricsEnabled:    true,
		MetricsNamespace:  "tally",
	}
}

// RequestTimeout returns RequestTimeoutMS as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format %q must be text or json", ErrInvalidConfig, c.LogFormat)
	}
	switch c.StoreDriver {
	case DriverREST:
		if c.StoreURL == "" || c.ServiceKey == "" {
			return fmt.Errorf("%w: rest driver requires store_url and service_key", ErrInvalidConfig)
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite driver requires sqlite_path", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	if c.RequestTimeoutMS <= 0 {
		return fmt.Errorf("%w: request_timeout_ms must be positive", ErrInvalidConfig)
	}
	if c.DirectoryPageSize < 1 || c.DirectoryPageSize > maxDirectoryPageSize {
		return fmt.Errorf("%w: directory_page_size must be within 1..%d", ErrInvalidConfig, maxDirectoryPageSize)
	}
	if c.DirectoryMaxPages < 1 {
		return fmt.Errorf("%w: directory_max_pages must be positive", ErrInvalidConfig)
	}
	if c.DedupeSize < 1 {
		return fmt.Errorf("%w: dedupe_size must be positive", ErrInvalidConfig)
	}
	if !metricNamespace.MatchString(c.MetricsNamespace) {
		return fmt.Errorf("%w: metrics_namespace %q must match %s", ErrInvalidConfig, c.MetricsNamespace, metricNamespace)
	}
	return nil
}
