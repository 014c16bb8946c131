// Package config defines the engine configuration and how it is loaded.
//
// Values are layered: defaults from New, then an optional YAML file named by
// PICKEM_CONFIG, then PICKEM_* environment variables.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the slog handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the settlement job queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of settlement workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets how many inbound notification IDs are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// Store selects the pick and contest backend: memory or postgres.
	Store string `koanf:"store"`

	// DatabaseURL is the pgx connection string used when Store is postgres.
	DatabaseURL string `koanf:"database_url"`

	// NATSURL enables change notifications and the result feed when set.
	NATSURL string `koanf:"nats_url"`

	// NATSSubjectPrefix prefixes every published change notification subject.
	NATSSubjectPrefix string `koanf:"nats_subject_prefix"`

	// ResultFeedSubject is where the external result feed publishes finals.
	ResultFeedSubject string `koanf:"result_feed_subject"`

	// Timezone defines the calendar day of the contest slate.
	Timezone string `koanf:"timezone"`

	// SettleTimeoutMS bounds one asynchronous settlement.
	SettleTimeoutMS int `koanf:"settle_timeout_ms"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		QueueSize:           4096,
		WorkerCount:         runtime.NumCPU(),
		DedupeSize:          100_000,
		MaxLeaderboardLimit: 500,
		Store:               StoreMemory,
		NATSSubjectPrefix:   "pickem.events",
		ResultFeedSubject:   "pickem.results",
		Timezone:            "America/Chicago",
		SettleTimeoutMS:     30_000,
	}
}

// SettleTimeout returns SettleTimeoutMS as a duration.
func (c *Config) SettleTimeout() time.Duration {
	return time.Duration(c.SettleTimeoutMS) * time.Millisecond
}

// Location loads the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}
	return loc, nil
}

// Validate checks values that would otherwise fail late at start-up.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.Store != StoreMemory && c.Store != StorePostgres:
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.Store)
	case c.Store == StorePostgres && strings.TrimSpace(c.DatabaseURL) == "":
		return fmt.Errorf("%w: database_url is required for the postgres store", ErrInvalidConfig)
	case c.QueueSize < 1 || c.WorkerCount < 1 || c.DedupeSize < 1:
		return fmt.Errorf("%w: queue_size, worker_count and dedupe_size must be positive", ErrInvalidConfig)
	case c.MaxLeaderboardLimit < 1:
		return fmt.Errorf("%w: max_leaderboard_limit must be positive", ErrInvalidConfig)
	case c.SettleTimeoutMS < 1:
		return fmt.Errorf("%w: settle_timeout_ms must be positive", ErrInvalidConfig)
	}
	_, err := c.Location()
	return err
}
