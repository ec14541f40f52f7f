// Package config provides application configuration management.
// Process settings come from environment variables following 12-factor
// principles; probe definitions come from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all process configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Path of the YAML plugin configuration (databases, storageIndex, probes)
	ProbesConfig string `env:"PROBES_CONFIG,required"`

	// Dummy keeps probes inspectable but disables storage and timers
	Dummy bool `env:"DUMMY" envDefault:"false"`

	// Event stream (Redis). Leave empty to accept events over HTTP only.
	RedisURL string `env:"REDIS_URL"`

	// Argon2id hash of the bearer token required on POST /v1/events.
	// Leave empty to accept unauthenticated events.
	IngestTokenHash string `env:"INGEST_TOKEN_HASH"`

	// Engine tuning
	WatcherQueueSize int           `env:"WATCHER_QUEUE_SIZE" envDefault:"1024"`
	FlushTimeout     time.Duration `env:"FLUSH_TIMEOUT" envDefault:"0s"`

	// Stream consumer tuning
	StreamBatchSize    int           `env:"STREAM_BATCH_SIZE" envDefault:"100"`
	StreamBlockTimeout time.Duration `env:"STREAM_BLOCK_TIMEOUT" envDefault:"5s"`
	StreamClaimIdle    time.Duration `env:"STREAM_CLAIM_IDLE" envDefault:"30s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Event ingestion rate limiting (per client IP, needs Redis)
	RateLimitEventsEnabled bool `env:"RATE_LIMIT_EVENTS_ENABLED" envDefault:"false"`
	RateLimitEventsRPS     int  `env:"RATE_LIMIT_EVENTS_RPS" envDefault:"500"`
	RateLimitEventsBurst   int  `env:"RATE_LIMIT_EVENTS_BURST" envDefault:"1000"`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// StreamEnabled reports whether events are also consumed from Redis.
func (c *Config) StreamEnabled() bool {
	return c.RedisURL != ""
}

// Load parses environment variables and returns a Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// LoadPluginConfig reads the YAML plugin configuration at path into a raw
// map, ready for probe validation. An empty file yields an empty map.
func LoadPluginConfig(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plugin config: %w", err)
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse plugin config %s: %w", path, err)
	}
	return raw, nil
}
