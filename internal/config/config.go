// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Lookup    LookupConfig    `mapstructure:"lookup"`
	Database  DatabaseConfig  `mapstructure:"database"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int      `mapstructure:"port"`
	RequestTimeout  int      `mapstructure:"request_timeout_seconds"`
	ShutdownTimeout int      `mapstructure:"shutdown_timeout_seconds"`
	CORSOrigins     []string `mapstructure:"cors_origins"`
}

// FetchConfig configures the Devpost fetch client. Gallery and landing pages
// use the top-level budget; project pages use the tighter project_* budget.
type FetchConfig struct {
	TimeoutSeconds     int    `mapstructure:"timeout_seconds"`
	MaxRetries         int    `mapstructure:"max_retries"`
	BackoffMs          int    `mapstructure:"backoff_ms"`
	UserAgent          string `mapstructure:"user_agent"`
	ProjectTimeoutSec  int    `mapstructure:"project_timeout_seconds"`
	ProjectMaxRetries  int    `mapstructure:"project_max_retries"`
	ProjectBackoffMs   int    `mapstructure:"project_backoff_ms"`
	ProjectConcurrency int    `mapstructure:"project_concurrency"`
}

// LookupConfig governs the lookup orchestrator.
type LookupConfig struct {
	JobTimeoutSeconds int `mapstructure:"job_timeout_seconds"`
	ResultTTLSeconds  int `mapstructure:"result_ttl_seconds"`
}

// DatabaseConfig controls the Postgres pool. An empty DSN selects the
// in-memory store.
type DatabaseConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// RateLimitConfig caps lookup submissions per client IP hash.
type RateLimitConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	HourlyLimit int    `mapstructure:"hourly_limit"`
	DailyLimit  int    `mapstructure:"daily_limit"`
	Salt        string `mapstructure:"salt"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment. Environment variables use the
// HACKAPLAN prefix, e.g. HACKAPLAN_SERVER_PORT=9000.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HACKAPLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("fetch.timeout_seconds", 20)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.backoff_ms", 600)
	v.SetDefault("fetch.user_agent", "HackaplanBot/1.0")
	v.SetDefault("fetch.project_timeout_seconds", 8)
	v.SetDefault("fetch.project_max_retries", 2)
	v.SetDefault("fetch.project_backoff_ms", 250)
	v.SetDefault("fetch.project_concurrency", 6)
	v.SetDefault("lookup.job_timeout_seconds", 300)
	v.SetDefault("lookup.result_ttl_seconds", 1800)
	v.SetDefault("database.max_conns", 8)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.hourly_limit", 10)
	v.SetDefault("ratelimit.daily_limit", 40)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.MaxRetries <= 0 {
		return fmt.Errorf("fetch.max_retries must be > 0")
	}
	if c.Fetch.ProjectConcurrency <= 0 {
		return fmt.Errorf("fetch.project_concurrency must be > 0")
	}
	if c.Lookup.JobTimeoutSeconds <= 0 {
		return fmt.Errorf("lookup.job_timeout_seconds must be > 0")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.HourlyLimit <= 0 || c.RateLimit.DailyLimit <= 0 {
			return fmt.Errorf("ratelimit limits must be > 0 when ratelimit is enabled")
		}
		if c.RateLimit.Salt == "" {
			return fmt.Errorf("ratelimit.salt must be set when ratelimit is enabled")
		}
	}
	return nil
}

// FetchTimeout is the landing/gallery fetch budget as a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// FetchBackoff is the base backoff between fetch retries.
func (c Config) FetchBackoff() time.Duration {
	return time.Duration(c.Fetch.BackoffMs) * time.Millisecond
}

// ProjectTimeout is the per-project fetch budget.
func (c Config) ProjectTimeout() time.Duration {
	return time.Duration(c.Fetch.ProjectTimeoutSec) * time.Second
}

// ProjectBackoff is the base backoff between project fetch retries.
func (c Config) ProjectBackoff() time.Duration {
	return time.Duration(c.Fetch.ProjectBackoffMs) * time.Millisecond
}

// JobTimeout bounds one whole lookup crawl.
func (c Config) JobTimeout() time.Duration {
	return time.Duration(c.Lookup.JobTimeoutSeconds) * time.Second
}

// ResultTTL is the freshness window for reusing completed lookups.
func (c Config) ResultTTL() time.Duration {
	return time.Duration(c.Lookup.ResultTTLSeconds) * time.Second
}
