// Package config loads service settings from the environment and an optional
// YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/eskomcalendar/calendarapi/internal/calendar/feed"
	"github.com/eskomcalendar/calendarapi/internal/feedcache"
)

// FileEnvVar names the YAML file overlaid on the defaults before env vars apply.
const FileEnvVar = "CALENDAR_CONFIG"

// Config holds all service settings.
type Config struct {
	Port      string `yaml:"port"`
	Env       string `yaml:"env"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	OutageFeedURL   string        `yaml:"outage_feed_url"`
	ScheduleBaseURL string        `yaml:"schedule_base_url"`
	FeedTimeout     time.Duration `yaml:"feed_timeout"`
	FeedMaxRetries  int           `yaml:"feed_max_retries"`

	// FeedRateLimit is outbound requests per second; zero or less disables pacing.
	FeedRateLimit float64 `yaml:"feed_rate_limit"`

	// Feed cache. Off unless CacheTTL is positive.
	CacheBackend string        `yaml:"cache_backend"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	RedisURL     string        `yaml:"redis_url"`
	BoltPath     string        `yaml:"bolt_path"`

	OTelEnabled  bool   `yaml:"otel_enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// DatabaseEnabled turns on the area archive; connection settings come from DB_*.
	DatabaseEnabled bool `yaml:"database_enabled"`

	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Port:               "8080",
		Env:                "development",
		LogLevel:           "info",
		LogFormat:          "json",
		OutageFeedURL:      feed.DefaultOutageFeedURL,
		ScheduleBaseURL:    feed.DefaultScheduleBaseURL,
		FeedTimeout:        30 * time.Second,
		FeedMaxRetries:     0,
		FeedRateLimit:      feed.DefaultRateLimit,
		CacheBackend:       feedcache.BackendNone,
		CacheTTL:           0,
		BoltPath:           "data/feeds.db",
		OTLPEndpoint:       "localhost:4317",
		RateLimitPerMinute: 100,
		ShutdownTimeout:    30 * time.Second,
	}
}

// Load applies, in order: defaults, the YAML file named by CALENDAR_CONFIG,
// then environment variables. The result is validated.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(FileEnvVar); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", FileEnvVar, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Port, "APP_PORT")
	setString(&c.Env, "APP_ENV")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")
	setString(&c.OutageFeedURL, "OUTAGE_FEED_URL")
	setString(&c.ScheduleBaseURL, "SCHEDULE_BASE_URL")
	setString(&c.CacheBackend, "FEED_CACHE_BACKEND")
	setString(&c.RedisURL, "REDIS_URL")
	setString(&c.BoltPath, "BOLT_PATH")
	setString(&c.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")

	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		c.OTelEnabled = v == "true"
	}
	if v := os.Getenv("DATABASE_ENABLED"); v != "" {
		c.DatabaseEnabled = v == "true"
	}

	return errors.Join(
		setDuration(&c.FeedTimeout, "FEED_TIMEOUT"),
		setDuration(&c.CacheTTL, "FEED_CACHE_TTL"),
		setDuration(&c.ShutdownTimeout, "SHUTDOWN_TIMEOUT"),
		setInt(&c.FeedMaxRetries, "FEED_MAX_RETRIES"),
		setInt(&c.RateLimitPerMinute, "RATE_LIMIT_PER_MINUTE"),
		setFloat(&c.FeedRateLimit, "FEED_RATE_LIMIT"),
	)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("APP_PORT is required")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("invalid LOG_FORMAT %q: must be json or console", c.LogFormat)
	}
	if c.OutageFeedURL == "" {
		return errors.New("OUTAGE_FEED_URL is required")
	}
	if c.ScheduleBaseURL == "" {
		return errors.New("SCHEDULE_BASE_URL is required")
	}
	if c.FeedTimeout <= 0 {
		return errors.New("FEED_TIMEOUT must be positive")
	}
	if c.FeedMaxRetries < 0 {
		return errors.New("FEED_MAX_RETRIES must not be negative")
	}
	if c.CacheTTL < 0 {
		return errors.New("FEED_CACHE_TTL must not be negative")
	}

	switch c.CacheBackend {
	case "", feedcache.BackendNone, feedcache.BackendMemory:
	case feedcache.BackendRedis:
		if c.CacheTTL > 0 && c.RedisURL == "" {
			return errors.New("FEED_CACHE_BACKEND is redis but REDIS_URL is not set")
		}
	case feedcache.BackendBolt:
		if c.CacheTTL > 0 && c.BoltPath == "" {
			return errors.New("FEED_CACHE_BACKEND is bolt but BOLT_PATH is not set")
		}
	default:
		return fmt.Errorf("invalid FEED_CACHE_BACKEND %q", c.CacheBackend)
	}

	if c.RateLimitPerMinute <= 0 {
		return errors.New("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

// CacheEnabled reports whether feeds are cached.
func (c *Config) CacheEnabled() bool {
	return c.CacheTTL > 0 && c.CacheBackend != "" && c.CacheBackend != feedcache.BackendNone
}

// CacheOptions returns the feed cache settings, selecting no backend when
// caching is disabled.
func (c *Config) CacheOptions() feedcache.Options {
	if !c.CacheEnabled() {
		return feedcache.Options{Backend: feedcache.BackendNone}
	}
	return feedcache.Options{
		Backend:  c.CacheBackend,
		RedisURL: c.RedisURL,
		BoltPath: c.BoltPath,
	}
}

// FeedClientRateLimit converts FeedRateLimit to the feed client's convention,
// where a negative value disables pacing.
func (c *Config) FeedClientRateLimit() float64 {
	if c.FeedRateLimit <= 0 {
		return -1
	}
	return c.FeedRateLimit
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = f
	return nil
}
