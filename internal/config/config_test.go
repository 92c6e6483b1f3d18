package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eskomcalendar/calendarapi/internal/calendar/feed"
	"github.com/eskomcalendar/calendarapi/internal/feedcache"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, feed.DefaultOutageFeedURL, cfg.OutageFeedURL)
	assert.Equal(t, feed.DefaultScheduleBaseURL, cfg.ScheduleBaseURL)
	assert.Equal(t, 30*time.Second, cfg.FeedTimeout)
	assert.Equal(t, 0, cfg.FeedMaxRetries)
	assert.Equal(t, float64(feed.DefaultRateLimit), cfg.FeedRateLimit)
	assert.Equal(t, feedcache.BackendNone, cfg.CacheBackend)
	assert.Zero(t, cfg.CacheTTL)
	assert.False(t, cfg.CacheEnabled())
	assert.False(t, cfg.OTelEnabled)
	assert.False(t, cfg.DatabaseEnabled)
	assert.Equal(t, 100, cfg.RateLimitPerMinute)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("APP_ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "console")
	t.Setenv("OUTAGE_FEED_URL", "http://feeds.internal/outages.csv")
	t.Setenv("SCHEDULE_BASE_URL", "http://feeds.internal/generated/")
	t.Setenv("FEED_TIMEOUT", "5s")
	t.Setenv("FEED_MAX_RETRIES", "2")
	t.Setenv("FEED_RATE_LIMIT", "0.5")
	t.Setenv("FEED_CACHE_BACKEND", "redis")
	t.Setenv("FEED_CACHE_TTL", "2m")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("DATABASE_ENABLED", "true")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "30")
	t.Setenv("SHUTDOWN_TIMEOUT", "10s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, "http://feeds.internal/outages.csv", cfg.OutageFeedURL)
	assert.Equal(t, "http://feeds.internal/generated/", cfg.ScheduleBaseURL)
	assert.Equal(t, 5*time.Second, cfg.FeedTimeout)
	assert.Equal(t, 2, cfg.FeedMaxRetries)
	assert.Equal(t, 0.5, cfg.FeedRateLimit)
	assert.True(t, cfg.CacheEnabled())
	assert.Equal(t, feedcache.Options{Backend: feedcache.BackendRedis, RedisURL: "redis://localhost:6379/0", BoltPath: "data/feeds.db"}, cfg.CacheOptions())
	assert.True(t, cfg.OTelEnabled)
	assert.True(t, cfg.DatabaseEnabled)
	assert.Equal(t, 30, cfg.RateLimitPerMinute)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_YAMLOverlayThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calendar.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "7000"
log_level: warn
feed_timeout: 12s
cache_backend: memory
cache_ttl: 90s
`), 0o600))

	t.Setenv(FileEnvVar, path)
	t.Setenv("APP_PORT", "7001")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "7001", cfg.Port, "env wins over the file")
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 12*time.Second, cfg.FeedTimeout)
	assert.Equal(t, feedcache.BackendMemory, cfg.CacheBackend)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
	assert.Equal(t, feed.DefaultOutageFeedURL, cfg.OutageFeedURL, "unset keys keep defaults")
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv(FileEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), FileEnvVar)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "timeout not a duration", env: map[string]string{"FEED_TIMEOUT": "soon"}, want: "FEED_TIMEOUT"},
		{name: "timeout zero", env: map[string]string{"FEED_TIMEOUT": "0s"}, want: "FEED_TIMEOUT"},
		{name: "retries not a number", env: map[string]string{"FEED_MAX_RETRIES": "many"}, want: "FEED_MAX_RETRIES"},
		{name: "negative retries", env: map[string]string{"FEED_MAX_RETRIES": "-1"}, want: "FEED_MAX_RETRIES"},
		{name: "bad log level", env: map[string]string{"LOG_LEVEL": "loud"}, want: "LOG_LEVEL"},
		{name: "bad log format", env: map[string]string{"LOG_FORMAT": "xml"}, want: "LOG_FORMAT"},
		{name: "unknown backend", env: map[string]string{"FEED_CACHE_BACKEND": "memcached"}, want: "FEED_CACHE_BACKEND"},
		{name: "redis without url", env: map[string]string{"FEED_CACHE_BACKEND": "redis", "FEED_CACHE_TTL": "1m"}, want: "REDIS_URL"},
		{name: "negative ttl", env: map[string]string{"FEED_CACHE_TTL": "-1m"}, want: "FEED_CACHE_TTL"},
		{name: "zero rate limit", env: map[string]string{"RATE_LIMIT_PER_MINUTE": "0"}, want: "RATE_LIMIT_PER_MINUTE"},
		{name: "negative shutdown", env: map[string]string{"SHUTDOWN_TIMEOUT": "-1s"}, want: "SHUTDOWN_TIMEOUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCacheOptions_DisabledWithoutTTL(t *testing.T) {
	cfg := Default()
	cfg.CacheBackend = feedcache.BackendBolt

	assert.False(t, cfg.CacheEnabled())
	assert.Equal(t, feedcache.BackendNone, cfg.CacheOptions().Backend)
}

func TestFeedClientRateLimit(t *testing.T) {
	cfg := Default()
	assert.Equal(t, float64(feed.DefaultRateLimit), cfg.FeedClientRateLimit())

	cfg.FeedRateLimit = 0
	assert.Equal(t, -1.0, cfg.FeedClientRateLimit())
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "warn"

	var buf bytes.Buffer
	logger := cfg.NewLogger(&buf, "calendar-api", "test")

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"service":"calendar-api"`)
	assert.Contains(t, buf.String(), `"version":"test"`)
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())
}
