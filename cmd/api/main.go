// Package main provides the entrypoint for the loadshedding calendar API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/eskomcalendar/calendarapi/internal/api"
	"github.com/eskomcalendar/calendarapi/internal/api/handler"
	"github.com/eskomcalendar/calendarapi/internal/api/middleware"
	"github.com/eskomcalendar/calendarapi/internal/calendar"
	"github.com/eskomcalendar/calendarapi/internal/calendar/feed"
	"github.com/eskomcalendar/calendarapi/internal/config"
	"github.com/eskomcalendar/calendarapi/internal/database"
	"github.com/eskomcalendar/calendarapi/internal/feedcache"
	"github.com/eskomcalendar/calendarapi/internal/observability"
	"github.com/eskomcalendar/calendarapi/internal/telemetry"
	"github.com/eskomcalendar/calendarapi/internal/upstream/resilience"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "calendar-api"

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	log := cfg.NewLogger(os.Stdout, serviceName, Version)

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Env).
		Msg("starting calendar API")

	ctx := context.Background()

	// Initialize OpenTelemetry
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTelEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.OTelEnabled {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}
	feedMetrics := observability.NewMetrics()
	registry := resilience.NewRegistry()

	feedClient := feed.NewClient(feed.ClientConfig{
		OutageFeedURL:   cfg.OutageFeedURL,
		ScheduleBaseURL: cfg.ScheduleBaseURL,
		Timeout:         cfg.FeedTimeout,
		MaxRetries:      uint64(cfg.FeedMaxRetries), //nolint:gosec // validated non-negative
		RateLimit:       cfg.FeedClientRateLimit(),
		Registry:        registry,
		Metrics:         feedMetrics,
		Logger:          log,
	})
	log.Info().
		Str("outage_feed", feedClient.OutageFeedURL()).
		Str("schedule_base", cfg.ScheduleBaseURL).
		Msg("feed client initialized")

	// Feed cache is off unless a backend and TTL are configured.
	cache, err := feedcache.New(ctx, cfg.CacheOptions())
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.CacheBackend).Msg("failed to open feed cache")
	}
	if cache != nil {
		defer func() {
			if closeErr := cache.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("failed to close feed cache")
			}
		}()
		log.Info().
			Str("backend", cfg.CacheBackend).
			Dur("ttl", cfg.CacheTTL).
			Msg("feed cache enabled")
	}

	source := feedcache.Wrap(feedcache.SourceConfig{
		Source:   feedClient,
		Cache:    cache,
		TTL:      cfg.CacheTTL,
		Recorder: feedMetrics,
		Logger:   log,
	})

	calendarService := calendar.NewService(calendar.ServiceConfig{
		Source:   source,
		Logger:   log,
		Recorder: feedMetrics,
	})

	subsystems := []handler.Subsystem{feedCacheSubsystem(cfg, cache)}

	if cfg.DatabaseEnabled {
		pool := connectArchive(ctx, log)
		defer pool.Close()
		subsystems = append(subsystems, handler.Subsystem{
			Name:     "area-archive",
			Detail:   "postgres",
			Check:    pool.Ping,
			Critical: true,
		})
	}

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:            Version,
		BuildTime:          BuildTime,
		Logger:             log,
		ServiceName:        serviceName,
		Metrics:            httpMetrics,
		Calendar:           calendarService,
		Registry:           registry,
		Subsystems:         subsystems,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.FeedTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}

func feedCacheSubsystem(cfg *config.Config, cache feedcache.Cache) handler.Subsystem {
	sub := handler.Subsystem{Name: "feed-cache", Detail: feedcache.BackendNone}
	if cache == nil {
		return sub
	}
	sub.Detail = cfg.CacheBackend
	sub.Check = func(ctx context.Context) error {
		_, _, err := cache.Get(ctx, feedcache.OutagesKey())
		return err
	}
	return sub
}

// connectArchive opens the area archive database and makes sure its table
// exists. The API only writes to it through calendarctl.
func connectArchive(ctx context.Context, log zerolog.Logger) *pgxpool.Pool {
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	log.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("database connected")

	if err := database.NewAreaArchive(pool).Bootstrap(ctx); err != nil {
		pool.Close()
		log.Fatal().Err(err).Msg("failed to bootstrap area archive")
	}
	return pool
}
