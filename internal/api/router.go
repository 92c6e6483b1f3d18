// Package api provides the HTTP API for the loadshedding calendar.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/eskomcalendar/calendarapi/internal/api/handler"
	"github.com/eskomcalendar/calendarapi/internal/api/middleware"
	"github.com/eskomcalendar/calendarapi/internal/api/response"
	"github.com/eskomcalendar/calendarapi/internal/upstream/resilience"
)

// PinnedVersion is the path prefix of the pinned API version. The same routes
// are also served unprefixed as the latest version.
const PinnedVersion = "/v0.0.1"

// DefaultServiceName is used when RouterConfig.ServiceName is empty.
const DefaultServiceName = "calendar-api"

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// Calendar answers the area queries.
	Calendar handler.CalendarService

	// Registry reports upstream feed health on /ops/status. Optional.
	Registry *resilience.Registry

	// Subsystems are the local dependencies reported on /ops/ready and /ops/status.
	Subsystems []handler.Subsystem

	// RateLimitPerMinute is the per-IP request budget on calendar routes.
	RateLimitPerMinute int

	// MetricsHandler serves /metrics. Defaults to the Prometheus default registry.
	MetricsHandler http.Handler
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = DefaultServiceName
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.CORS)                 // CORS on every response, errors included
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.ContentTypeJSON)      // JSON content type

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(response.MethodNotAllowed)

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Registry, cfg.Subsystems...)
	calendarHandler := handler.NewCalendarHandler(cfg.Calendar, cfg.Logger)

	// Both versions draw on one per-IP budget.
	rateLimit := middleware.RateLimitByIP(middleware.PerMinute(cfg.RateLimitPerMinute))

	mountCalendarRoutes(r, calendarHandler, rateLimit)
	r.Route(PinnedVersion, func(r chi.Router) {
		mountCalendarRoutes(r, calendarHandler, rateLimit)
	})

	// Ops endpoints are not versioned.
	r.Route("/ops", func(r chi.Router) {
		r.Get("/health", opsHandler.HealthCheck)
		r.Get("/ready", opsHandler.ReadinessCheck)
		r.Get("/status", opsHandler.SystemStatus)
	})

	metricsHandler := cfg.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	return r
}

// mountCalendarRoutes registers the calendar route set on r. It is called once
// for the latest version and once for each pinned version.
func mountCalendarRoutes(r chi.Router, h *handler.CalendarHandler, rateLimit func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(rateLimit)
		r.Get("/outages/{"+handler.ParamAreaName+"}", h.Outages)
		r.Get("/schedules/{"+handler.ParamAreaName+"}", h.Schedules)
		r.Get("/list_areas", h.ListAllAreas)
		r.Get("/list_areas/{"+handler.ParamRegex+"}", h.ListAreas)
		r.Get("/fuzzy_search/{"+handler.ParamQuery+"}", h.FuzzySearch)
	})
}
