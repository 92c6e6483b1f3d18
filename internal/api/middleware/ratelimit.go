package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/eskomcalendar/calendarapi/internal/api/models"
)

// DefaultRequestsPerMinute is the per-IP limit applied to calendar routes.
const DefaultRequestsPerMinute = 100

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// Requests per window
	RequestLimit int
	// Window duration
	WindowLength time.Duration
}

// PerMinute returns a config allowing n requests per minute. Non-positive
// values fall back to DefaultRequestsPerMinute.
func PerMinute(n int) RateLimitConfig {
	if n <= 0 {
		n = DefaultRequestsPerMinute
	}
	return RateLimitConfig{RequestLimit: n, WindowLength: time.Minute}
}

// RateLimitByIP creates a rate limiter middleware using client IP address.
// Uses X-Forwarded-For header if present (extracted by chi's RealIP middleware).
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(cfg.WindowLength.Seconds()))

	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			problem := models.NewTooManyRequests(GetRequestID(r.Context()), "Rate limit exceeded. Please try again later.")
			problem.Instance = r.URL.Path

			// httprate does not expose the window reset, so clients wait a full window.
			w.Header().Set("Retry-After", retryAfter)
			problem.Write(w)
		}),
	)
}
