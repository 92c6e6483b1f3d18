package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/eskomcalendar/calendarapi/internal/api/middleware"
)

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func serveFrom(handler http.Handler, ip, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	req.RemoteAddr = ip
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitByIP_AllowsWithinLimit(t *testing.T) {
	handler := middleware.RateLimitByIP(middleware.PerMinute(5))(http.HandlerFunc(okHandler))

	for i := 0; i < 5; i++ {
		rec := serveFrom(handler, "192.168.1.1:12345", "/list_areas")
		assert.Equal(t, http.StatusOK, rec.Code, "request %d should be allowed", i+1)
	}
}

func TestRateLimitByIP_BlocksOverLimit(t *testing.T) {
	handler := middleware.RateLimitByIP(middleware.PerMinute(3))(http.HandlerFunc(okHandler))

	testIP := "10.0.0.1:12345"
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serveFrom(handler, testIP, "/list_areas").Code)
	}

	rec := serveFrom(handler, testIP, "/list_areas")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Rate limit exceeded")
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestRateLimitByIP_DifferentIPsHaveSeparateLimits(t *testing.T) {
	handler := middleware.RateLimitByIP(middleware.PerMinute(2))(http.HandlerFunc(okHandler))

	ip1 := "172.16.0.1:12345"
	ip2 := "172.16.0.2:12345"

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, serveFrom(handler, ip1, "/list_areas").Code)
	}

	assert.Equal(t, http.StatusTooManyRequests, serveFrom(handler, ip1, "/list_areas").Code)
	assert.Equal(t, http.StatusOK, serveFrom(handler, ip2, "/list_areas").Code)
}

func TestRateLimitExceededResponse_Format(t *testing.T) {
	handler := middleware.RequestID(
		middleware.RateLimitByIP(middleware.PerMinute(1))(http.HandlerFunc(okHandler)),
	)

	testIP := "203.0.113.1:12345"

	assert.Equal(t, http.StatusOK, serveFrom(handler, testIP, "/fuzzy_search/cape").Code)

	rec := serveFrom(handler, testIP, "/fuzzy_search/cape")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "too-many-requests")
	assert.Contains(t, body, "Rate limit exceeded")
	assert.Contains(t, body, "/fuzzy_search/cape")
}

func TestPerMinute(t *testing.T) {
	cfg := middleware.PerMinute(30)
	assert.Equal(t, 30, cfg.RequestLimit)
	assert.Equal(t, time.Minute, cfg.WindowLength)

	assert.Equal(t, middleware.DefaultRequestsPerMinute, middleware.PerMinute(0).RequestLimit)
	assert.Equal(t, middleware.DefaultRequestsPerMinute, middleware.PerMinute(-1).RequestLimit)
}
