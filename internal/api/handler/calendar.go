// Package handler provides HTTP handlers for the calendar API.
package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/eskomcalendar/calendarapi/internal/api/middleware"
	"github.com/eskomcalendar/calendarapi/internal/api/models"
	"github.com/eskomcalendar/calendarapi/internal/api/response"
	"github.com/eskomcalendar/calendarapi/internal/calendar"
	"github.com/eskomcalendar/calendarapi/internal/upstream/resilience"
)

// URL parameter names.
const (
	ParamAreaName = "area_name"
	ParamRegex    = "regex"
	ParamQuery    = "query"
)

// CalendarService answers the area queries served by CalendarHandler.
type CalendarService interface {
	Outages(ctx context.Context, area string) ([]calendar.PowerOutage, error)
	Schedule(ctx context.Context, area string) (calendar.RecurringSchedule, error)
	ListAreas(ctx context.Context, pattern string) ([]string, error)
	ListAllAreas(ctx context.Context) ([]string, error)
	FuzzySearch(ctx context.Context, query string) ([]calendar.SearchResult[calendar.Area], error)
}

// CalendarHandler handles the loadshedding calendar endpoints.
type CalendarHandler struct {
	service CalendarService
	logger  zerolog.Logger
}

// NewCalendarHandler creates a new CalendarHandler.
func NewCalendarHandler(service CalendarService, logger zerolog.Logger) *CalendarHandler {
	return &CalendarHandler{
		service: service,
		logger:  logger,
	}
}

// Outages handles GET /outages/{area_name} - dated outages for one area.
func (h *CalendarHandler) Outages(w http.ResponseWriter, r *http.Request) {
	area := pathParam(r, ParamAreaName)

	outages, err := h.service.Outages(r.Context(), area)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, outages)
}

// Schedules handles GET /schedules/{area_name} - the recurring schedule for one area.
func (h *CalendarHandler) Schedules(w http.ResponseWriter, r *http.Request) {
	area := pathParam(r, ParamAreaName)

	schedule, err := h.service.Schedule(r.Context(), area)
	if err != nil {
		var fetchErr *calendar.FetchError
		if errors.As(err, &fetchErr) && fetchErr.Status == http.StatusNotFound {
			response.NotFound(w, r, "No schedule found for `"+area+"`")
			return
		}
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, schedule)
}

// ListAllAreas handles GET /list_areas - every area in the outage feed.
func (h *CalendarHandler) ListAllAreas(w http.ResponseWriter, r *http.Request) {
	areas, err := h.service.ListAllAreas(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, areas)
}

// ListAreas handles GET /list_areas/{regex} - areas matching a regular expression.
func (h *CalendarHandler) ListAreas(w http.ResponseWriter, r *http.Request) {
	pattern := pathParam(r, ParamRegex)

	areas, err := h.service.ListAreas(r.Context(), pattern)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, areas)
}

// FuzzySearch handles GET /fuzzy_search/{query} - areas ranked by similarity.
func (h *CalendarHandler) FuzzySearch(w http.ResponseWriter, r *http.Request) {
	query := pathParam(r, ParamQuery)

	results, err := h.service.FuzzySearch(r.Context(), query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, results)
}

// writeError maps calendar errors onto problem responses.
func (h *CalendarHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		notFoundErr   *calendar.NotFoundError
		regexErr      *calendar.RegexError
		fetchErr      *calendar.FetchError
		parseErr      *calendar.ParseError
		validationErr *calendar.ValidationError
	)

	switch {
	case errors.As(err, &notFoundErr):
		response.NotFound(w, r, notFoundErr.Error())
	case errors.As(err, &regexErr):
		response.BadRequest(w, r, regexErr.Error(), []models.FieldError{
			{Field: ParamRegex, Message: regexErr.Err.Error(), Code: "INVALID_REGEX"},
		})
	case errors.Is(err, resilience.ErrCircuitOpen):
		response.ServiceUnavailable(w, r, err.Error())
	case errors.As(err, &fetchErr), errors.As(err, &parseErr), errors.As(err, &validationErr):
		h.logger.Warn().
			Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("upstream feed unusable")
		response.BadGateway(w, r, err.Error())
	default:
		h.logger.Error().
			Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("calendar request failed")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}

// pathParam returns the decoded value of a chi URL parameter. chi matches on
// the raw path only when the request carried escapes the decoded path cannot
// represent, such as %2F. Only then is the value still escaped.
func pathParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return raw
	}
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}
