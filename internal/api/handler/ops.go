package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/eskomcalendar/calendarapi/internal/api/models"
	"github.com/eskomcalendar/calendarapi/internal/api/response"
	"github.com/eskomcalendar/calendarapi/internal/upstream/resilience"
)

const checkTimeout = 2 * time.Second

// Subsystem is a local dependency reported by the ops endpoints.
type Subsystem struct {
	// Name identifies the subsystem, e.g. "feed-cache".
	Name string

	// Detail is a short static description, such as the cache backend.
	Detail string

	// Check tests the subsystem. Nil means the subsystem is always OK.
	Check func(ctx context.Context) error

	// Critical subsystems fail readiness; others only degrade it.
	Critical bool
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version    string
	buildTime  string
	registry   *resilience.Registry
	subsystems []Subsystem
}

// NewOpsHandler creates a new OpsHandler. registry may be nil.
func NewOpsHandler(version, buildTime string, registry *resilience.Registry, subsystems ...Subsystem) *OpsHandler {
	return &OpsHandler{
		version:    version,
		buildTime:  buildTime,
		registry:   registry,
		subsystems: subsystems,
	}
}

// HealthCheck handles GET /ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /ops/ready - readiness check. A failing
// critical subsystem answers 503.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	statuses := h.checkSubsystems(r.Context())

	overall := models.HealthStatusOK
	details := make(map[string]any, len(statuses))
	for _, s := range statuses {
		overall = overall.Worst(s.Status)
		details[s.Name] = s.Status
	}

	status := http.StatusOK
	if overall == models.HealthStatusFail {
		status = http.StatusServiceUnavailable
	}

	health := models.Health{
		Status:  overall,
		Time:    models.Timestamp(time.Now()),
		Details: details,
	}
	response.JSON(w, r, status, health)
}

// SystemStatus handles GET /ops/status - upstream feed and subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(time.Now()),
		Subsystems: h.checkSubsystems(r.Context()),
		Upstreams:  h.upstreamStatuses(),
	}

	for _, s := range status.Subsystems {
		status.Status = status.Status.Worst(s.Status)
	}
	for _, u := range status.Upstreams {
		status.Status = status.Status.Worst(u.Status)
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) checkSubsystems(ctx context.Context) []models.SubsystemStatus {
	statuses := make([]models.SubsystemStatus, 0, len(h.subsystems))
	for _, sub := range h.subsystems {
		s := models.SubsystemStatus{Name: sub.Name, Status: models.HealthStatusOK}
		if sub.Detail != "" {
			s.Detail = strPtr(sub.Detail)
		}

		if sub.Check != nil {
			checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
			err := sub.Check(checkCtx)
			cancel()

			if err != nil {
				s.Status = models.HealthStatusDegraded
				if sub.Critical {
					s.Status = models.HealthStatusFail
				}
				s.Detail = strPtr(err.Error())
			}
		}
		statuses = append(statuses, s)
	}
	return statuses
}

func (h *OpsHandler) upstreamStatuses() []models.UpstreamStatus {
	if h.registry == nil {
		return []models.UpstreamStatus{}
	}

	all := h.registry.GetAllHealth()
	statuses := make([]models.UpstreamStatus, 0, len(all))
	for _, health := range all {
		s := models.UpstreamStatus{
			Upstream:      health.Name,
			Status:        upstreamHealthStatus(health),
			CircuitState:  health.CircuitState.String(),
			LastSuccessAt: models.TimestampPtr(health.LastSuccessAt),
			LastFailureAt: models.TimestampPtr(health.LastFailureAt),
		}
		if health.LastError != "" {
			s.Message = strPtr(health.LastError)
		}
		statuses = append(statuses, s)
	}
	return statuses
}

func upstreamHealthStatus(health *resilience.UpstreamHealth) models.HealthStatus {
	switch health.Status() {
	case resilience.StatusUnhealthy:
		return models.HealthStatusFail
	case resilience.StatusDegraded:
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusOK
	}
}

func strPtr(s string) *string {
	return &s
}
