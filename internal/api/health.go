package api

import (
	"net/http"
	"time"

	"github.com/geosocial/proximity/internal/api/respond"
)

// HealthReporter is the aggregated service health, usually a
// *health.ServiceHealthChecker.
type HealthReporter interface {
	IsHealthy() bool
	IsDegraded() bool
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	reporter HealthReporter
}

func NewHealthHandler(reporter HealthReporter) *HealthHandler {
	return &HealthHandler{reporter: reporter}
}

// CheckHealth handles GET /api/health.
// Always returns 200; the body reports healthy, degraded or unhealthy.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	status := "unhealthy"
	switch {
	case h.reporter == nil:
	case h.reporter.IsDegraded():
		status = "degraded"
	case h.reporter.IsHealthy():
		status = "healthy"
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
