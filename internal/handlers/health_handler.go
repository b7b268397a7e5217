// -----------------------------------------------------------------------
// Health Handler - Aggregate component health with HTTP status mapping
// -----------------------------------------------------------------------

package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/faber/internal/interfaces"
	"github.com/ternarybob/faber/internal/models"
)

// HealthHandler serves the aggregate health report
type HealthHandler struct {
	healthService interfaces.HealthService
	logger        arbor.ILogger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(healthService interfaces.HealthService, logger arbor.ILogger) *HealthHandler {
	return &HealthHandler{
		healthService: healthService,
		logger:        logger,
	}
}

// GetHealthHandler probes all components and returns the report.
// An unhealthy aggregate maps to 503 so load balancers can act on it;
// degraded still returns 200.
// GET /api/health
func (h *HealthHandler) GetHealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	report := h.healthService.Check(r.Context())

	statusCode := http.StatusOK
	if report.Status == models.HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	WriteJSON(w, statusCode, report)
}
