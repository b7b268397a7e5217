// -----------------------------------------------------------------------
// Retention Handler - Manual trigger for the retention cleanup pass
// -----------------------------------------------------------------------

package handlers

import (
	"context"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/faber/internal/interfaces"
)

// RetentionHandler exposes the manual retention cleanup trigger
type RetentionHandler struct {
	retentionService interfaces.RetentionService
	logger           arbor.ILogger
}

// NewRetentionHandler creates a new retention handler
func NewRetentionHandler(retentionService interfaces.RetentionService, logger arbor.ILogger) *RetentionHandler {
	return &RetentionHandler{
		retentionService: retentionService,
		logger:           logger,
	}
}

// TriggerCleanupHandler starts one retention pass in the background.
// The pass itself is audited; this endpoint only reports acceptance.
// POST /api/retention/cleanup
func (h *RetentionHandler) TriggerCleanupHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	h.logger.Info().Msg("Manual retention cleanup triggered")

	// Detached context: the pass must outlive this request
	h.retentionService.CleanupAsync(context.Background())

	WriteStarted(w, "Retention cleanup started")
}
