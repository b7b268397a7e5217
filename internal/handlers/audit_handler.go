// -----------------------------------------------------------------------
// Audit Handler - Query surface over the audit trail
// -----------------------------------------------------------------------

package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/faber/internal/interfaces"
	"github.com/ternarybob/faber/internal/models"
)

// AuditHandler handles audit trail API requests
type AuditHandler struct {
	auditService interfaces.AuditService
	logger       arbor.ILogger
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(auditService interfaces.AuditService, logger arbor.ILogger) *AuditHandler {
	return &AuditHandler{
		auditService: auditService,
		logger:       logger,
	}
}

// QueryAuditHandler returns audit events matching the filter, newest first
// GET /api/audit?kind=webhook_received&correlation_id=cor_x&limit=50&offset=0
func (h *AuditHandler) QueryAuditHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	ctx := r.Context()

	limit, offset := ParseLimitOffset(r, 50, 200)

	filter := &models.AuditFilter{
		Kind:          models.AuditKind(r.URL.Query().Get("kind")),
		CorrelationID: r.URL.Query().Get("correlation_id"),
	}

	events, err := h.auditService.Query(ctx, filter, offset, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to query audit events")
		WriteError(w, http.StatusInternalServerError, "Failed to query audit events")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
		"limit":  limit,
		"offset": offset,
	})
}
