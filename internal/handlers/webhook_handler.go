// -----------------------------------------------------------------------
// Webhook Handler - GitHub webhook ingestion with signature validation
// -----------------------------------------------------------------------

package handlers

import (
	"context"
	"net/http"

	"github.com/google/go-github/v57/github"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/faber/internal/common"
	"github.com/ternarybob/faber/internal/interfaces"
	"github.com/ternarybob/faber/internal/models"
)

// WebhookHandler receives GitHub webhook deliveries, validates the HMAC
// signature, and forwards issue events to the webhook service. Semantic
// rejections (wrong action, wrong label, duplicate task) still return
// 200 so the platform does not retry the delivery.
type WebhookHandler struct {
	webhookService interfaces.WebhookService
	auditService   interfaces.AuditService
	eventService   interfaces.EventService
	secret         []byte
	logger         arbor.ILogger
}

// NewWebhookHandler creates a new webhook handler. An empty secret
// disables signature validation; intended for local development only.
func NewWebhookHandler(cfg *common.WebhookConfig, webhookService interfaces.WebhookService, auditService interfaces.AuditService, eventService interfaces.EventService, logger arbor.ILogger) *WebhookHandler {
	if cfg.Secret == "" {
		logger.Warn().Msg("Webhook secret is empty - signature validation disabled")
	}

	return &WebhookHandler{
		webhookService: webhookService,
		auditService:   auditService,
		eventService:   eventService,
		secret:         []byte(cfg.Secret),
		logger:         logger,
	}
}

// GitHubWebhookHandler handles one webhook delivery
// POST /api/webhooks/github
func (h *WebhookHandler) GitHubWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	deliveryID := github.DeliveryID(r)
	eventType := github.WebHookType(r)

	payload, err := github.ValidatePayload(r, h.secret)
	if err != nil {
		h.logger.Warn().Err(err).
			Str("delivery_id", deliveryID).
			Str("event_type", eventType).
			Msg("Webhook signature validation failed")
		h.auditService.LogWebhookValidation(r.Context(), deliveryID, err)
		WriteError(w, http.StatusUnauthorized, "Invalid webhook signature")
		return
	}

	parsed, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		h.logger.Warn().Err(err).
			Str("delivery_id", deliveryID).
			Str("event_type", eventType).
			Msg("Webhook payload parse failed")
		h.auditService.LogWebhookValidation(r.Context(), deliveryID, err)
		WriteError(w, http.StatusBadRequest, "Invalid webhook payload")
		return
	}

	issuesEvent, ok := parsed.(*github.IssuesEvent)
	if !ok {
		// Valid delivery of an event type this service does not act on
		h.logger.Debug().
			Str("delivery_id", deliveryID).
			Str("event_type", eventType).
			Msg("Ignoring non-issue webhook event")
		WriteJSON(w, http.StatusOK, &models.WebhookResult{
			Outcome: models.WebhookOutcomeIgnored,
			Reason:  "event type " + eventType + " is not handled",
		})
		return
	}

	event := issueEventFromPayload(deliveryID, issuesEvent)

	result, err := h.webhookService.HandleIssueEvent(r.Context(), event)
	if err != nil {
		h.logger.Error().Err(err).
			Str("delivery_id", deliveryID).
			Str("owner", event.Owner).
			Str("repo", event.Repo).
			Int("issue_number", event.IssueNumber).
			Msg("Webhook processing failed")
		WriteError(w, http.StatusInternalServerError, "Webhook processing failed")
		return
	}

	h.publishHandled(r.Context(), deliveryID, result)

	WriteJSON(w, http.StatusOK, result)
}

// issueEventFromPayload maps the GitHub payload onto the host-neutral
// event the webhook service consumes
func issueEventFromPayload(deliveryID string, src *github.IssuesEvent) *models.IssueWebhookEvent {
	return &models.IssueWebhookEvent{
		DeliveryID:     deliveryID,
		Action:         src.GetAction(),
		Label:          src.GetLabel().GetName(),
		InstallationID: src.GetInstallation().GetID(),
		Owner:          src.GetRepo().GetOwner().GetLogin(),
		Repo:           src.GetRepo().GetName(),
		IssueNumber:    src.GetIssue().GetNumber(),
		IssueTitle:     src.GetIssue().GetTitle(),
		IssueBody:      src.GetIssue().GetBody(),
	}
}

// publishHandled feeds the websocket stream with the delivery outcome
func (h *WebhookHandler) publishHandled(ctx context.Context, deliveryID string, result *models.WebhookResult) {
	if h.eventService == nil {
		return
	}

	event := interfaces.Event{
		Type: interfaces.EventWebhookHandled,
		Payload: map[string]interface{}{
			"delivery_id": deliveryID,
			"outcome":     string(result.Outcome),
			"task_id":     result.TaskID,
			"job_id":      result.JobID,
			"reason":      result.Reason,
		},
	}
	if err := h.eventService.Publish(ctx, event); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to publish webhook handled event")
	}
}
