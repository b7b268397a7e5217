// -----------------------------------------------------------------------
// Service Interfaces - Webhook, planning, health, and retention contracts
// -----------------------------------------------------------------------

package interfaces

import (
	"context"

	"github.com/ternarybob/faber/internal/models"
)

// WebhookService applies the labeling rules to inbound issue events and
// creates tasks with their planning jobs
type WebhookService interface {
	// HandleIssueEvent processes one delivery. Semantic rejections
	// (wrong action, wrong label, existing task) return an ignore
	// outcome without error; the delivery is always audited.
	HandleIssueEvent(ctx context.Context, event *models.IssueWebhookEvent) (*models.WebhookResult, error)
}

// PlannerService turns an issue into a structured implementation plan
type PlannerService interface {
	// GeneratePlan produces and validates a plan for the task's issue
	GeneratePlan(ctx context.Context, task *models.Task) (*models.Plan, error)
}

// HealthService aggregates component health into one report
type HealthService interface {
	// Check probes all components and returns the aggregate report.
	// Probe failures degrade the report, they never error.
	Check(ctx context.Context) *models.HealthReport
}

// RetentionService removes expired audit events and terminal job records
type RetentionService interface {
	// Cleanup runs one retention pass. Store failures propagate after
	// being audited.
	Cleanup(ctx context.Context) error

	// CleanupAsync runs Cleanup on a background goroutine
	CleanupAsync(ctx context.Context)
}
