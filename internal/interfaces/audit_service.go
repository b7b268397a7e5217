// -----------------------------------------------------------------------
// Audit Service Interface - Structured audit trail for system operations
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/faber/internal/models"
)

// AuditService records audit events to the store and mirrors them to the
// log tagged AUDIT. Recording is best effort: persistence failures are
// logged and never propagate into the operation being audited.
type AuditService interface {
	// Record persists an audit event and emits the tagged log line
	Record(ctx context.Context, event *models.AuditEvent)

	// LogWebhookReceived records an inbound webhook delivery
	LogWebhookReceived(ctx context.Context, event *models.IssueWebhookEvent, outcome models.WebhookOutcome)

	// LogWebhookValidation records a signature or payload validation failure
	LogWebhookValidation(ctx context.Context, deliveryID string, err error)

	// LogTaskStateTransition records a task moving between states
	LogTaskStateTransition(ctx context.Context, taskID string, from, to models.TaskState)

	// LogJobStateTransition records a job status change
	LogJobStateTransition(ctx context.Context, status *models.JobStatus, from models.JobState)

	// LogPlatformAPICall records one hosting platform API operation
	LogPlatformAPICall(ctx context.Context, operation, target string, duration time.Duration, err error)

	// LogContainerOperation records one container runtime operation
	LogContainerOperation(ctx context.Context, containerID, operation string, duration time.Duration, err error)

	// LogFileOperation records one workspace file operation
	LogFileOperation(ctx context.Context, containerID, operation, path string, err error)

	// LogPlanGeneration records the outcome of a planning run
	LogPlanGeneration(ctx context.Context, taskID string, duration time.Duration, err error)

	// LogPlanExecution records the outcome of an execution run
	LogPlanExecution(ctx context.Context, taskID string, duration time.Duration, err error)

	// Query returns audit events matching the filter, newest first
	Query(ctx context.Context, filter *models.AuditFilter, skip, take int) ([]*models.AuditEvent, error)
}
