// -----------------------------------------------------------------------
// Audit Service - Persists audit events and mirrors them to the log
// -----------------------------------------------------------------------

package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/faber/internal/common"
	"github.com/ternarybob/faber/internal/interfaces"
	"github.com/ternarybob/faber/internal/models"
)

// Service writes audit events to storage and emits a tagged log line
// for each. Persistence failures are logged, never propagated; an
// audit problem must not fail the operation being audited.
type Service struct {
	storage interfaces.AuditStorage
	clock   interfaces.Clock
	logger  arbor.ILogger
}

// NewService creates a new audit service
func NewService(storage interfaces.AuditStorage, clock interfaces.Clock, logger arbor.ILogger) interfaces.AuditService {
	if logger == nil {
		logger = common.GetLogger()
	}
	if clock == nil {
		clock = common.SystemClock()
	}
	return &Service{
		storage: storage,
		clock:   clock,
		logger:  logger,
	}
}

// Record persists an audit event and emits the tagged log line
func (s *Service) Record(ctx context.Context, event *models.AuditEvent) {
	if event == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock.Now().UTC()
	}
	if event.CorrelationID == "" {
		event.CorrelationID = common.CorrelationIDFromContext(ctx)
	}

	if s.storage != nil {
		if err := s.storage.Append(ctx, event); err != nil {
			s.logger.Warn().
				Err(err).
				Str("kind", string(event.Kind)).
				Msg("Failed to persist audit event")
		}
	}

	logEvent := s.logger.Info().
		Str("tag", "AUDIT").
		Str("kind", string(event.Kind)).
		Str("correlation_id", event.CorrelationID)
	if event.Target != "" {
		logEvent.Str("target", event.Target)
	}
	if event.Result != "" {
		logEvent.Str("result", event.Result)
	}
	if event.DurationMs > 0 {
		logEvent.Int64("duration_ms", event.DurationMs)
	}
	if event.ErrorMessage != "" {
		logEvent.Str("error", event.ErrorMessage)
	}
	logEvent.Msg(event.Description)
}

// LogWebhookReceived records an inbound webhook delivery
func (s *Service) LogWebhookReceived(ctx context.Context, event *models.IssueWebhookEvent, outcome models.WebhookOutcome) {
	if event == nil {
		return
	}
	audit := models.NewAuditEvent(models.AuditWebhookReceived,
		fmt.Sprintf("Webhook delivery %s: %s", event.Action, outcome))
	audit.Initiator = "webhook"
	audit.Target = models.TaskID(event.Owner, event.Repo, event.IssueNumber)
	audit.Result = string(outcome)
	audit.Data = map[string]interface{}{
		"delivery_id":  event.DeliveryID,
		"action":       event.Action,
		"label":        event.Label,
		"issue_number": event.IssueNumber,
	}
	s.Record(ctx, audit)
}

// LogWebhookValidation records a signature or payload validation failure
func (s *Service) LogWebhookValidation(ctx context.Context, deliveryID string, err error) {
	audit := models.NewAuditEvent(models.AuditWebhookValidation, "Webhook validation failed")
	audit.Initiator = "webhook"
	audit.Target = deliveryID
	audit.Result = "rejected"
	if err != nil {
		audit.ErrorMessage = err.Error()
	}
	s.Record(ctx, audit)
}

// LogTaskStateTransition records a task moving between states
func (s *Service) LogTaskStateTransition(ctx context.Context, taskID string, from, to models.TaskState) {
	audit := models.NewAuditEvent(models.AuditTaskStateTransition,
		fmt.Sprintf("Task %s moved from %s to %s", taskID, from, to))
	audit.Target = taskID
	audit.Result = string(to)
	audit.Data = map[string]interface{}{
		"from": string(from),
		"to":   string(to),
	}
	s.Record(ctx, audit)
}

// LogJobStateTransition records a job status change
func (s *Service) LogJobStateTransition(ctx context.Context, status *models.JobStatus, from models.JobState) {
	if status == nil {
		return
	}
	audit := models.NewAuditEvent(models.AuditJobStateTransition,
		fmt.Sprintf("Job %s moved from %s to %s", status.JobID, from, status.State))
	audit.CorrelationID = status.CorrelationID
	audit.Target = status.JobID
	audit.Result = string(status.State)
	audit.ErrorMessage = status.ErrorMessage
	audit.Data = map[string]interface{}{
		"job_type":    status.JobType,
		"from":        string(from),
		"to":          string(status.State),
		"retry_count": status.RetryCount,
	}
	if status.ProcessingDurationMs != nil {
		audit.DurationMs = *status.ProcessingDurationMs
	}
	s.Record(ctx, audit)
}

// LogPlatformAPICall records one hosting platform API operation
func (s *Service) LogPlatformAPICall(ctx context.Context, operation, target string, duration time.Duration, err error) {
	audit := models.NewAuditEvent(models.AuditPlatformAPICall,
		fmt.Sprintf("Platform API call %s", operation))
	audit.Target = target
	audit.DurationMs = duration.Milliseconds()
	audit.Result = "success"
	if err != nil {
		audit.Result = "failure"
		audit.ErrorMessage = err.Error()
	}
	audit.Data = map[string]interface{}{"operation": operation}
	s.Record(ctx, audit)
}

// LogContainerOperation records one container runtime operation
func (s *Service) LogContainerOperation(ctx context.Context, containerID, operation string, duration time.Duration, err error) {
	audit := models.NewAuditEvent(models.AuditContainerOperation,
		fmt.Sprintf("Container operation %s", operation))
	audit.Target = containerID
	audit.DurationMs = duration.Milliseconds()
	audit.Result = "success"
	if err != nil {
		audit.Result = "failure"
		audit.ErrorMessage = err.Error()
	}
	audit.Data = map[string]interface{}{"operation": operation}
	s.Record(ctx, audit)
}

// LogFileOperation records one workspace file operation
func (s *Service) LogFileOperation(ctx context.Context, containerID, operation, path string, err error) {
	audit := models.NewAuditEvent(models.AuditFileOperation,
		fmt.Sprintf("File operation %s on %s", operation, path))
	audit.Target = containerID
	audit.Result = "success"
	if err != nil {
		audit.Result = "failure"
		audit.ErrorMessage = err.Error()
	}
	audit.Data = map[string]interface{}{
		"operation": operation,
		"path":      path,
	}
	s.Record(ctx, audit)
}

// LogPlanGeneration records the outcome of a planning run
func (s *Service) LogPlanGeneration(ctx context.Context, taskID string, duration time.Duration, err error) {
	audit := models.NewAuditEvent(models.AuditPlanGeneration,
		fmt.Sprintf("Plan generation for task %s", taskID))
	audit.Target = taskID
	audit.DurationMs = duration.Milliseconds()
	audit.Result = "success"
	if err != nil {
		audit.Result = "failure"
		audit.ErrorMessage = err.Error()
	}
	s.Record(ctx, audit)
}

// LogPlanExecution records the outcome of an execution run
func (s *Service) LogPlanExecution(ctx context.Context, taskID string, duration time.Duration, err error) {
	audit := models.NewAuditEvent(models.AuditPlanExecution,
		fmt.Sprintf("Plan execution for task %s", taskID))
	audit.Target = taskID
	audit.DurationMs = duration.Milliseconds()
	audit.Result = "success"
	if err != nil {
		audit.Result = "failure"
		audit.ErrorMessage = err.Error()
	}
	s.Record(ctx, audit)
}

// Query returns audit events matching the filter, newest first
func (s *Service) Query(ctx context.Context, filter *models.AuditFilter, skip, take int) ([]*models.AuditEvent, error) {
	if s.storage == nil {
		return nil, fmt.Errorf("audit storage is not configured")
	}
	return s.storage.Query(ctx, filter, skip, take)
}

var _ interfaces.AuditService = (*Service)(nil)
