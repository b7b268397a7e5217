// -----------------------------------------------------------------------
// Webhook Service - Turns labeled issue deliveries into planning work
// -----------------------------------------------------------------------

package webhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/faber/internal/common"
	"github.com/ternarybob/faber/internal/interfaces"
	"github.com/ternarybob/faber/internal/models"
)

const actionLabeled = "labeled"

// Service applies the labeling rules to inbound issue events. Only a
// "labeled" action carrying the configured marker label creates a task;
// everything else is audited and ignored.
type Service struct {
	label        string
	taskStorage  interfaces.TaskStorage
	dispatcher   interfaces.JobDispatcher
	auditService interfaces.AuditService
	logger       arbor.ILogger
}

// Ensure interface compliance
var _ interfaces.WebhookService = (*Service)(nil)

// NewService creates the webhook service with the configured trigger label
func NewService(cfg *common.WebhookConfig, taskStorage interfaces.TaskStorage, dispatcher interfaces.JobDispatcher, auditService interfaces.AuditService, logger arbor.ILogger) *Service {
	if logger == nil {
		logger = common.GetLogger()
	}

	label := cfg.Label
	if label == "" {
		label = "copilot-assisted"
	}

	return &Service{
		label:        label,
		taskStorage:  taskStorage,
		dispatcher:   dispatcher,
		auditService: auditService,
		logger:       logger,
	}
}

// HandleIssueEvent processes one delivery. Semantic rejections return an
// ignore outcome without error; every decision is audited.
func (s *Service) HandleIssueEvent(ctx context.Context, event *models.IssueWebhookEvent) (*models.WebhookResult, error) {
	if event == nil {
		return nil, fmt.Errorf("webhook event is required")
	}

	result, err := s.process(ctx, event)

	if result != nil {
		if s.auditService != nil {
			s.auditService.LogWebhookReceived(ctx, event, result.Outcome)
		}
		s.logger.Info().
			Str("delivery_id", event.DeliveryID).
			Str("action", event.Action).
			Str("outcome", string(result.Outcome)).
			Str("task_id", result.TaskID).
			Msg("Webhook delivery processed")
	}

	return result, err
}

func (s *Service) process(ctx context.Context, event *models.IssueWebhookEvent) (*models.WebhookResult, error) {
	if event.Action != actionLabeled {
		return &models.WebhookResult{
			Outcome: models.WebhookOutcomeIgnored,
			Reason:  fmt.Sprintf("action %q does not trigger planning", event.Action),
		}, nil
	}

	if event.Label != s.label {
		return &models.WebhookResult{
			Outcome: models.WebhookOutcomeIgnored,
			Reason:  fmt.Sprintf("label %q is not the trigger label", event.Label),
		}, nil
	}

	if event.Owner == "" || event.Repo == "" || event.IssueNumber <= 0 {
		return nil, fmt.Errorf("webhook event is missing owner, repo, or issue number")
	}

	taskID := models.TaskID(event.Owner, event.Repo, event.IssueNumber)

	existing, err := s.taskStorage.Get(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up task %s: %w", taskID, err)
	}
	if existing != nil {
		return &models.WebhookResult{
			Outcome: models.WebhookOutcomeDeduplicated,
			TaskID:  taskID,
			Reason:  "task already exists",
		}, nil
	}

	task := models.NewTask(event.InstallationID, event.Owner, event.Repo, event.IssueNumber)
	task.IssueTitle = event.IssueTitle
	task.IssueBody = event.IssueBody

	if err := s.taskStorage.Create(ctx, task); err != nil {
		// A concurrent delivery won the create race
		if errors.Is(err, interfaces.ErrTaskExists) {
			return &models.WebhookResult{
				Outcome: models.WebhookOutcomeDeduplicated,
				TaskID:  taskID,
				Reason:  "task already exists",
			}, nil
		}
		return nil, fmt.Errorf("failed to create task %s: %w", taskID, err)
	}

	payload, err := models.MarshalPayload(&models.GeneratePlanPayload{
		TaskID:            taskID,
		InstallationID:    event.InstallationID,
		Owner:             event.Owner,
		Repo:              event.Repo,
		IssueNumber:       event.IssueNumber,
		IssueTitle:        event.IssueTitle,
		IssueBody:         event.IssueBody,
		WebhookDeliveryID: event.DeliveryID,
	})
	if err != nil {
		return nil, err
	}

	job := models.NewJob(models.JobTypeGeneratePlan, payload, models.JobSourceWebhook)
	job.IdempotencyKey = taskID
	job.CorrelationID = taskID

	dispatch, err := s.dispatcher.Dispatch(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("failed to dispatch planning job for %s: %w", taskID, err)
	}

	switch dispatch.Outcome {
	case interfaces.DispatchAccepted:
		return &models.WebhookResult{
			Outcome: models.WebhookOutcomeTaskCreated,
			TaskID:  taskID,
			JobID:   job.ID,
		}, nil
	case interfaces.DispatchDeduplicated:
		return &models.WebhookResult{
			Outcome: models.WebhookOutcomeDeduplicated,
			TaskID:  taskID,
			JobID:   dispatch.JobID,
			Reason:  "planning job already in flight",
		}, nil
	default:
		return nil, fmt.Errorf("planning job for %s was rejected: %s", taskID, dispatch.Reason)
	}
}
