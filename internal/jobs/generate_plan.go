// -----------------------------------------------------------------------
// Generate Plan Handler - Turns a labeled issue into a validated plan
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/faber/internal/common"
	"github.com/ternarybob/faber/internal/interfaces"
	"github.com/ternarybob/faber/internal/models"
	"github.com/ternarybob/faber/internal/services/llm"
	"github.com/ternarybob/faber/internal/services/planner"
)

// GeneratePlanHandler executes generate_plan jobs: it runs the planner
// against the task's issue, stores the validated plan, and dispatches
// the follow-up execution job.
type GeneratePlanHandler struct {
	taskStorage  interfaces.TaskStorage
	planner      interfaces.PlannerService
	dispatcher   interfaces.JobDispatcher
	auditService interfaces.AuditService
	logger       arbor.ILogger
}

// Ensure interface compliance
var _ interfaces.JobHandler = (*GeneratePlanHandler)(nil)

// NewGeneratePlanHandler creates the planning job handler
func NewGeneratePlanHandler(taskStorage interfaces.TaskStorage, plannerService interfaces.PlannerService, dispatcher interfaces.JobDispatcher, auditService interfaces.AuditService, logger arbor.ILogger) *GeneratePlanHandler {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &GeneratePlanHandler{
		taskStorage:  taskStorage,
		planner:      plannerService,
		dispatcher:   dispatcher,
		auditService: auditService,
		logger:       logger,
	}
}

// Type returns the job type this handler executes
func (h *GeneratePlanHandler) Type() string {
	return models.JobTypeGeneratePlan
}

// Execute runs one planning attempt
func (h *GeneratePlanHandler) Execute(ctx context.Context, job *models.Job) models.JobResult {
	var payload models.GeneratePlanPayload
	if err := job.UnmarshalPayload(&payload); err != nil {
		return models.FailureResult(err.Error(), false)
	}

	task, err := h.taskStorage.Get(ctx, payload.TaskID)
	if err != nil {
		return models.FailureResult(fmt.Sprintf("failed to load task %s: %v", payload.TaskID, err), true)
	}
	if task == nil {
		return models.FailureResult(fmt.Sprintf("task %s not found", payload.TaskID), false)
	}

	switch task.Status {
	case models.TaskStatePendingPlanning:
		// Normal path
	case models.TaskStatePlanned:
		// A prior attempt stored the plan but the follow-up dispatch did
		// not land. Skip planning and dispatch again.
		if task.Plan != nil {
			return h.dispatchExecution(ctx, job, task)
		}
		return models.FailureResult(fmt.Sprintf("task %s is planned but has no plan", task.ID), false)
	default:
		return models.FailureResult(fmt.Sprintf("task %s is in state %s, not awaiting planning", task.ID, task.Status), false)
	}

	start := time.Now()
	plan, err := h.planner.GeneratePlan(ctx, task)
	duration := time.Since(start)

	if h.auditService != nil {
		h.auditService.LogPlanGeneration(ctx, task.ID, duration, err)
	}

	if err != nil {
		if errors.Is(err, planner.ErrInvalidPlan) {
			// The model produced output that does not parse or validate.
			// The issue needs human attention, not another attempt.
			failTask(h.taskStorage, h.auditService, h.logger, task)
			return models.FailureResult(err.Error(), false)
		}

		h.logger.Warn().Err(err).
			Str("task_id", task.ID).
			Str("job_id", job.ID).
			Msg("Plan generation attempt failed")
		return models.FailureResult(err.Error(), h.isRetryable(err))
	}

	task.Plan = plan
	if err := transitionTask(ctx, h.taskStorage, h.auditService, task, models.TaskStatePlanned); err != nil {
		return models.FailureResult(err.Error(), true)
	}

	h.logger.Info().
		Str("task_id", task.ID).
		Str("job_id", job.ID).
		Int("step_count", len(plan.Steps)).
		Dur("duration", duration).
		Msg("Plan stored")

	return h.dispatchExecution(ctx, job, task)
}

// dispatchExecution queues the execute_plan follow-up, preserving the
// job family's correlation
func (h *GeneratePlanHandler) dispatchExecution(ctx context.Context, parent *models.Job, task *models.Task) models.JobResult {
	payload, err := models.MarshalPayload(&models.ExecutePlanPayload{TaskID: task.ID})
	if err != nil {
		return models.FailureResult(err.Error(), false)
	}

	followUp := models.NewJob(models.JobTypeExecutePlan, payload, models.JobSourceHandler)
	followUp.IdempotencyKey = task.ID + ":execute"
	followUp.CorrelationID = parent.CorrelationID
	followUp.ParentJobID = parent.ID

	dispatch, err := h.dispatcher.Dispatch(ctx, followUp)
	if err != nil {
		return models.FailureResult(fmt.Sprintf("failed to dispatch execution for %s: %v", task.ID, err), true)
	}

	switch dispatch.Outcome {
	case interfaces.DispatchAccepted:
		h.logger.Info().
			Str("task_id", task.ID).
			Str("job_id", followUp.ID).
			Str("parent_job_id", parent.ID).
			Msg("Execution job dispatched")
		return models.SuccessResult()
	case interfaces.DispatchDeduplicated:
		h.logger.Info().
			Str("task_id", task.ID).
			Str("job_id", dispatch.JobID).
			Msg("Execution job already in flight")
		return models.SuccessResult()
	default:
		return models.FailureResult(fmt.Sprintf("execution job for %s was rejected: %s", task.ID, dispatch.Reason), true)
	}
}

// isRetryable classifies planner transport errors. Rate limits, server
// errors, and timed-out provider calls get another attempt.
func (h *GeneratePlanHandler) isRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	return llm.IsTransientError(err)
}
