// -----------------------------------------------------------------------
// Execute Plan Handler - Carries a plan through workspace execution to a
// draft pull request
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/faber/internal/common"
	"github.com/ternarybob/faber/internal/interfaces"
	"github.com/ternarybob/faber/internal/models"
	"github.com/ternarybob/faber/internal/services/container"
)

const (
	commitAuthorName  = "faber-agent"
	commitAuthorEmail = "faber-agent@users.noreply.github.com"
)

// PlanStepExecutor applies one plan step to a workspace
type PlanStepExecutor interface {
	ExecuteStep(ctx context.Context, workspace interfaces.Container, task *models.Task, step *models.PlanStep) error
}

// ExecutePlanHandler executes execute_plan jobs: it provisions a
// workspace, applies the plan's steps, pushes the resulting branch, and
// opens a draft pull request back on the issue.
type ExecutePlanHandler struct {
	taskStorage  interfaces.TaskStorage
	containers   interfaces.ContainerService
	platform     interfaces.PlatformService
	executor     PlanStepExecutor
	auditService interfaces.AuditService
	logger       arbor.ILogger
}

// Ensure interface compliance
var _ interfaces.JobHandler = (*ExecutePlanHandler)(nil)

// NewExecutePlanHandler creates the execution job handler
func NewExecutePlanHandler(taskStorage interfaces.TaskStorage, containers interfaces.ContainerService, platform interfaces.PlatformService, executor PlanStepExecutor, auditService interfaces.AuditService, logger arbor.ILogger) *ExecutePlanHandler {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &ExecutePlanHandler{
		taskStorage:  taskStorage,
		containers:   containers,
		platform:     platform,
		executor:     executor,
		auditService: auditService,
		logger:       logger,
	}
}

// Type returns the job type this handler executes
func (h *ExecutePlanHandler) Type() string {
	return models.JobTypeExecutePlan
}

// Execute runs one execution attempt
func (h *ExecutePlanHandler) Execute(ctx context.Context, job *models.Job) models.JobResult {
	var payload models.ExecutePlanPayload
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
	if task.Plan == nil {
		return models.FailureResult(fmt.Sprintf("task %s has no plan", task.ID), false)
	}

	switch task.Status {
	case models.TaskStateCompleted:
		// A prior attempt finished; nothing left to do
		return models.SuccessResult()
	case models.TaskStateFailed:
		return models.FailureResult(fmt.Sprintf("task %s already failed", task.ID), false)
	case models.TaskStatePlanned, models.TaskStateBlocked:
		if err := transitionTask(ctx, h.taskStorage, h.auditService, task, models.TaskStateExecuting); err != nil {
			return models.FailureResult(err.Error(), true)
		}
	case models.TaskStateExecuting:
		// Resuming a retried attempt
	default:
		return models.FailureResult(fmt.Sprintf("task %s is in state %s, not ready for execution", task.ID, task.Status), false)
	}

	start := time.Now()
	err = h.run(ctx, task)
	duration := time.Since(start)

	if h.auditService != nil {
		h.auditService.LogPlanExecution(ctx, task.ID, duration, err)
	}

	if err != nil {
		if h.isPermanent(err) {
			failTask(h.taskStorage, h.auditService, h.logger, task)
			return models.FailureResult(err.Error(), false)
		}
		h.logger.Warn().Err(err).
			Str("task_id", task.ID).
			Str("job_id", job.ID).
			Msg("Plan execution attempt failed")
		return models.FailureResult(err.Error(), true)
	}

	h.logger.Info().
		Str("task_id", task.ID).
		Str("job_id", job.ID).
		Str("branch", task.BranchName).
		Str("pull_request", task.PullRequestURL).
		Dur("duration", duration).
		Msg("Plan executed")

	return models.SuccessResult()
}

// run performs the execution pipeline: branch, workspace, steps, push,
// pull request, comment, completion
func (h *ExecutePlanHandler) run(ctx context.Context, task *models.Task) error {
	repo, err := h.platform.GetRepository(ctx, task.Owner, task.Repo)
	if err != nil {
		return fmt.Errorf("failed to resolve repository: %w", err)
	}

	branch := branchName(task)
	if err := h.ensureBranch(ctx, task, repo, branch); err != nil {
		return err
	}

	workspace, err := h.containers.Create(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	defer func() {
		// The job context may already be dead on failure paths
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if cleanupErr := workspace.Cleanup(cleanupCtx); cleanupErr != nil {
			h.logger.Warn().Err(cleanupErr).
				Str("container_id", workspace.ID()).
				Msg("Workspace cleanup failed")
		}
	}()

	if err := h.checkout(ctx, workspace, repo, branch); err != nil {
		return err
	}

	for i := range task.Plan.Steps {
		step := &task.Plan.Steps[i]
		if err := h.executor.ExecuteStep(ctx, workspace, task, step); err != nil {
			return err
		}
		// Persisted with the completion write once the push lands
		step.Done = true
	}

	if err := workspace.CommitAndPush(ctx, &interfaces.CommitRequest{
		Branch:      branch,
		Message:     commitMessage(task),
		AuthorName:  commitAuthorName,
		AuthorEmail: commitAuthorEmail,
	}); err != nil {
		return fmt.Errorf("failed to push changes: %w", err)
	}

	pr, err := h.ensurePullRequest(ctx, task, repo, branch)
	if err != nil {
		return err
	}

	comment := fmt.Sprintf("Draft pull request ready: %s\n\n%s", pr.URL, task.Plan.Markdown())
	if err := h.platform.CreateIssueComment(ctx, task.Owner, task.Repo, task.IssueNumber, comment); err != nil {
		return fmt.Errorf("failed to comment on issue: %w", err)
	}

	task.BranchName = branch
	task.PullRequestURL = pr.URL
	return transitionTask(ctx, h.taskStorage, h.auditService, task, models.TaskStateCompleted)
}

// ensureBranch creates the task branch from the default branch head,
// tolerating a branch left behind by a retried attempt
func (h *ExecutePlanHandler) ensureBranch(ctx context.Context, task *models.Task, repo *interfaces.Repository, branch string) error {
	base, err := h.platform.GetReference(ctx, task.Owner, task.Repo, "heads/"+repo.DefaultBranch)
	if err != nil {
		return fmt.Errorf("failed to resolve base branch: %w", err)
	}

	if _, err := h.platform.CreateReference(ctx, task.Owner, task.Repo, "heads/"+branch, base.SHA); err != nil {
		if existing, lookupErr := h.platform.GetReference(ctx, task.Owner, task.Repo, "heads/"+branch); lookupErr == nil && existing != nil {
			return nil
		}
		return fmt.Errorf("failed to create branch %s: %w", branch, err)
	}
	return nil
}

// checkout clones the repository into the workspace on the task branch
func (h *ExecutePlanHandler) checkout(ctx context.Context, workspace interfaces.Container, repo *interfaces.Repository, branch string) error {
	result, err := workspace.Exec(ctx, "git", "clone", "--branch", branch, repo.CloneURL, ".")
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("git clone failed: %s", strings.TrimSpace(result.Stderr))
	}
	return nil
}

// ensurePullRequest opens the draft pull request, falling back to an
// already-open one from a retried attempt
func (h *ExecutePlanHandler) ensurePullRequest(ctx context.Context, task *models.Task, repo *interfaces.Repository, branch string) (*interfaces.PullRequest, error) {
	pr, err := h.platform.CreatePullRequest(ctx, task.Owner, task.Repo, &interfaces.NewPullRequest{
		Title: pullRequestTitle(task),
		Body:  fmt.Sprintf("Closes #%d\n\n%s", task.IssueNumber, task.Plan.Markdown()),
		Head:  branch,
		Base:  repo.DefaultBranch,
		Draft: true,
	})
	if err == nil {
		return pr, nil
	}

	existing, listErr := h.platform.ListPullRequests(ctx, task.Owner, task.Repo, &interfaces.ListPullRequestsOptions{
		State: "open",
		Head:  task.Owner + ":" + branch,
	})
	if listErr == nil && len(existing) > 0 {
		return existing[0], nil
	}

	return nil, fmt.Errorf("failed to create pull request: %w", err)
}

// isPermanent classifies failures that another attempt cannot fix
func (h *ExecutePlanHandler) isPermanent(err error) bool {
	return errors.Is(err, ErrInvalidChanges) ||
		errors.Is(err, container.ErrOutOfWorkspace) ||
		errors.Is(err, container.ErrNoChanges)
}

func branchName(task *models.Task) string {
	return fmt.Sprintf("faber/%s-%s-%d", task.Owner, task.Repo, task.IssueNumber)
}

func commitMessage(task *models.Task) string {
	if task.IssueTitle == "" {
		return fmt.Sprintf("Apply plan for issue #%d", task.IssueNumber)
	}
	return fmt.Sprintf("Apply plan for issue #%d: %s", task.IssueNumber, task.IssueTitle)
}

func pullRequestTitle(task *models.Task) string {
	if task.IssueTitle == "" {
		return fmt.Sprintf("Resolve issue #%d", task.IssueNumber)
	}
	return task.IssueTitle
}
