package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/faber/internal/interfaces"
	"github.com/ternarybob/faber/internal/models"
	"github.com/ternarybob/faber/internal/services/planner"
)

// MockTaskStorage is a mock implementation of TaskStorage
type MockTaskStorage struct {
	mock.Mock
}

func (m *MockTaskStorage) Create(ctx context.Context, task *models.Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockTaskStorage) Get(ctx context.Context, id string) (*models.Task, error) {
	args := m.Called(ctx, id)
	if task, ok := args.Get(0).(*models.Task); ok {
		return task, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTaskStorage) Update(ctx context.Context, task *models.Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockTaskStorage) List(ctx context.Context, skip, take int) ([]*models.Task, error) {
	args := m.Called(ctx, skip, take)
	if tasks, ok := args.Get(0).([]*models.Task); ok {
		return tasks, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTaskStorage) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// MockDispatcher is a mock implementation of JobDispatcher
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) RegisterHandler(handler interfaces.JobHandler) error {
	args := m.Called(handler)
	return args.Error(0)
}

func (m *MockDispatcher) HandlerFor(jobType string) (interfaces.JobHandler, bool) {
	args := m.Called(jobType)
	if handler, ok := args.Get(0).(interfaces.JobHandler); ok {
		return handler, args.Bool(1)
	}
	return nil, args.Bool(1)
}

func (m *MockDispatcher) Dispatch(ctx context.Context, job *models.Job) (interfaces.DispatchResult, error) {
	args := m.Called(ctx, job)
	return args.Get(0).(interfaces.DispatchResult), args.Error(1)
}

func (m *MockDispatcher) CancelJob(jobID string) error {
	args := m.Called(jobID)
	return args.Error(0)
}

// MockPlannerService is a mock implementation of PlannerService
type MockPlannerService struct {
	mock.Mock
}

func (m *MockPlannerService) GeneratePlan(ctx context.Context, task *models.Task) (*models.Plan, error) {
	args := m.Called(ctx, task)
	if plan, ok := args.Get(0).(*models.Plan); ok {
		return plan, args.Error(1)
	}
	return nil, args.Error(1)
}

// jobsAuditRecorder captures task transitions and plan run outcomes and
// ignores the rest
type jobsAuditRecorder struct {
	mu          sync.Mutex
	transitions []string
	planRuns    []error
	execRuns    []error
}

var _ interfaces.AuditService = (*jobsAuditRecorder)(nil)

func (a *jobsAuditRecorder) Record(ctx context.Context, event *models.AuditEvent) {}
func (a *jobsAuditRecorder) LogWebhookReceived(ctx context.Context, event *models.IssueWebhookEvent, outcome models.WebhookOutcome) {
}
func (a *jobsAuditRecorder) LogWebhookValidation(ctx context.Context, deliveryID string, err error) {}
func (a *jobsAuditRecorder) LogJobStateTransition(ctx context.Context, status *models.JobStatus, from models.JobState) {
}
func (a *jobsAuditRecorder) LogPlatformAPICall(ctx context.Context, operation, target string, duration time.Duration, err error) {
}
func (a *jobsAuditRecorder) LogContainerOperation(ctx context.Context, containerID, operation string, duration time.Duration, err error) {
}
func (a *jobsAuditRecorder) LogFileOperation(ctx context.Context, containerID, operation, path string, err error) {
}
func (a *jobsAuditRecorder) Query(ctx context.Context, filter *models.AuditFilter, skip, take int) ([]*models.AuditEvent, error) {
	return nil, nil
}

func (a *jobsAuditRecorder) LogTaskStateTransition(ctx context.Context, taskID string, from, to models.TaskState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transitions = append(a.transitions, fmt.Sprintf("%s>%s", from, to))
}

func (a *jobsAuditRecorder) LogPlanGeneration(ctx context.Context, taskID string, duration time.Duration, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.planRuns = append(a.planRuns, err)
}

func (a *jobsAuditRecorder) LogPlanExecution(ctx context.Context, taskID string, duration time.Duration, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.execRuns = append(a.execRuns, err)
}

func (a *jobsAuditRecorder) taskTransitions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.transitions...)
}

func planningTask() *models.Task {
	task := models.NewTask(42, "octo", "widgets", 7)
	task.IssueTitle = "Fix the flaky retry loop"
	task.IssueBody = "Retries give up after the first timeout."
	return task
}

func storedPlan() *models.Plan {
	return &models.Plan{
		ProblemSummary: "Retries stop after one timeout because the loop breaks early.",
		Steps: []models.PlanStep{
			{ID: "step-1", Title: "Fix the loop condition"},
			{ID: "step-2", Title: "Add a regression test"},
		},
		FileTargets: []string{"internal/retry/retry.go"},
	}
}

func generatePlanJob(t *testing.T, task *models.Task) *models.Job {
	payload, err := models.MarshalPayload(&models.GeneratePlanPayload{
		TaskID:      task.ID,
		Owner:       task.Owner,
		Repo:        task.Repo,
		IssueNumber: task.IssueNumber,
	})
	require.NoError(t, err)

	job := models.NewJob(models.JobTypeGeneratePlan, payload, models.JobSourceWebhook)
	job.IdempotencyKey = task.ID
	job.CorrelationID = task.ID
	return job
}

func TestGeneratePlanExecute_StoresPlanAndDispatchesExecution(t *testing.T) {
	task := planningTask()
	plan := storedPlan()
	taskStorage := new(MockTaskStorage)
	plannerService := new(MockPlannerService)
	dispatcher := new(MockDispatcher)
	audit := &jobsAuditRecorder{}

	taskStorage.On("Get", mock.Anything, task.ID).Return(task, nil)
	taskStorage.On("Update", mock.Anything, task).Return(nil)
	plannerService.On("GeneratePlan", mock.Anything, task).Return(plan, nil)
	dispatcher.On("Dispatch", mock.Anything, mock.Anything).
		Return(interfaces.DispatchResult{Outcome: interfaces.DispatchAccepted}, nil)

	handler := NewGeneratePlanHandler(taskStorage, plannerService, dispatcher, audit, arbor.NewLogger())
	assert.Equal(t, models.JobTypeGeneratePlan, handler.Type())

	job := generatePlanJob(t, task)
	result := handler.Execute(context.Background(), job)

	assert.True(t, result.Success)
	assert.Equal(t, models.TaskStatePlanned, task.Status)
	assert.Equal(t, plan, task.Plan)
	assert.Equal(t, []string{"pending_planning>planned"}, audit.taskTransitions())
	require.Len(t, audit.planRuns, 1)
	assert.NoError(t, audit.planRuns[0])

	// The follow-up job stays in the parent's family and carries the
	// execution idempotency key
	followUp := dispatcher.Calls[0].Arguments.Get(1).(*models.Job)
	assert.Equal(t, models.JobTypeExecutePlan, followUp.Type)
	assert.Equal(t, models.JobSourceHandler, followUp.Source)
	assert.Equal(t, task.ID+":execute", followUp.IdempotencyKey)
	assert.Equal(t, job.CorrelationID, followUp.CorrelationID)
	assert.Equal(t, job.ID, followUp.ParentJobID)

	var payload models.ExecutePlanPayload
	require.NoError(t, followUp.UnmarshalPayload(&payload))
	assert.Equal(t, task.ID, payload.TaskID)
	taskStorage.AssertExpectations(t)
}

func TestGeneratePlanExecute_InvalidPlanFailsTask(t *testing.T) {
	task := planningTask()
	taskStorage := new(MockTaskStorage)
	plannerService := new(MockPlannerService)
	dispatcher := new(MockDispatcher)
	audit := &jobsAuditRecorder{}

	taskStorage.On("Get", mock.Anything, task.ID).Return(task, nil)
	taskStorage.On("Update", mock.Anything, task).Return(nil)
	plannerService.On("GeneratePlan", mock.Anything, task).
		Return(nil, fmt.Errorf("%w: yaml does not parse", planner.ErrInvalidPlan))

	handler := NewGeneratePlanHandler(taskStorage, plannerService, dispatcher, audit, arbor.NewLogger())
	result := handler.Execute(context.Background(), generatePlanJob(t, task))

	assert.False(t, result.Success)
	assert.False(t, result.ShouldRetry)
	assert.Equal(t, models.TaskStateFailed, task.Status)
	assert.Equal(t, []string{"pending_planning>failed"}, audit.taskTransitions())
	require.Len(t, audit.planRuns, 1)
	assert.Error(t, audit.planRuns[0])
	dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestGeneratePlanExecute_TransientErrorRetries(t *testing.T) {
	task := planningTask()
	taskStorage := new(MockTaskStorage)
	plannerService := new(MockPlannerService)
	dispatcher := new(MockDispatcher)

	taskStorage.On("Get", mock.Anything, task.ID).Return(task, nil)
	plannerService.On("GeneratePlan", mock.Anything, task).
		Return(nil, errors.New("anthropic: 503 upstream unavailable"))

	handler := NewGeneratePlanHandler(taskStorage, plannerService, dispatcher, &jobsAuditRecorder{}, arbor.NewLogger())
	result := handler.Execute(context.Background(), generatePlanJob(t, task))

	assert.False(t, result.Success)
	assert.True(t, result.ShouldRetry)
	assert.Equal(t, models.TaskStatePendingPlanning, task.Status)
	taskStorage.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestGeneratePlanExecute_DeadlineIsRetryable(t *testing.T) {
	task := planningTask()
	taskStorage := new(MockTaskStorage)
	plannerService := new(MockPlannerService)

	taskStorage.On("Get", mock.Anything, task.ID).Return(task, nil)
	plannerService.On("GeneratePlan", mock.Anything, task).
		Return(nil, fmt.Errorf("planner call: %w", context.DeadlineExceeded))

	handler := NewGeneratePlanHandler(taskStorage, plannerService, new(MockDispatcher), &jobsAuditRecorder{}, arbor.NewLogger())
	result := handler.Execute(context.Background(), generatePlanJob(t, task))

	assert.False(t, result.Success)
	assert.True(t, result.ShouldRetry)
}

func TestGeneratePlanExecute_UnknownPlannerErrorIsPermanent(t *testing.T) {
	task := planningTask()
	taskStorage := new(MockTaskStorage)
	plannerService := new(MockPlannerService)

	taskStorage.On("Get", mock.Anything, task.ID).Return(task, nil)
	plannerService.On("GeneratePlan", mock.Anything, task).
		Return(nil, errors.New("provider rejected the request"))

	handler := NewGeneratePlanHandler(taskStorage, plannerService, new(MockDispatcher), &jobsAuditRecorder{}, arbor.NewLogger())
	result := handler.Execute(context.Background(), generatePlanJob(t, task))

	assert.False(t, result.Success)
	assert.False(t, result.ShouldRetry)

	// The task keeps waiting for planning; only invalid plans fail it
	assert.Equal(t, models.TaskStatePendingPlanning, task.Status)
	taskStorage.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestGeneratePlanExecute_PlannedReplayDispatchesWithoutPlanning(t *testing.T) {
	task := planningTask()
	task.Status = models.TaskStatePlanned
	task.Plan = storedPlan()
	taskStorage := new(MockTaskStorage)
	plannerService := new(MockPlannerService)
	dispatcher := new(MockDispatcher)

	taskStorage.On("Get", mock.Anything, task.ID).Return(task, nil)
	dispatcher.On("Dispatch", mock.Anything, mock.Anything).
		Return(interfaces.DispatchResult{Outcome: interfaces.DispatchAccepted}, nil)

	handler := NewGeneratePlanHandler(taskStorage, plannerService, dispatcher, &jobsAuditRecorder{}, arbor.NewLogger())
	job := generatePlanJob(t, task)
	result := handler.Execute(context.Background(), job)

	assert.True(t, result.Success)
	plannerService.AssertNotCalled(t, "GeneratePlan", mock.Anything, mock.Anything)

	followUp := dispatcher.Calls[0].Arguments.Get(1).(*models.Job)
	assert.Equal(t, task.ID+":execute", followUp.IdempotencyKey)
	assert.Equal(t, job.ID, followUp.ParentJobID)
}

func TestGeneratePlanExecute_PlannedWithoutPlanIsPermanent(t *testing.T) {
	task := planningTask()
	task.Status = models.TaskStatePlanned
	taskStorage := new(MockTaskStorage)

	taskStorage.On("Get", mock.Anything, task.ID).Return(task, nil)

	handler := NewGeneratePlanHandler(taskStorage, new(MockPlannerService), new(MockDispatcher), &jobsAuditRecorder{}, arbor.NewLogger())
	result := handler.Execute(context.Background(), generatePlanJob(t, task))

	assert.False(t, result.Success)
	assert.False(t, result.ShouldRetry)
}

func TestGeneratePlanExecute_MissingTaskIsPermanent(t *testing.T) {
	task := planningTask()
	taskStorage := new(MockTaskStorage)
	taskStorage.On("Get", mock.Anything, task.ID).Return(nil, nil)

	handler := NewGeneratePlanHandler(taskStorage, new(MockPlannerService), new(MockDispatcher), &jobsAuditRecorder{}, arbor.NewLogger())
	result := handler.Execute(context.Background(), generatePlanJob(t, task))

	assert.False(t, result.Success)
	assert.False(t, result.ShouldRetry)
}

func TestGeneratePlanExecute_StorageErrorRetries(t *testing.T) {
	task := planningTask()
	taskStorage := new(MockTaskStorage)
	taskStorage.On("Get", mock.Anything, task.ID).Return(nil, errors.New("store closed"))

	handler := NewGeneratePlanHandler(taskStorage, new(MockPlannerService), new(MockDispatcher), &jobsAuditRecorder{}, arbor.NewLogger())
	result := handler.Execute(context.Background(), generatePlanJob(t, task))

	assert.False(t, result.Success)
	assert.True(t, result.ShouldRetry)
}

func TestGeneratePlanExecute_BadPayloadIsPermanent(t *testing.T) {
	handler := NewGeneratePlanHandler(new(MockTaskStorage), new(MockPlannerService), new(MockDispatcher), &jobsAuditRecorder{}, arbor.NewLogger())

	job := models.NewJob(models.JobTypeGeneratePlan, []byte("{not json"), models.JobSourceWebhook)
	result := handler.Execute(context.Background(), job)

	assert.False(t, result.Success)
	assert.False(t, result.ShouldRetry)
}

func TestGeneratePlanExecute_RejectedDispatchRetries(t *testing.T) {
	task := planningTask()
	taskStorage := new(MockTaskStorage)
	plannerService := new(MockPlannerService)
	dispatcher := new(MockDispatcher)

	taskStorage.On("Get", mock.Anything, task.ID).Return(task, nil)
	taskStorage.On("Update", mock.Anything, task).Return(nil)
	plannerService.On("GeneratePlan", mock.Anything, task).Return(storedPlan(), nil)
	dispatcher.On("Dispatch", mock.Anything, mock.Anything).
		Return(interfaces.DispatchResult{Outcome: interfaces.DispatchRejected, Reason: "queue full"}, nil)

	handler := NewGeneratePlanHandler(taskStorage, plannerService, dispatcher, &jobsAuditRecorder{}, arbor.NewLogger())
	result := handler.Execute(context.Background(), generatePlanJob(t, task))

	assert.False(t, result.Success)
	assert.True(t, result.ShouldRetry)
	assert.Contains(t, result.Message, "rejected")

	// The plan landed, so the retried job replays into the dispatch path
	assert.Equal(t, models.TaskStatePlanned, task.Status)
}

func TestGeneratePlanExecute_DeduplicatedDispatchSucceeds(t *testing.T) {
	task := planningTask()
	task.Status = models.TaskStatePlanned
	task.Plan = storedPlan()
	taskStorage := new(MockTaskStorage)
	dispatcher := new(MockDispatcher)

	taskStorage.On("Get", mock.Anything, task.ID).Return(task, nil)
	dispatcher.On("Dispatch", mock.Anything, mock.Anything).
		Return(interfaces.DispatchResult{Outcome: interfaces.DispatchDeduplicated, JobID: "job-already-running"}, nil)

	handler := NewGeneratePlanHandler(taskStorage, new(MockPlannerService), dispatcher, &jobsAuditRecorder{}, arbor.NewLogger())
	result := handler.Execute(context.Background(), generatePlanJob(t, task))

	assert.True(t, result.Success)
}

func TestGeneratePlanExecute_UpdateFailureRetries(t *testing.T) {
	task := planningTask()
	taskStorage := new(MockTaskStorage)
	plannerService := new(MockPlannerService)
	dispatcher := new(MockDispatcher)

	taskStorage.On("Get", mock.Anything, task.ID).Return(task, nil)
	taskStorage.On("Update", mock.Anything, task).Return(errors.New("store closed"))
	plannerService.On("GeneratePlan", mock.Anything, task).Return(storedPlan(), nil)

	handler := NewGeneratePlanHandler(taskStorage, plannerService, dispatcher, &jobsAuditRecorder{}, arbor.NewLogger())
	result := handler.Execute(context.Background(), generatePlanJob(t, task))

	assert.False(t, result.Success)
	assert.True(t, result.ShouldRetry)

	// The failed write rolled the in-memory state back
	assert.Equal(t, models.TaskStatePendingPlanning, task.Status)
	dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}
