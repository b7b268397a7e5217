package planner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/faber/internal/interfaces"
	"github.com/ternarybob/faber/internal/models"
)

// MockLLMService is a mock implementation of LLMService
type MockLLMService struct {
	mock.Mock
}

func (m *MockLLMService) ProviderFor(role interfaces.ModelRole) (interfaces.LLMProvider, error) {
	args := m.Called(role)
	if provider, ok := args.Get(0).(interfaces.LLMProvider); ok {
		return provider, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLLMService) Generate(ctx context.Context, role interfaces.ModelRole, req *interfaces.CompletionRequest) (*interfaces.CompletionResponse, error) {
	args := m.Called(ctx, role, req)
	if resp, ok := args.Get(0).(*interfaces.CompletionResponse); ok {
		return resp, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLLMService) Close() error {
	args := m.Called()
	return args.Error(0)
}

func plannerTask() *models.Task {
	task := models.NewTask(42, "octo", "widgets", 7)
	task.IssueTitle = "Fix the flaky retry loop"
	task.IssueBody = "Retries give up after the first timeout."
	return task
}

const validPlanResponse = "Here is the plan you asked for:\n\n```yaml\n" +
	"problem_summary: Retries stop after one timeout because the loop breaks early.\n" +
	"constraints:\n" +
	"  - keep the public API unchanged\n" +
	"steps:\n" +
	"  - id: step-1\n" +
	"    title: Fix the loop condition\n" +
	"    details: Continue until attempts are exhausted.\n" +
	"  - id: step-2\n" +
	"    title: Add a regression test\n" +
	"checklist:\n" +
	"  - all tests pass\n" +
	"file_targets:\n" +
	"  - internal/retry/retry.go\n" +
	"```\n\nGood luck!"

func TestGeneratePlan(t *testing.T) {
	mockLLM := new(MockLLMService)
	mockLLM.On("Generate", mock.Anything, interfaces.ModelRolePlanner, mock.Anything).
		Return(&interfaces.CompletionResponse{Text: validPlanResponse, Provider: "anthropic", Model: "claude-sonnet-4-5"}, nil)

	service := NewService(mockLLM, arbor.NewLogger())

	plan, err := service.GeneratePlan(context.Background(), plannerTask())
	require.NoError(t, err)

	assert.Contains(t, plan.ProblemSummary, "loop breaks early")
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "step-1", plan.Steps[0].ID)
	assert.Equal(t, "Fix the loop condition", plan.Steps[0].Title)
	assert.Equal(t, []string{"keep the public API unchanged"}, plan.Constraints)
	assert.Equal(t, []string{"internal/retry/retry.go"}, plan.FileTargets)

	// The request carries the issue content and the yaml instructions
	req := mockLLM.Calls[0].Arguments.Get(2).(*interfaces.CompletionRequest)
	require.Len(t, req.Messages, 1)
	assert.Contains(t, req.Messages[0].Content, "octo/widgets")
	assert.Contains(t, req.Messages[0].Content, "Fix the flaky retry loop")
	assert.Contains(t, req.Messages[0].Content, "Retries give up after the first timeout.")
	assert.Contains(t, req.SystemInstruction, "yaml")
	assert.Equal(t, float32(-1), req.Temperature)
	mockLLM.AssertExpectations(t)
}

func TestGeneratePlan_UnfencedYAML(t *testing.T) {
	response := "problem_summary: Straight yaml with no fences.\nsteps:\n  - id: step-1\n    title: Do the thing\n"
	mockLLM := new(MockLLMService)
	mockLLM.On("Generate", mock.Anything, interfaces.ModelRolePlanner, mock.Anything).
		Return(&interfaces.CompletionResponse{Text: response, Provider: "openai", Model: "gpt-4o"}, nil)

	service := NewService(mockLLM, arbor.NewLogger())

	plan, err := service.GeneratePlan(context.Background(), plannerTask())
	require.NoError(t, err)
	assert.Equal(t, "Straight yaml with no fences.", plan.ProblemSummary)
	require.Len(t, plan.Steps, 1)
}

func TestGeneratePlan_ParseFailure(t *testing.T) {
	mockLLM := new(MockLLMService)
	mockLLM.On("Generate", mock.Anything, interfaces.ModelRolePlanner, mock.Anything).
		Return(&interfaces.CompletionResponse{Text: "```yaml\n{not: [valid yaml\n```", Provider: "openai", Model: "gpt-4o"}, nil)

	service := NewService(mockLLM, arbor.NewLogger())

	_, err := service.GeneratePlan(context.Background(), plannerTask())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPlan))
}

func TestGeneratePlan_SchemaFailure(t *testing.T) {
	// Parses fine but has no steps
	response := "```yaml\nproblem_summary: Summary without steps.\n```"
	mockLLM := new(MockLLMService)
	mockLLM.On("Generate", mock.Anything, interfaces.ModelRolePlanner, mock.Anything).
		Return(&interfaces.CompletionResponse{Text: response, Provider: "openai", Model: "gpt-4o"}, nil)

	service := NewService(mockLLM, arbor.NewLogger())

	_, err := service.GeneratePlan(context.Background(), plannerTask())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPlan))
}

func TestGeneratePlan_StepMissingTitle(t *testing.T) {
	response := "```yaml\nproblem_summary: Steps missing titles fail validation.\nsteps:\n  - id: step-1\n```"
	mockLLM := new(MockLLMService)
	mockLLM.On("Generate", mock.Anything, interfaces.ModelRolePlanner, mock.Anything).
		Return(&interfaces.CompletionResponse{Text: response, Provider: "openai", Model: "gpt-4o"}, nil)

	service := NewService(mockLLM, arbor.NewLogger())

	_, err := service.GeneratePlan(context.Background(), plannerTask())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPlan))
}

func TestGeneratePlan_TransportErrorIsNotInvalidPlan(t *testing.T) {
	mockLLM := new(MockLLMService)
	mockLLM.On("Generate", mock.Anything, interfaces.ModelRolePlanner, mock.Anything).
		Return(nil, errors.New("Anthropic API call failed: 503"))

	service := NewService(mockLLM, arbor.NewLogger())

	_, err := service.GeneratePlan(context.Background(), plannerTask())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidPlan))
	assert.Contains(t, err.Error(), "plan generation failed")
}

func TestGeneratePlan_NilTask(t *testing.T) {
	service := NewService(new(MockLLMService), arbor.NewLogger())
	_, err := service.GeneratePlan(context.Background(), nil)
	require.Error(t, err)
}

func TestExtractPlanYAML(t *testing.T) {
	fenced := "intro\n```yaml\nkey: value\n```\noutro"
	assert.Equal(t, "key: value", extractPlanYAML(fenced))

	ymlFence := "```yml\nkey: value\n```"
	assert.Equal(t, "key: value", extractPlanYAML(ymlFence))

	bare := "key: value"
	assert.Equal(t, "key: value", extractPlanYAML(bare))

	assert.Equal(t, "", extractPlanYAML("   "))

	// First fence wins when the model repeats itself
	double := "```yaml\nfirst: 1\n```\n```yaml\nsecond: 2\n```"
	assert.True(t, strings.HasPrefix(extractPlanYAML(double), "first:"))
}
