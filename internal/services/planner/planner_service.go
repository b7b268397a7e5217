package planner

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/faber/internal/common"
	"github.com/ternarybob/faber/internal/interfaces"
	"github.com/ternarybob/faber/internal/models"
	"gopkg.in/yaml.v3"
)

// ErrInvalidPlan marks planner output that failed parsing or schema
// validation. These failures are permanent; callers should not retry.
var ErrInvalidPlan = errors.New("invalid plan")

// plannerSystemPrompt instructs the model to answer with one fenced
// yaml document matching the plan schema.
const plannerSystemPrompt = `You are a senior software engineer planning a code change.

Turn the issue into a concrete implementation plan. Respond with a
single fenced yaml block and nothing else.

The yaml document must have this shape:

` + "```yaml\n" + `problem_summary: one paragraph describing the problem and the intended fix
constraints:
  - optional constraints the change must respect
steps:
  - id: step-1
    title: short imperative title
    details: what to change and where
checklist:
  - optional verification items
file_targets:
  - optional paths likely to change
` + "```" + `

Rules:
- problem_summary is required
- at least one step is required; every step needs an id and a title
- step order is the execution order
- keep steps small and independently verifiable
- never invent repository structure you were not shown`

// yamlFencePattern grabs the first fenced yaml block in a response
var yamlFencePattern = regexp.MustCompile("(?s)```(?:yaml|yml)\\s*\\n(.*?)\\n\\s*```")

// Service generates implementation plans from issue content using the
// planner model role.
type Service struct {
	llmService interfaces.LLMService
	validate   *validator.Validate
	logger     arbor.ILogger
}

// Ensure Service implements the PlannerService interface
var _ interfaces.PlannerService = (*Service)(nil)

// NewService creates a planner service over the configured LLM roles
func NewService(llmService interfaces.LLMService, logger arbor.ILogger) *Service {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Service{
		llmService: llmService,
		validate:   validator.New(),
		logger:     logger,
	}
}

// GeneratePlan produces and validates a plan for the task's issue
func (s *Service) GeneratePlan(ctx context.Context, task *models.Task) (*models.Plan, error) {
	if task == nil {
		return nil, fmt.Errorf("task is required")
	}
	if s.llmService == nil {
		return nil, fmt.Errorf("llm service is not configured")
	}

	startTime := time.Now()
	s.logger.Debug().
		Str("task_id", task.ID).
		Msg("Starting plan generation")

	resp, err := s.llmService.Generate(ctx, interfaces.ModelRolePlanner, &interfaces.CompletionRequest{
		Messages: []interfaces.Message{
			{Role: "user", Content: buildPlanPrompt(task)},
		},
		SystemInstruction: plannerSystemPrompt,
		Temperature:       -1, // role default
	})
	if err != nil {
		return nil, fmt.Errorf("plan generation failed: %w", err)
	}

	plan, err := s.parsePlan(resp.Text)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("task_id", task.ID).
			Str("provider", resp.Provider).
			Msg("Planner returned an unusable plan")
		return nil, err
	}

	s.logger.Info().
		Str("task_id", task.ID).
		Int("step_count", len(plan.Steps)).
		Str("provider", resp.Provider).
		Str("model", resp.Model).
		Dur("duration", time.Since(startTime)).
		Msg("Plan generated")

	return plan, nil
}

// buildPlanPrompt renders the issue as the user message
func buildPlanPrompt(task *models.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s/%s\n", task.Owner, task.Repo)
	fmt.Fprintf(&b, "Issue #%d: %s\n", task.IssueNumber, task.IssueTitle)
	if task.IssueBody != "" {
		b.WriteString("\n")
		b.WriteString(task.IssueBody)
		b.WriteString("\n")
	}
	return b.String()
}

// parsePlan extracts, unmarshals, and schema-checks the plan yaml.
// All failures wrap ErrInvalidPlan.
func (s *Service) parsePlan(response string) (*models.Plan, error) {
	payload := extractPlanYAML(response)
	if payload == "" {
		return nil, fmt.Errorf("%w: empty planner response", ErrInvalidPlan)
	}

	var plan models.Plan
	if err := yaml.Unmarshal([]byte(payload), &plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}

	if err := s.validate.Struct(&plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}

	return &plan, nil
}

// extractPlanYAML pulls the fenced yaml payload out of the response.
// Responses that are pure yaml without fences pass through.
func extractPlanYAML(response string) string {
	if matches := yamlFencePattern.FindStringSubmatch(response); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}

	s := strings.TrimSpace(response)
	s = strings.TrimPrefix(s, "```yaml")
	s = strings.TrimPrefix(s, "```yml")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
