// -----------------------------------------------------------------------
// Step Executor - Applies single plan steps to a workspace via the
// executor model role
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/faber/internal/common"
	"github.com/ternarybob/faber/internal/interfaces"
	"github.com/ternarybob/faber/internal/models"
	"github.com/ternarybob/faber/internal/services/container"
	"gopkg.in/yaml.v3"
)

// ErrInvalidChanges marks an executor response that does not parse into
// applicable workspace changes. These failures are permanent.
var ErrInvalidChanges = errors.New("invalid step changes")

// Workspace file contents above this size are elided from prompts
const maxContextFileBytes = 32 * 1024

const executorSystemPrompt = `You are a senior software engineer carrying out one step of an approved implementation plan inside a checked-out repository workspace.

Respond with a single fenced yaml block:

` + "```yaml\n" + `files:
  - path: relative/path/to/file.go
    content: |
      full new file contents
remove:
  - relative/path/no/longer/needed.go
commands:
  - go build ./...
notes: one line describing the change
` + "```" + `

Rules:
- Paths are relative to the repository root. Never use absolute paths or "..".
- A files entry replaces the whole file; always include complete contents.
- Use remove only for files this step deletes.
- Use commands sparingly for build or formatting work; they run in the repository root.
- Respond with only the yaml block.`

type fileChange struct {
	Path    string `yaml:"path"`
	Content string `yaml:"content"`
}

type stepChanges struct {
	Files    []fileChange `yaml:"files,omitempty"`
	Remove   []string     `yaml:"remove,omitempty"`
	Commands []string     `yaml:"commands,omitempty"`
	Notes    string       `yaml:"notes,omitempty"`
}

// StepExecutor turns one plan step into workspace changes. Every path
// the model proposes is validated before the workspace is touched.
type StepExecutor struct {
	llmService interfaces.LLMService
	logger     arbor.ILogger
}

// NewStepExecutor creates a step executor backed by the executor role
func NewStepExecutor(llmService interfaces.LLMService, logger arbor.ILogger) *StepExecutor {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &StepExecutor{
		llmService: llmService,
		logger:     logger,
	}
}

// ExecuteStep asks the executor model for the step's changes and applies
// them to the workspace
func (e *StepExecutor) ExecuteStep(ctx context.Context, workspace interfaces.Container, task *models.Task, step *models.PlanStep) error {
	if task == nil || task.Plan == nil {
		return fmt.Errorf("task with a plan is required")
	}

	prompt := e.buildStepPrompt(ctx, workspace, task, step)

	resp, err := e.llmService.Generate(ctx, interfaces.ModelRoleExecutor, &interfaces.CompletionRequest{
		Messages:          []interfaces.Message{{Role: "user", Content: prompt}},
		SystemInstruction: executorSystemPrompt,
		Temperature:       -1,
	})
	if err != nil {
		return fmt.Errorf("step %s generation failed: %w", step.ID, err)
	}

	changes, err := parseStepChanges(resp.Text)
	if err != nil {
		e.logger.Warn().Err(err).
			Str("task_id", task.ID).
			Str("step_id", step.ID).
			Str("provider", resp.Provider).
			Msg("Executor response could not be applied")
		return err
	}

	// Every proposed path is checked before any workspace operation runs
	for _, fc := range changes.Files {
		if err := container.ValidatePath(fc.Path); err != nil {
			return err
		}
	}
	for _, path := range changes.Remove {
		if err := container.ValidatePath(path); err != nil {
			return err
		}
	}

	for _, fc := range changes.Files {
		if err := workspace.WriteFile(ctx, fc.Path, []byte(fc.Content)); err != nil {
			return err
		}
	}
	for _, path := range changes.Remove {
		if err := workspace.Delete(ctx, path); err != nil {
			return err
		}
	}
	for _, command := range changes.Commands {
		result, err := workspace.Exec(ctx, "sh", "-c", command)
		if err != nil {
			return err
		}
		if result.ExitCode != 0 {
			return fmt.Errorf("step %s command %q exited %d: %s",
				step.ID, command, result.ExitCode, strings.TrimSpace(result.Stderr))
		}
	}

	e.logger.Info().
		Str("task_id", task.ID).
		Str("step_id", step.ID).
		Int("files", len(changes.Files)).
		Int("removed", len(changes.Remove)).
		Int("commands", len(changes.Commands)).
		Str("notes", changes.Notes).
		Msg("Plan step applied")

	return nil
}

// buildStepPrompt assembles the step instruction with the plan context
// and the current contents of the plan's file targets
func (e *StepExecutor) buildStepPrompt(ctx context.Context, workspace interfaces.Container, task *models.Task, step *models.PlanStep) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Repository: %s/%s\n", task.Owner, task.Repo)
	fmt.Fprintf(&b, "Issue #%d: %s\n\n", task.IssueNumber, task.IssueTitle)
	fmt.Fprintf(&b, "Problem: %s\n", task.Plan.ProblemSummary)

	if len(task.Plan.Constraints) > 0 {
		b.WriteString("Constraints:\n")
		for _, c := range task.Plan.Constraints {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}

	fmt.Fprintf(&b, "\nCurrent step (%s): %s\n", step.ID, step.Title)
	if step.Details != "" {
		fmt.Fprintf(&b, "%s\n", step.Details)
	}

	for _, target := range task.Plan.FileTargets {
		if container.ValidatePath(target) != nil {
			continue
		}
		data, err := workspace.ReadFile(ctx, target)
		if err != nil {
			continue
		}
		if len(data) > maxContextFileBytes {
			fmt.Fprintf(&b, "\n--- %s (truncated) ---\n%s\n", target, data[:maxContextFileBytes])
			continue
		}
		fmt.Fprintf(&b, "\n--- %s ---\n%s\n", target, data)
	}

	return b.String()
}

var changesFencePattern = regexp.MustCompile("(?s)```(?:yaml|yml)\\s*\\n(.*?)\\n\\s*```")

// parseStepChanges extracts and validates the yaml change set from an
// executor response
func parseStepChanges(response string) (*stepChanges, error) {
	raw := extractChangesYAML(response)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty executor response", ErrInvalidChanges)
	}

	var changes stepChanges
	if err := yaml.Unmarshal([]byte(raw), &changes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChanges, err)
	}

	if len(changes.Files) == 0 && len(changes.Remove) == 0 && len(changes.Commands) == 0 {
		return nil, fmt.Errorf("%w: no files, removals, or commands", ErrInvalidChanges)
	}
	for _, fc := range changes.Files {
		if fc.Path == "" {
			return nil, fmt.Errorf("%w: file entry with empty path", ErrInvalidChanges)
		}
	}

	return &changes, nil
}

func extractChangesYAML(response string) string {
	if match := changesFencePattern.FindStringSubmatch(response); len(match) > 1 {
		return strings.TrimSpace(match[1])
	}

	trimmed := strings.TrimSpace(response)
	trimmed = strings.TrimPrefix(trimmed, "```yaml")
	trimmed = strings.TrimPrefix(trimmed, "```yml")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}
