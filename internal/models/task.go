// -----------------------------------------------------------------------
// Task - Issue-scoped unit of work with plan and lifecycle state
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"strings"
	"time"
)

// TaskState represents the lifecycle state of a task
type TaskState string

const (
	TaskStatePendingPlanning TaskState = "pending_planning"
	TaskStatePlanned         TaskState = "planned"
	TaskStateExecuting       TaskState = "executing"
	TaskStateCompleted       TaskState = "completed"
	TaskStateFailed          TaskState = "failed"
	TaskStateBlocked         TaskState = "blocked"
)

// CanTransitionTo reports whether the forward state machine permits the
// move. Blocked and Failed are reachable from any non-terminal state.
func (s TaskState) CanTransitionTo(next TaskState) bool {
	if next == TaskStateBlocked || next == TaskStateFailed {
		return s != TaskStateCompleted && s != TaskStateFailed
	}
	switch s {
	case TaskStatePendingPlanning:
		return next == TaskStatePlanned
	case TaskStatePlanned:
		return next == TaskStateExecuting
	case TaskStateExecuting:
		return next == TaskStateCompleted
	case TaskStateBlocked:
		return next == TaskStatePlanned || next == TaskStateExecuting
	default:
		return false
	}
}

// IsTerminal returns true for states a task never leaves
func (s TaskState) IsTerminal() bool {
	return s == TaskStateCompleted || s == TaskStateFailed
}

// Task tracks one labeled issue through planning and execution.
// The ID is the natural key "{owner}/{repo}/issues/{number}".
type Task struct {
	ID             string    `json:"id"`
	InstallationID int64     `json:"installation_id"`
	Owner          string    `json:"owner"`
	Repo           string    `json:"repo"`
	IssueNumber    int       `json:"issue_number"`
	IssueTitle     string    `json:"issue_title,omitempty"`
	IssueBody      string    `json:"issue_body,omitempty"`
	Plan           *Plan     `json:"plan,omitempty"`
	Status         TaskState `json:"status"`
	BranchName     string    `json:"branch_name,omitempty"`
	PullRequestURL string    `json:"pull_request_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TaskID builds the natural task key for an issue
func TaskID(owner, repo string, issueNumber int) string {
	return fmt.Sprintf("%s/%s/issues/%d", owner, repo, issueNumber)
}

// NewTask creates a task in the initial planning state
func NewTask(installationID int64, owner, repo string, issueNumber int) *Task {
	now := time.Now()
	return &Task{
		ID:             TaskID(owner, repo, issueNumber),
		InstallationID: installationID,
		Owner:          owner,
		Repo:           repo,
		IssueNumber:    issueNumber,
		Status:         TaskStatePendingPlanning,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// -----------------------------------------------------------------------
// Plan - Structured implementation plan produced by the planner
// -----------------------------------------------------------------------

// PlanStep is one ordered step of a plan
type PlanStep struct {
	ID      string `json:"id" yaml:"id" validate:"required"`
	Title   string `json:"title" yaml:"title" validate:"required"`
	Details string `json:"details,omitempty" yaml:"details,omitempty"`
	Done    bool   `json:"done" yaml:"done"`
}

// Plan is the structured output of the planning phase. Step order is
// the execution order.
type Plan struct {
	ProblemSummary string     `json:"problem_summary" yaml:"problem_summary" validate:"required"`
	Constraints    []string   `json:"constraints,omitempty" yaml:"constraints,omitempty"`
	Steps          []PlanStep `json:"steps" yaml:"steps" validate:"required,min=1,dive"`
	Checklist      []string   `json:"checklist,omitempty" yaml:"checklist,omitempty"`
	FileTargets    []string   `json:"file_targets,omitempty" yaml:"file_targets,omitempty"`
}

// Markdown renders the plan for pull request bodies and issue comments
func (p *Plan) Markdown() string {
	var b strings.Builder

	b.WriteString("## Implementation Plan\n\n")
	b.WriteString(p.ProblemSummary)
	b.WriteString("\n")

	if len(p.Constraints) > 0 {
		b.WriteString("\n### Constraints\n\n")
		for _, c := range p.Constraints {
			b.WriteString(fmt.Sprintf("- %s\n", c))
		}
	}

	b.WriteString("\n### Steps\n\n")
	for i, step := range p.Steps {
		mark := " "
		if step.Done {
			mark = "x"
		}
		b.WriteString(fmt.Sprintf("%d. [%s] **%s**", i+1, mark, step.Title))
		if step.Details != "" {
			b.WriteString(fmt.Sprintf("\n   %s", step.Details))
		}
		b.WriteString("\n")
	}

	if len(p.Checklist) > 0 {
		b.WriteString("\n### Checklist\n\n")
		for _, item := range p.Checklist {
			b.WriteString(fmt.Sprintf("- [ ] %s\n", item))
		}
	}

	if len(p.FileTargets) > 0 {
		b.WriteString("\n### Files\n\n")
		for _, f := range p.FileTargets {
			b.WriteString(fmt.Sprintf("- `%s`\n", f))
		}
	}

	return b.String()
}
