// -----------------------------------------------------------------------
// Background Job - Immutable job structure for queue dispatch
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobState represents the lifecycle state of a background job
type JobState string

const (
	JobStateQueued     JobState = "queued"
	JobStateProcessing JobState = "processing"
	JobStateCompleted  JobState = "completed"
	JobStateFailed     JobState = "failed"
	JobStateCancelled  JobState = "cancelled"
	JobStateRetried    JobState = "retried"
	JobStateDeadLetter JobState = "dead_letter"
)

// IsTerminal returns true for states a job never leaves
func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted ||
		s == JobStateFailed ||
		s == JobStateCancelled ||
		s == JobStateDeadLetter
}

// Well-known job types and sources
const (
	JobTypeGeneratePlan = "generate_plan"
	JobTypeExecutePlan  = "execute_plan"

	JobSourceWebhook   = "webhook"
	JobSourceHandler   = "handler"
	JobSourceScheduler = "scheduler"
	JobSourceAPI       = "api"
)

// Job is the unit of work sent through the queue. Once dispatched the
// identity fields (ID, Type, Payload, IdempotencyKey, CorrelationID) are
// never modified; RetryCount is advanced by the processor between attempts.
type Job struct {
	ID             string    `json:"id"`                        // Unique job ID (UUID)
	Type           string    `json:"type"`                      // Must match a registered handler type
	Payload        []byte    `json:"payload,omitempty"`         // Serialized job-specific payload
	Priority       int       `json:"priority"`                  // 0 is highest; used only when prioritization is enabled
	MaxRetries     int       `json:"max_retries"`               // Retry budget for this job
	RetryCount     int       `json:"retry_count"`               // Attempts already retried
	IdempotencyKey string    `json:"idempotency_key,omitempty"` // At most one in-flight job per key
	ParentJobID    string    `json:"parent_job_id,omitempty"`   // Job that dispatched this one
	CorrelationID  string    `json:"correlation_id,omitempty"`  // Shared across a job family
	Source         string    `json:"source"`                    // Origin: webhook, handler, scheduler, api
	CreatedAt      time.Time `json:"created_at"`
}

// NewJob creates a job with a fresh UUID and defaulted retry budget
func NewJob(jobType string, payload []byte, source string) *Job {
	return &Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Payload:    payload,
		MaxRetries: 3,
		Source:     source,
		CreatedAt:  time.Now(),
	}
}

// Validate checks the fields a job must carry before dispatch
func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if j.Type == "" {
		return fmt.Errorf("job type is required")
	}
	if j.MaxRetries < 0 {
		return fmt.Errorf("job max retries cannot be negative")
	}
	if j.Source == "" {
		return fmt.Errorf("job source is required")
	}
	return nil
}

// UnmarshalPayload deserializes the payload into the given DTO
func (j *Job) UnmarshalPayload(v interface{}) error {
	if len(j.Payload) == 0 {
		return fmt.Errorf("job %s has no payload", j.ID)
	}
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("failed to unmarshal payload for job %s: %w", j.ID, err)
	}
	return nil
}

// JobResult is returned by a handler to report the outcome of one attempt
type JobResult struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	ShouldRetry bool   `json:"should_retry"`
}

// SuccessResult reports a completed attempt
func SuccessResult() JobResult {
	return JobResult{Success: true}
}

// FailureResult reports a failed attempt. shouldRetry marks the failure
// as transient; the retry policy decides whether another attempt runs.
func FailureResult(message string, shouldRetry bool) JobResult {
	return JobResult{Success: false, Message: message, ShouldRetry: shouldRetry}
}
