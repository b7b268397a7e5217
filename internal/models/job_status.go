// -----------------------------------------------------------------------
// Job Status - Persisted execution record and aggregate metrics
// -----------------------------------------------------------------------

package models

import "time"

// JobStatus is the durable execution record for a job. One record per
// job ID; the state field never moves out of a terminal state.
type JobStatus struct {
	JobID                string            `json:"job_id"`
	JobType              string            `json:"job_type" badgerhold:"index"`
	State                JobState          `json:"state" badgerhold:"index"`
	CreatedAt            time.Time         `json:"created_at"`
	StartedAt            *time.Time        `json:"started_at,omitempty"`
	CompletedAt          *time.Time        `json:"completed_at,omitempty"`
	ProcessingDurationMs *int64            `json:"processing_duration_ms,omitempty"`
	QueueWaitMs          *int64            `json:"queue_wait_ms,omitempty"`
	RetryCount           int               `json:"retry_count"`
	MaxRetries           int               `json:"max_retries"`
	LastRetryAt          *time.Time        `json:"last_retry_at,omitempty"`
	ErrorMessage         string            `json:"error_message,omitempty"`
	ParentJobID          string            `json:"parent_job_id,omitempty"`
	CorrelationID        string            `json:"correlation_id,omitempty" badgerhold:"index"`
	Source               string            `json:"source" badgerhold:"index"`
	Metadata             map[string]string `json:"metadata,omitempty"`
}

// NewJobStatus creates the initial queued record for a dispatched job
func NewJobStatus(job *Job, now time.Time) *JobStatus {
	return &JobStatus{
		JobID:         job.ID,
		JobType:       job.Type,
		State:         JobStateQueued,
		CreatedAt:     now,
		RetryCount:    job.RetryCount,
		MaxRetries:    job.MaxRetries,
		ParentJobID:   job.ParentJobID,
		CorrelationID: job.CorrelationID,
		Source:        job.Source,
	}
}

// IsTerminal returns true once the record reached a final state
func (s *JobStatus) IsTerminal() bool {
	return s.State.IsTerminal()
}

// JobStatusFilter narrows List queries. Zero-valued fields match all.
type JobStatusFilter struct {
	State         JobState `json:"state,omitempty"`
	JobType       string   `json:"job_type,omitempty"`
	Source        string   `json:"source,omitempty"`
	CorrelationID string   `json:"correlation_id,omitempty"`
}

// JobTypeMetrics aggregates outcomes for a single job type
type JobTypeMetrics struct {
	TotalCount          int     `json:"total_count"`
	SuccessCount        int     `json:"success_count"`
	FailureCount        int     `json:"failure_count"`
	AverageProcessingMs float64 `json:"average_processing_ms"`
	FailureRate         float64 `json:"failure_rate"`
}

// JobMetrics aggregates all job status records. Counts reflect current
// states exactly; averages cover only records that carry a measurement.
type JobMetrics struct {
	TotalJobs           int                        `json:"total_jobs"`
	QueuedCount         int                        `json:"queued_count"`
	ProcessingCount     int                        `json:"processing_count"`
	CompletedCount      int                        `json:"completed_count"`
	FailedCount         int                        `json:"failed_count"`
	CancelledCount      int                        `json:"cancelled_count"`
	RetriedCount        int                        `json:"retried_count"`
	DeadLetterCount     int                        `json:"dead_letter_count"`
	FailureRate         float64                    `json:"failure_rate"`
	AverageProcessingMs float64                    `json:"average_processing_ms"`
	AverageQueueWaitMs  float64                    `json:"average_queue_wait_ms"`
	ByType              map[string]*JobTypeMetrics `json:"by_type,omitempty"`
}
