// -----------------------------------------------------------------------
// Queue Interfaces - Job queue, dispatch, and processing contracts
// -----------------------------------------------------------------------

package interfaces

import (
	"context"

	"github.com/ternarybob/faber/internal/models"
)

// JobHandler executes one job type. Handlers are registered with the
// dispatcher before the processor starts and looked up by Type.
type JobHandler interface {
	// Type returns the job type string this handler executes
	Type() string

	// Execute runs one attempt of the job. The context carries the
	// per-job timeout and is cancelled when the job is cancelled.
	Execute(ctx context.Context, job *models.Job) models.JobResult
}

// JobQueue is a bounded in-process queue. The depth bound covers all
// priorities together.
type JobQueue interface {
	// Enqueue attempts to add a job without blocking. Returns false
	// when the queue is full or closed; the job is never silently dropped.
	Enqueue(job *models.Job) bool

	// Dequeue blocks until a job is available or the context ends.
	// Returns the context error on cancellation.
	Dequeue(ctx context.Context) (*models.Job, error)

	// Count returns the approximate number of queued jobs
	Count() int

	// Close stops the queue from accepting further enqueues
	Close()
}

// DeduplicationRegistry tracks in-flight jobs by idempotency key.
// At most one in-flight job exists per key; registering an existing key
// replaces the prior entry (last writer wins).
type DeduplicationRegistry interface {
	// Register maps key to jobID. An empty key is an error.
	Register(jobID, key string) error

	// LookupInFlight returns the job ID registered for the key, or ""
	// when the key is empty or unknown
	LookupInFlight(key string) string

	// Unregister removes the entry owned by jobID, if any
	Unregister(jobID string)

	// Len returns the number of registered keys
	Len() int
}

// DispatchOutcome classifies what the dispatcher did with a job
type DispatchOutcome string

const (
	DispatchAccepted     DispatchOutcome = "accepted"
	DispatchRejected     DispatchOutcome = "rejected"
	DispatchDeduplicated DispatchOutcome = "deduplicated"
)

// DispatchResult reports the dispatch decision. For deduplicated
// dispatches JobID is the already in-flight job's ID.
type DispatchResult struct {
	Outcome DispatchOutcome `json:"outcome"`
	JobID   string          `json:"job_id,omitempty"`
	Reason  string          `json:"reason,omitempty"`
}

// JobDispatcher validates, deduplicates, records, and enqueues jobs
type JobDispatcher interface {
	// RegisterHandler registers a handler keyed by its Type. Must be
	// called before the processor starts.
	RegisterHandler(handler JobHandler) error

	// HandlerFor returns the handler registered for a job type
	HandlerFor(jobType string) (JobHandler, bool)

	// Dispatch runs the admission pipeline: validate type, check the
	// deduplication registry, persist the queued status, register the
	// idempotency key, enqueue. A full queue fails the job with a
	// rejected outcome.
	Dispatch(ctx context.Context, job *models.Job) (DispatchResult, error)

	// CancelJob records cancel intent for a queued job and cancels the
	// job context of a processing one
	CancelJob(jobID string) error
}

// JobProcessor runs the fixed worker pool that drains the queue
type JobProcessor interface {
	// Start spawns the worker goroutines
	Start() error

	// StopAsync begins shutdown: workers stop dequeuing and in-flight
	// jobs get a drain window before being failed
	StopAsync()

	// Stop is StopAsync plus waiting for all workers to exit
	Stop() error
}
