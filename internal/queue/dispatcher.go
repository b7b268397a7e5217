// -----------------------------------------------------------------------
// Dispatcher - Single entry point for submitting background jobs
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/faber/internal/common"
	"github.com/ternarybob/faber/internal/interfaces"
	"github.com/ternarybob/faber/internal/models"
)

// Dispatcher validates, deduplicates, records, and enqueues jobs. It
// owns the handler registry; the processor looks handlers up through
// HandlerFor and never mutates dispatcher state.
type Dispatcher struct {
	queue       interfaces.JobQueue
	dedup       interfaces.DeduplicationRegistry
	statusStore interfaces.JobStatusStorage
	cancels     *CancelRegistry
	auditSvc    interfaces.AuditService
	eventSvc    interfaces.EventService
	clock       interfaces.Clock
	logger      arbor.ILogger

	mu       sync.RWMutex
	handlers map[string]interfaces.JobHandler
}

// NewDispatcher creates a dispatcher over the given queue, registries,
// and status store. Audit and event services may be nil.
func NewDispatcher(
	jobQueue interfaces.JobQueue,
	dedup interfaces.DeduplicationRegistry,
	statusStore interfaces.JobStatusStorage,
	cancels *CancelRegistry,
	auditSvc interfaces.AuditService,
	eventSvc interfaces.EventService,
	clock interfaces.Clock,
	logger arbor.ILogger,
) *Dispatcher {
	if logger == nil {
		logger = common.GetLogger()
	}
	if clock == nil {
		clock = common.SystemClock()
	}

	return &Dispatcher{
		queue:       jobQueue,
		dedup:       dedup,
		statusStore: statusStore,
		cancels:     cancels,
		auditSvc:    auditSvc,
		eventSvc:    eventSvc,
		clock:       clock,
		logger:      logger,
		handlers:    make(map[string]interfaces.JobHandler),
	}
}

// RegisterHandler stores a handler keyed by its job type. All handlers
// must be registered before the processor starts pulling work.
func (d *Dispatcher) RegisterHandler(handler interfaces.JobHandler) error {
	if handler == nil {
		return fmt.Errorf("handler is required")
	}
	jobType := handler.Type()
	if jobType == "" {
		return fmt.Errorf("handler job type is required")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.handlers[jobType]; exists {
		return fmt.Errorf("handler already registered for job type %q", jobType)
	}
	d.handlers[jobType] = handler

	d.logger.Debug().
		Str("job_type", jobType).
		Msg("Job handler registered")
	return nil
}

// HandlerFor returns the handler registered for a job type
func (d *Dispatcher) HandlerFor(jobType string) (interfaces.JobHandler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	handler, ok := d.handlers[jobType]
	return handler, ok
}

// Dispatch runs the admission pipeline: validate, check the dedup
// registry, persist the queued status, register the idempotency key,
// enqueue. Semantic rejections (unknown type, duplicate key, full
// queue) come back in the result with a nil error; the error return is
// reserved for storage failures.
func (d *Dispatcher) Dispatch(ctx context.Context, job *models.Job) (interfaces.DispatchResult, error) {
	if job == nil {
		return rejected("job is required"), nil
	}
	if err := job.Validate(); err != nil {
		d.logger.Warn().Err(err).Msg("Rejected invalid job")
		return rejected(err.Error()), nil
	}

	d.mu.RLock()
	_, registered := d.handlers[job.Type]
	d.mu.RUnlock()
	if !registered {
		d.logger.Warn().
			Str("job_id", job.ID).
			Str("job_type", job.Type).
			Msg("Rejected job with no registered handler")
		return rejected(fmt.Sprintf("no handler registered for job type %q", job.Type)), nil
	}

	if job.CorrelationID == "" {
		job.CorrelationID = common.CorrelationIDFromContext(ctx)
	}

	// Dedup is a silent success: the caller gets the in-flight job's ID
	// and no new work is admitted
	if job.IdempotencyKey != "" {
		if existing := d.dedup.LookupInFlight(job.IdempotencyKey); existing != "" {
			d.logger.Debug().
				Str("job_id", job.ID).
				Str("idempotency_key", job.IdempotencyKey).
				Str("existing_job_id", existing).
				Msg("Job deduplicated against in-flight job")
			return interfaces.DispatchResult{
				Outcome: interfaces.DispatchDeduplicated,
				JobID:   existing,
				Reason:  "job with the same idempotency key is in flight",
			}, nil
		}
	}

	status := models.NewJobStatus(job, d.clock.Now())
	if err := d.statusStore.Set(ctx, status); err != nil {
		return rejected("failed to record job status"),
			fmt.Errorf("failed to record status for job %s: %w", job.ID, err)
	}

	if job.IdempotencyKey != "" {
		if err := d.dedup.Register(job.ID, job.IdempotencyKey); err != nil {
			d.logger.Warn().Err(err).
				Str("job_id", job.ID).
				Msg("Failed to register idempotency key")
		}
	}

	if !d.queue.Enqueue(job) {
		now := d.clock.Now()
		status.State = models.JobStateFailed
		status.ErrorMessage = "queue full"
		status.CompletedAt = &now
		if err := d.statusStore.Set(ctx, status); err != nil {
			d.logger.Error().Err(err).
				Str("job_id", job.ID).
				Msg("Failed to record queue-full rejection")
		}
		d.dedup.Unregister(job.ID)
		d.recordTransition(ctx, status, models.JobStateQueued)

		d.logger.Warn().
			Str("job_id", job.ID).
			Str("job_type", job.Type).
			Msg("Queue full, job rejected")
		return rejected("queue full"), nil
	}

	d.recordTransition(ctx, status, "")
	d.publish(ctx, interfaces.EventJobQueued, status)

	d.logger.Info().
		Str("job_id", job.ID).
		Str("job_type", job.Type).
		Str("source", job.Source).
		Int("priority", job.Priority).
		Msg("Job queued")

	return interfaces.DispatchResult{
		Outcome: interfaces.DispatchAccepted,
		JobID:   job.ID,
	}, nil
}

// CancelJob records cancel intent for a job. A queued job is discarded
// when a worker dequeues it; a processing job has its context cancelled
// immediately and the handler is expected to honor it.
func (d *Dispatcher) CancelJob(jobID string) error {
	if jobID == "" {
		return fmt.Errorf("job ID is required")
	}

	status, err := d.statusStore.Get(context.Background(), jobID)
	if err != nil {
		return fmt.Errorf("failed to load status for job %s: %w", jobID, err)
	}
	if status == nil {
		return fmt.Errorf("job %s not found", jobID)
	}
	if status.IsTerminal() {
		return fmt.Errorf("job %s already finished in state %s", jobID, status.State)
	}

	wasProcessing := d.cancels.Request(jobID)
	d.logger.Info().
		Str("job_id", jobID).
		Bool("was_processing", wasProcessing).
		Msg("Job cancellation requested")
	return nil
}

func (d *Dispatcher) recordTransition(ctx context.Context, status *models.JobStatus, from models.JobState) {
	if d.auditSvc != nil {
		d.auditSvc.LogJobStateTransition(ctx, status, from)
	}
}

func (d *Dispatcher) publish(ctx context.Context, eventType interfaces.EventType, status *models.JobStatus) {
	if d.eventSvc == nil {
		return
	}
	if err := d.eventSvc.Publish(ctx, interfaces.Event{Type: eventType, Payload: status}); err != nil {
		d.logger.Warn().Err(err).
			Str("event_type", string(eventType)).
			Msg("Failed to publish job event")
	}
}

func rejected(reason string) interfaces.DispatchResult {
	return interfaces.DispatchResult{
		Outcome: interfaces.DispatchRejected,
		Reason:  reason,
	}
}

// Verify interface compliance
var _ interfaces.JobDispatcher = (*Dispatcher)(nil)
