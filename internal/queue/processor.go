// -----------------------------------------------------------------------
// Processor - Fixed worker pool that drains the job queue
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/faber/internal/common"
	"github.com/ternarybob/faber/internal/interfaces"
	"github.com/ternarybob/faber/internal/models"
)

// HandlerResolver is the one-way handle the processor uses to look up
// handlers registered on the dispatcher
type HandlerResolver interface {
	HandlerFor(jobType string) (interfaces.JobHandler, bool)
}

// ProcessorConfig sizes the worker pool, its per-type timeouts, and the
// retry policy applied to failed attempts
type ProcessorConfig struct {
	Concurrency    int
	DrainTimeout   time.Duration
	Timeouts       map[string]time.Duration // Per job type; zero disables
	DefaultTimeout time.Duration            // Job types without an entry; zero disables
	Policy         RetryPolicy
}

// ProcessorConfigFromBackground maps the background job configuration
// onto a processor config
func ProcessorConfigFromBackground(cfg common.BackgroundJobConfig) ProcessorConfig {
	return ProcessorConfig{
		Concurrency:  cfg.MaxConcurrency,
		DrainTimeout: cfg.DrainTimeout(),
		Timeouts: map[string]time.Duration{
			models.JobTypeGeneratePlan: cfg.PlanTimeout(),
			models.JobTypeExecutePlan:  cfg.ExecutionTimeout(),
		},
		DefaultTimeout: cfg.DefaultTimeout(),
		Policy:         PolicyFromConfig(cfg.RetryPolicy),
	}
}

// Processor runs a pool of worker goroutines that dequeue jobs, enforce
// per-job timeouts, invoke registered handlers, and interpret results
// into terminal states or retries.
type Processor struct {
	cfg         ProcessorConfig
	resolver    HandlerResolver
	queue       interfaces.JobQueue
	statusStore interfaces.JobStatusStorage
	dedup       interfaces.DeduplicationRegistry
	cancels     *CancelRegistry
	auditSvc    interfaces.AuditService
	eventSvc    interfaces.EventService
	clock       interfaces.Clock
	calculator  *RetryCalculator
	logger      arbor.ILogger

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	inflight sync.Map // Job ID -> *models.Job for drain accounting
	mu       sync.Mutex
	running  bool
	stopOnce sync.Once
}

// NewProcessor creates a stopped processor. Audit and event services
// may be nil.
func NewProcessor(
	cfg ProcessorConfig,
	resolver HandlerResolver,
	jobQueue interfaces.JobQueue,
	statusStore interfaces.JobStatusStorage,
	dedup interfaces.DeduplicationRegistry,
	cancels *CancelRegistry,
	auditSvc interfaces.AuditService,
	eventSvc interfaces.EventService,
	clock interfaces.Clock,
	logger arbor.ILogger,
) *Processor {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = common.GetLogger()
	}
	if clock == nil {
		clock = common.SystemClock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Processor{
		cfg:         cfg,
		resolver:    resolver,
		queue:       jobQueue,
		statusStore: statusStore,
		dedup:       dedup,
		cancels:     cancels,
		auditSvc:    auditSvc,
		eventSvc:    eventSvc,
		clock:       clock,
		calculator:  NewRetryCalculator(),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start spawns the worker goroutines. Should be called after all
// handlers are registered on the dispatcher.
func (p *Processor) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		p.logger.Warn().Msg("Job processor already running")
		return nil
	}
	p.running = true

	p.logger.Info().
		Int("concurrency", p.cfg.Concurrency).
		Msg("Starting job processor")

	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go p.workerLoop(i)
	}
	return nil
}

// StopAsync begins shutdown: the queue stops accepting work, workers
// stop dequeuing, and in-flight jobs get the drain window before being
// marked failed.
func (p *Processor) StopAsync() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()

		p.logger.Info().Msg("Stopping job processor...")
		p.queue.Close()
		p.cancel()
		common.SafeGo(p.logger, "processor-drain", p.drain)
	})
}

// Stop is StopAsync plus waiting for the workers to exit, bounded by
// the drain window
func (p *Processor) Stop() error {
	p.StopAsync()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(p.cfg.DrainTimeout + time.Second):
		return fmt.Errorf("job processor did not drain within %s", p.cfg.DrainTimeout)
	}
}

// workerLoop dequeues and processes jobs until the processor context is
// cancelled. workerID identifies the goroutine in logs.
func (p *Processor) workerLoop(workerID int) {
	defer p.wg.Done()

	// Workers never take the whole pool down; individual jobs carry
	// their own recovery inside invoke
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", common.GetStackTrace()).
				Int("worker_id", workerID).
				Msg("Job processor worker panicked")
		}
	}()

	p.logger.Debug().
		Int("worker_id", workerID).
		Msg("Job processor worker started")

	for {
		job, err := p.queue.Dequeue(p.ctx)
		if err != nil {
			p.logger.Debug().
				Int("worker_id", workerID).
				Msg("Job processor worker stopping")
			return
		}
		p.processJob(workerID, job)
	}
}

// processJob runs one attempt of a job and interprets the result
func (p *Processor) processJob(workerID int, job *models.Job) {
	// Cancel requests against queued jobs are honored lazily at dequeue
	if p.cancels.Requested(job.ID) {
		p.cancelBeforeProcessing(job)
		return
	}

	status := p.loadStatus(job)

	started := p.clock.Now()
	waitMs := started.Sub(status.CreatedAt).Milliseconds()
	status.State = models.JobStateProcessing
	status.StartedAt = &started
	status.QueueWaitMs = &waitMs
	status.RetryCount = job.RetryCount
	p.writeStatus(status, models.JobStateQueued)
	p.publish(interfaces.EventJobStarted, status)

	p.logger.Info().
		Str("job_id", job.ID).
		Str("job_type", job.Type).
		Int("worker_id", workerID).
		Int("retry_count", job.RetryCount).
		Msg("Job started")

	timeout := p.timeoutFor(job.Type)
	jobCtx, cancelJob := p.jobContext(timeout)
	p.inflight.Store(job.ID, job)
	p.cancels.Track(job.ID, cancelJob)

	result := p.invoke(jobCtx, job)

	// A fired deadline overrides whatever message the handler reported
	if timeout > 0 && jobCtx.Err() == context.DeadlineExceeded && !result.Success {
		result = models.FailureResult(
			fmt.Sprintf("timed out after %d seconds", int(timeout.Seconds())), false)
	}

	wasCancelled := p.cancels.Requested(job.ID)
	cancelJob()
	p.inflight.Delete(job.ID)

	duration := p.clock.Now().Sub(started)

	switch {
	case result.Success:
		p.finalize(job, status, models.JobStateCompleted, "", duration, workerID)
	case wasCancelled:
		p.finalize(job, status, models.JobStateCancelled, result.Message, duration, workerID)
	case p.calculator.ShouldRetry(p.cfg.Policy, job.RetryCount, job.MaxRetries, result.ShouldRetry):
		p.retry(job, status, result, duration, workerID)
	case result.ShouldRetry:
		// Transient failure with the retry budget spent
		p.finalize(job, status, models.JobStateDeadLetter, result.Message, duration, workerID)
	default:
		p.finalize(job, status, models.JobStateFailed, result.Message, duration, workerID)
	}
}

// invoke runs the handler with panic recovery. A panic fails the
// attempt without retry.
func (p *Processor) invoke(ctx context.Context, job *models.Job) (result models.JobResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", common.GetStackTrace()).
				Str("job_id", job.ID).
				Str("job_type", job.Type).
				Msg("Recovered from panic in job handler")
			result = models.FailureResult(fmt.Sprintf("handler panicked: %v", r), false)
		}
	}()

	handler, ok := p.resolver.HandlerFor(job.Type)
	if !ok {
		return models.FailureResult(
			fmt.Sprintf("no handler registered for job type %q", job.Type), false)
	}
	return handler.Execute(ctx, job)
}

// retry sleeps out the backoff delay, advances the retry count, and
// re-enqueues the job with its identity fields intact
func (p *Processor) retry(job *models.Job, status *models.JobStatus, result models.JobResult, duration time.Duration, workerID int) {
	delay := p.calculator.Delay(p.cfg.Policy, job.RetryCount)

	p.logger.Info().
		Str("job_id", job.ID).
		Str("job_type", job.Type).
		Int("worker_id", workerID).
		Int("retry_count", job.RetryCount).
		Dur("delay", delay).
		Msg("Job scheduled for retry")

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-p.ctx.Done():
		p.finalize(job, status, models.JobStateFailed, "shutdown", duration, workerID)
		return
	}

	now := p.clock.Now()
	job.RetryCount++
	status.State = models.JobStateRetried
	status.RetryCount = job.RetryCount
	status.LastRetryAt = &now
	status.ErrorMessage = result.Message
	p.writeStatus(status, models.JobStateProcessing)
	p.publish(interfaces.EventJobRetried, status)

	if !p.queue.Enqueue(job) {
		p.finalize(job, status, models.JobStateFailed, "queue full", duration, workerID)
	}
}

// finalize writes the terminal record, releases the idempotency key,
// and publishes the state event
func (p *Processor) finalize(job *models.Job, status *models.JobStatus, state models.JobState, errMsg string, duration time.Duration, workerID int) {
	now := p.clock.Now()
	durMs := duration.Milliseconds()
	status.State = state
	status.CompletedAt = &now
	status.ProcessingDurationMs = &durMs
	status.ErrorMessage = errMsg
	status.RetryCount = job.RetryCount

	p.writeStatus(status, models.JobStateProcessing)
	p.dedup.Unregister(job.ID)
	p.cancels.Clear(job.ID)
	p.publish(eventForState(state), status)

	switch state {
	case models.JobStateCompleted:
		p.logger.Info().
			Str("job_id", job.ID).
			Str("job_type", job.Type).
			Int("worker_id", workerID).
			Dur("duration", duration).
			Msg("Job completed")
	case models.JobStateCancelled:
		p.logger.Info().
			Str("job_id", job.ID).
			Str("job_type", job.Type).
			Int("worker_id", workerID).
			Msg("Job cancelled")
	case models.JobStateDeadLetter:
		p.logger.Error().
			Str("job_id", job.ID).
			Str("job_type", job.Type).
			Int("worker_id", workerID).
			Int("retry_count", job.RetryCount).
			Str("error", errMsg).
			Msg("Job dead-lettered after exhausting retries")
	default:
		p.logger.Error().
			Str("job_id", job.ID).
			Str("job_type", job.Type).
			Int("worker_id", workerID).
			Dur("duration", duration).
			Str("error", errMsg).
			Msg("Job failed")
	}
}

// cancelBeforeProcessing finalizes a job whose cancel request arrived
// while it was still queued
func (p *Processor) cancelBeforeProcessing(job *models.Job) {
	status := p.loadStatus(job)
	now := p.clock.Now()
	status.State = models.JobStateCancelled
	status.CompletedAt = &now

	p.writeStatus(status, models.JobStateQueued)
	p.dedup.Unregister(job.ID)
	p.cancels.Clear(job.ID)
	p.publish(interfaces.EventJobCancelled, status)

	p.logger.Info().
		Str("job_id", job.ID).
		Str("job_type", job.Type).
		Msg("Job cancelled before processing")
}

// drain waits out the shutdown window, then fails whatever is still
// in flight
func (p *Processor) drain() {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info().Msg("Job processor stopped")
	case <-time.After(p.cfg.DrainTimeout):
		p.failStragglers()
	}
}

// failStragglers marks jobs that outlived the drain window. The
// terminal-write guard keeps a slow worker from resurrecting them.
func (p *Processor) failStragglers() {
	p.inflight.Range(func(_, value interface{}) bool {
		job := value.(*models.Job)
		p.logger.Warn().
			Str("job_id", job.ID).
			Str("job_type", job.Type).
			Msg("Job did not finish before shutdown deadline")

		status := p.loadStatus(job)
		now := p.clock.Now()
		status.State = models.JobStateFailed
		status.ErrorMessage = "shutdown"
		status.CompletedAt = &now
		p.writeStatus(status, models.JobStateProcessing)
		p.dedup.Unregister(job.ID)
		p.publish(interfaces.EventJobFailed, status)
		return true
	})
}

// loadStatus returns the stored record for a job, or a fresh queued
// record if dispatch never managed to persist one
func (p *Processor) loadStatus(job *models.Job) *models.JobStatus {
	status, err := p.statusStore.Get(context.Background(), job.ID)
	if err != nil || status == nil {
		return models.NewJobStatus(job, p.clock.Now())
	}
	return status
}

// writeStatus persists a status change and records the transition.
// Records already in a terminal state are never overwritten.
func (p *Processor) writeStatus(status *models.JobStatus, from models.JobState) {
	ctx := context.Background()

	existing, err := p.statusStore.Get(ctx, status.JobID)
	if err == nil && existing != nil && existing.IsTerminal() {
		return
	}

	if err := p.statusStore.Set(ctx, status); err != nil {
		p.logger.Error().Err(err).
			Str("job_id", status.JobID).
			Str("state", string(status.State)).
			Msg("Failed to persist job status")
		return
	}
	if p.auditSvc != nil {
		p.auditSvc.LogJobStateTransition(ctx, status, from)
	}
}

func (p *Processor) timeoutFor(jobType string) time.Duration {
	if t, ok := p.cfg.Timeouts[jobType]; ok {
		return t
	}
	return p.cfg.DefaultTimeout
}

func (p *Processor) jobContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(p.ctx, timeout)
	}
	return context.WithCancel(p.ctx)
}

func (p *Processor) publish(eventType interfaces.EventType, status *models.JobStatus) {
	if p.eventSvc == nil {
		return
	}
	if err := p.eventSvc.Publish(context.Background(), interfaces.Event{Type: eventType, Payload: status}); err != nil {
		p.logger.Warn().Err(err).
			Str("event_type", string(eventType)).
			Msg("Failed to publish job event")
	}
}

func eventForState(state models.JobState) interfaces.EventType {
	switch state {
	case models.JobStateCompleted:
		return interfaces.EventJobCompleted
	case models.JobStateCancelled:
		return interfaces.EventJobCancelled
	case models.JobStateRetried:
		return interfaces.EventJobRetried
	case models.JobStateDeadLetter:
		return interfaces.EventJobDeadLetter
	default:
		return interfaces.EventJobFailed
	}
}

// Verify interface compliance
var _ interfaces.JobProcessor = (*Processor)(nil)
