// -----------------------------------------------------------------------
// Health Service - Tri-state component probes and worst-of aggregation
// -----------------------------------------------------------------------

package health

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/faber/internal/common"
	"github.com/ternarybob/faber/internal/interfaces"
	"github.com/ternarybob/faber/internal/models"
)

const (
	// queueDepthThreshold is the depth above which the queue is degraded.
	// Exactly the threshold still counts as healthy.
	queueDepthThreshold = 1000

	// failureRateDegraded and failureRateUnhealthy bound the processing
	// failure-rate bands; both lower bounds are inclusive
	failureRateDegraded  = 0.20
	failureRateUnhealthy = 0.50
)

// Service probes the status store and job queue and aggregates the
// results into one report. Probe failures degrade the report; Check
// itself never fails.
type Service struct {
	statusStore  interfaces.JobStatusStorage
	queue        interfaces.JobQueue
	eventService interfaces.EventService
	clock        interfaces.Clock
	logger       arbor.ILogger

	mu         sync.Mutex
	lastStatus models.HealthStatus
}

// NewService creates a new health service
func NewService(statusStore interfaces.JobStatusStorage, queue interfaces.JobQueue, eventService interfaces.EventService, clock interfaces.Clock, logger arbor.ILogger) *Service {
	if logger == nil {
		logger = common.GetLogger()
	}
	if clock == nil {
		clock = common.SystemClock()
	}
	return &Service{
		statusStore:  statusStore,
		queue:        queue,
		eventService: eventService,
		clock:        clock,
		logger:       logger,
		lastStatus:   models.HealthStatusHealthy,
	}
}

// Check probes all components and returns the aggregate report
func (s *Service) Check(ctx context.Context) *models.HealthReport {
	report := &models.HealthReport{
		Status:     models.HealthStatusHealthy,
		Timestamp:  s.clock.Now().UTC(),
		Components: make(map[string]models.ComponentHealth),
	}

	metrics, err := s.metrics(ctx)
	report.Components["database"] = s.checkDatabase(err)
	report.Components["job_queue"] = s.checkQueue()
	report.Components["job_processing"] = s.checkProcessing(metrics, err)
	if err == nil {
		report.Metrics = metrics
	}

	for _, component := range report.Components {
		report.Status = models.WorseOf(report.Status, component.Status)
	}

	s.publishOnChange(ctx, report)
	return report
}

func (s *Service) metrics(ctx context.Context) (*models.JobMetrics, error) {
	if s.statusStore == nil {
		return nil, fmt.Errorf("status store is not configured")
	}
	return s.statusStore.Metrics(ctx)
}

// checkDatabase reports the status store's reachability
func (s *Service) checkDatabase(err error) models.ComponentHealth {
	if err != nil {
		return models.ComponentHealth{
			Status:      models.HealthStatusUnhealthy,
			Description: fmt.Sprintf("status store unreachable: %v", err),
		}
	}
	return models.ComponentHealth{
		Status:      models.HealthStatusHealthy,
		Description: "status store reachable",
	}
}

// checkQueue reports queue depth. Depth alone never makes the service
// unhealthy.
func (s *Service) checkQueue() models.ComponentHealth {
	if s.queue == nil {
		return models.ComponentHealth{
			Status:      models.HealthStatusDegraded,
			Description: "job queue is not configured",
		}
	}

	depth := s.queue.Count()
	component := models.ComponentHealth{
		Status:      models.HealthStatusHealthy,
		Description: fmt.Sprintf("queue depth %d", depth),
		Details: map[string]interface{}{
			"depth":     depth,
			"threshold": queueDepthThreshold,
		},
	}
	if depth > queueDepthThreshold {
		component.Status = models.HealthStatusDegraded
		component.Description = fmt.Sprintf("queue depth %d exceeds %d", depth, queueDepthThreshold)
	}
	return component
}

// checkProcessing classifies the failure rate into the three bands
func (s *Service) checkProcessing(metrics *models.JobMetrics, err error) models.ComponentHealth {
	if err != nil {
		return models.ComponentHealth{
			Status:      models.HealthStatusUnhealthy,
			Description: "job metrics unavailable",
		}
	}

	component := models.ComponentHealth{
		Status:      models.HealthStatusHealthy,
		Description: fmt.Sprintf("failure rate %.2f", metrics.FailureRate),
		Details: map[string]interface{}{
			"failure_rate": metrics.FailureRate,
			"total_jobs":   metrics.TotalJobs,
			"failed_jobs":  metrics.FailedCount,
		},
	}
	switch {
	case metrics.FailureRate > failureRateUnhealthy:
		component.Status = models.HealthStatusUnhealthy
	case metrics.FailureRate > failureRateDegraded:
		component.Status = models.HealthStatusDegraded
	}
	return component
}

// publishOnChange emits a health_changed event when the aggregate
// status moves
func (s *Service) publishOnChange(ctx context.Context, report *models.HealthReport) {
	s.mu.Lock()
	previous := s.lastStatus
	s.lastStatus = report.Status
	s.mu.Unlock()

	if previous == report.Status {
		return
	}

	s.logger.Info().
		Str("old_status", string(previous)).
		Str("new_status", string(report.Status)).
		Msg("Service health changed")

	if s.eventService == nil {
		return
	}
	event := interfaces.Event{
		Type: interfaces.EventHealthChanged,
		Payload: map[string]interface{}{
			"old_status": string(previous),
			"new_status": string(report.Status),
			"timestamp":  report.Timestamp,
		},
	}
	if err := s.eventService.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to publish health change event")
	}
}

var _ interfaces.HealthService = (*Service)(nil)
