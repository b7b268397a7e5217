// -----------------------------------------------------------------------
// Retention Service - Prunes expired audit events and job records
// -----------------------------------------------------------------------

package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/faber/internal/common"
	"github.com/ternarybob/faber/internal/interfaces"
	"github.com/ternarybob/faber/internal/models"
)

// Service removes audit events and terminal job status records older
// than the retention window. Tasks are never deleted.
type Service struct {
	auditStorage  interfaces.AuditStorage
	statusStore   interfaces.JobStatusStorage
	auditService  interfaces.AuditService
	retentionDays int
	clock         interfaces.Clock
	logger        arbor.ILogger
}

// NewService creates a new retention service
func NewService(auditStorage interfaces.AuditStorage, statusStore interfaces.JobStatusStorage, auditService interfaces.AuditService, retentionDays int, clock interfaces.Clock, logger arbor.ILogger) *Service {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	if logger == nil {
		logger = common.GetLogger()
	}
	if clock == nil {
		clock = common.SystemClock()
	}
	return &Service{
		auditStorage:  auditStorage,
		statusStore:   statusStore,
		auditService:  auditService,
		retentionDays: retentionDays,
		clock:         clock,
		logger:        logger,
	}
}

// Cleanup runs one retention pass. Store failures propagate after
// being audited.
func (s *Service) Cleanup(ctx context.Context) error {
	start := s.clock.Now()
	cutoff := start.UTC().AddDate(0, 0, -s.retentionDays)

	s.logger.Info().
		Str("cutoff", cutoff.Format(time.RFC3339)).
		Int("retention_days", s.retentionDays).
		Msg("Starting retention cleanup")

	var auditRemoved, statusRemoved int
	var auditErr, statusErr error
	if s.auditStorage != nil {
		auditRemoved, auditErr = s.auditStorage.DeleteOlderThan(ctx, cutoff)
	}
	if s.statusStore != nil {
		statusRemoved, statusErr = s.statusStore.DeleteTerminalOlderThan(ctx, cutoff)
	}

	s.record(ctx, cutoff, auditRemoved, statusRemoved, s.clock.Now().Sub(start), auditErr, statusErr)

	if auditErr != nil {
		return fmt.Errorf("audit retention cleanup failed: %w", auditErr)
	}
	if statusErr != nil {
		return fmt.Errorf("job status retention cleanup failed: %w", statusErr)
	}

	s.logger.Info().
		Int("audit_removed", auditRemoved).
		Int("status_removed", statusRemoved).
		Msg("Retention cleanup completed")
	return nil
}

// CleanupAsync runs Cleanup on a background goroutine
func (s *Service) CleanupAsync(ctx context.Context) {
	common.SafeGo(s.logger, "retention-cleanup", func() {
		if err := s.Cleanup(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Retention cleanup failed")
		}
	})
}

// record writes the cleanup outcome to the audit trail
func (s *Service) record(ctx context.Context, cutoff time.Time, auditRemoved, statusRemoved int, duration time.Duration, auditErr, statusErr error) {
	if s.auditService == nil {
		return
	}

	event := models.NewAuditEvent(models.AuditRetentionCleanup,
		fmt.Sprintf("Retention cleanup removed %d audit events and %d job records", auditRemoved, statusRemoved))
	event.Initiator = "scheduler"
	event.DurationMs = duration.Milliseconds()
	event.Result = "success"
	event.Data = map[string]interface{}{
		"cutoff":         cutoff.Format(time.RFC3339),
		"retention_days": s.retentionDays,
		"audit_removed":  auditRemoved,
		"status_removed": statusRemoved,
	}
	if auditErr != nil || statusErr != nil {
		event.Result = "failure"
		if auditErr != nil {
			event.ErrorMessage = auditErr.Error()
		} else {
			event.ErrorMessage = statusErr.Error()
		}
	}
	s.auditService.Record(ctx, event)
}

var _ interfaces.RetentionService = (*Service)(nil)
