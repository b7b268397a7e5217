package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/faber/internal/interfaces"
	"github.com/ternarybob/faber/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// AuditStorage implements the AuditStorage interface for Badger.
// Events are append-only; only retention cleanup removes them.
type AuditStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewAuditStorage creates a new AuditStorage instance
func NewAuditStorage(db *BadgerDB, logger arbor.ILogger) interfaces.AuditStorage {
	return &AuditStorage{
		db:     db,
		logger: logger,
	}
}

// Append persists one audit event
func (s *AuditStorage) Append(ctx context.Context, event *models.AuditEvent) error {
	if event == nil {
		return fmt.Errorf("audit event is required")
	}
	if event.ID == "" {
		return fmt.Errorf("audit event ID is required")
	}

	if err := s.db.Store().Upsert(event.ID, event); err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

// Query returns events matching the filter, newest first
func (s *AuditStorage) Query(ctx context.Context, filter *models.AuditFilter, skip, take int) ([]*models.AuditEvent, error) {
	query := auditQuery(filter).SortBy("Timestamp").Reverse()
	if skip > 0 {
		query = query.Skip(skip)
	}
	if take > 0 {
		query = query.Limit(take)
	}

	var events []models.AuditEvent
	if err := s.db.Store().Find(&events, query); err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}

	result := make([]*models.AuditEvent, len(events))
	for i := range events {
		result[i] = &events[i]
	}
	return result, nil
}

// Count returns the number of events matching the filter
func (s *AuditStorage) Count(ctx context.Context, filter *models.AuditFilter) (int, error) {
	count, err := s.db.Store().Count(&models.AuditEvent{}, auditQuery(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	return int(count), nil
}

// DeleteOlderThan removes events recorded before the cutoff and
// returns the number removed
func (s *AuditStorage) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	olderThan := func() *badgerhold.Query {
		return badgerhold.Where("Timestamp").Lt(cutoff)
	}

	count, err := s.db.Store().Count(&models.AuditEvent{}, olderThan())
	if err != nil {
		return 0, fmt.Errorf("failed to count expired audit events: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	if err := s.db.Store().DeleteMatching(&models.AuditEvent{}, olderThan()); err != nil {
		return 0, fmt.Errorf("failed to delete expired audit events: %w", err)
	}

	s.logger.Debug().
		Int("count", int(count)).
		Str("cutoff", cutoff.Format(time.RFC3339)).
		Msg("Deleted expired audit events")
	return int(count), nil
}

func auditQuery(filter *models.AuditFilter) *badgerhold.Query {
	query := badgerhold.Where("ID").Ne("")
	if filter == nil {
		return query
	}
	if filter.Kind != "" {
		query = query.And("Kind").Eq(filter.Kind)
	}
	if filter.CorrelationID != "" {
		query = query.And("CorrelationID").Eq(filter.CorrelationID)
	}
	return query
}
