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

// JobStatusStorage implements the JobStatusStorage interface for Badger
type JobStatusStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStatusStorage creates a new JobStatusStorage instance
func NewJobStatusStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStatusStorage {
	return &JobStatusStorage{
		db:     db,
		logger: logger,
	}
}

// Set inserts or fully replaces the record keyed on JobID
func (s *JobStatusStorage) Set(ctx context.Context, status *models.JobStatus) error {
	if status == nil {
		return fmt.Errorf("job status is required")
	}
	if status.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	if err := s.db.Store().Upsert(status.JobID, status); err != nil {
		return fmt.Errorf("failed to save job status: %w", err)
	}
	return nil
}

// Get returns the record, or nil when the job ID is unknown
func (s *JobStatusStorage) Get(ctx context.Context, jobID string) (*models.JobStatus, error) {
	var status models.JobStatus
	err := s.db.Store().Get(jobID, &status)
	if err == badgerhold.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job status: %w", err)
	}
	return &status, nil
}

// Delete removes the record for jobID. Unknown IDs are a no-op.
func (s *JobStatusStorage) Delete(ctx context.Context, jobID string) error {
	err := s.db.Store().Delete(jobID, &models.JobStatus{})
	if err == badgerhold.ErrNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete job status: %w", err)
	}
	return nil
}

// ListByStatus returns records in a state, newest first
func (s *JobStatusStorage) ListByStatus(ctx context.Context, state models.JobState, skip, take int) ([]*models.JobStatus, error) {
	return s.List(ctx, &models.JobStatusFilter{State: state}, skip, take)
}

// ListByType returns records of a job type, newest first
func (s *JobStatusStorage) ListByType(ctx context.Context, jobType string, skip, take int) ([]*models.JobStatus, error) {
	return s.List(ctx, &models.JobStatusFilter{JobType: jobType}, skip, take)
}

// ListBySource returns records from a source, newest first
func (s *JobStatusStorage) ListBySource(ctx context.Context, source string, skip, take int) ([]*models.JobStatus, error) {
	return s.List(ctx, &models.JobStatusFilter{Source: source}, skip, take)
}

// List returns records matching the filter ordered by created-at
// descending, ties broken by job ID
func (s *JobStatusStorage) List(ctx context.Context, filter *models.JobStatusFilter, skip, take int) ([]*models.JobStatus, error) {
	query := filterQuery(filter).SortBy("CreatedAt", "JobID").Reverse()
	if skip > 0 {
		query = query.Skip(skip)
	}
	if take > 0 {
		query = query.Limit(take)
	}

	var statuses []models.JobStatus
	if err := s.db.Store().Find(&statuses, query); err != nil {
		return nil, fmt.Errorf("failed to list job statuses: %w", err)
	}

	result := make([]*models.JobStatus, len(statuses))
	for i := range statuses {
		result[i] = &statuses[i]
	}
	return result, nil
}

// Count returns the number of records matching the filter
func (s *JobStatusStorage) Count(ctx context.Context, filter *models.JobStatusFilter) (int, error) {
	count, err := s.db.Store().Count(&models.JobStatus{}, filterQuery(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count job statuses: %w", err)
	}
	return int(count), nil
}

// Metrics aggregates every record in a single scan
func (s *JobStatusStorage) Metrics(ctx context.Context) (*models.JobMetrics, error) {
	var statuses []models.JobStatus
	if err := s.db.Store().Find(&statuses, nil); err != nil {
		return nil, fmt.Errorf("failed to scan job statuses: %w", err)
	}

	metrics := &models.JobMetrics{
		ByType: make(map[string]*models.JobTypeMetrics),
	}
	var procSum, waitSum float64
	var procCount, waitCount int
	typeProcSums := make(map[string]float64)
	typeProcCounts := make(map[string]int)

	for i := range statuses {
		st := &statuses[i]
		metrics.TotalJobs++

		switch st.State {
		case models.JobStateQueued:
			metrics.QueuedCount++
		case models.JobStateProcessing:
			metrics.ProcessingCount++
		case models.JobStateCompleted:
			metrics.CompletedCount++
		case models.JobStateFailed:
			metrics.FailedCount++
		case models.JobStateCancelled:
			metrics.CancelledCount++
		case models.JobStateRetried:
			metrics.RetriedCount++
		case models.JobStateDeadLetter:
			metrics.DeadLetterCount++
		}

		// Averages cover only records that carry a measurement
		if st.ProcessingDurationMs != nil {
			procSum += float64(*st.ProcessingDurationMs)
			procCount++
		}
		if st.QueueWaitMs != nil {
			waitSum += float64(*st.QueueWaitMs)
			waitCount++
		}

		tm := metrics.ByType[st.JobType]
		if tm == nil {
			tm = &models.JobTypeMetrics{}
			metrics.ByType[st.JobType] = tm
		}
		tm.TotalCount++
		switch st.State {
		case models.JobStateCompleted:
			tm.SuccessCount++
		case models.JobStateFailed:
			tm.FailureCount++
		}
		if st.ProcessingDurationMs != nil {
			typeProcSums[st.JobType] += float64(*st.ProcessingDurationMs)
			typeProcCounts[st.JobType]++
		}
	}

	if metrics.TotalJobs > 0 {
		metrics.FailureRate = float64(metrics.FailedCount) / float64(metrics.TotalJobs)
	}
	if procCount > 0 {
		metrics.AverageProcessingMs = procSum / float64(procCount)
	}
	if waitCount > 0 {
		metrics.AverageQueueWaitMs = waitSum / float64(waitCount)
	}
	for jobType, tm := range metrics.ByType {
		if tm.TotalCount > 0 {
			tm.FailureRate = float64(tm.FailureCount) / float64(tm.TotalCount)
		}
		if count := typeProcCounts[jobType]; count > 0 {
			tm.AverageProcessingMs = typeProcSums[jobType] / float64(count)
		}
	}

	return metrics, nil
}

// DeleteTerminalOlderThan removes terminal records created before the
// cutoff and returns the number removed
func (s *JobStatusStorage) DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	terminalBefore := func() *badgerhold.Query {
		return badgerhold.Where("State").In(
			models.JobStateCompleted,
			models.JobStateFailed,
			models.JobStateCancelled,
			models.JobStateDeadLetter,
		).And("CreatedAt").Lt(cutoff)
	}

	count, err := s.db.Store().Count(&models.JobStatus{}, terminalBefore())
	if err != nil {
		return 0, fmt.Errorf("failed to count expired job statuses: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	if err := s.db.Store().DeleteMatching(&models.JobStatus{}, terminalBefore()); err != nil {
		return 0, fmt.Errorf("failed to delete expired job statuses: %w", err)
	}

	s.logger.Debug().
		Int("count", int(count)).
		Str("cutoff", cutoff.Format(time.RFC3339)).
		Msg("Deleted expired job statuses")
	return int(count), nil
}

func filterQuery(filter *models.JobStatusFilter) *badgerhold.Query {
	query := badgerhold.Where("JobID").Ne("")
	if filter == nil {
		return query
	}
	if filter.State != "" {
		query = query.And("State").Eq(filter.State)
	}
	if filter.JobType != "" {
		query = query.And("JobType").Eq(filter.JobType)
	}
	if filter.Source != "" {
		query = query.And("Source").Eq(filter.Source)
	}
	if filter.CorrelationID != "" {
		query = query.And("CorrelationID").Eq(filter.CorrelationID)
	}
	return query
}
