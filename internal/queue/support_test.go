package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ternarybob/faber/internal/models"
)

// In-memory status store shared by dispatcher and processor tests.
// Records are copied on write and read so tests observe real Set calls
// rather than aliased mutations.
type memStatusStore struct {
	mu      sync.Mutex
	records map[string]*models.JobStatus
}

func newMemStatusStore() *memStatusStore {
	return &memStatusStore{records: make(map[string]*models.JobStatus)}
}

func cloneStatus(s *models.JobStatus) *models.JobStatus {
	c := *s
	if s.StartedAt != nil {
		v := *s.StartedAt
		c.StartedAt = &v
	}
	if s.CompletedAt != nil {
		v := *s.CompletedAt
		c.CompletedAt = &v
	}
	if s.ProcessingDurationMs != nil {
		v := *s.ProcessingDurationMs
		c.ProcessingDurationMs = &v
	}
	if s.QueueWaitMs != nil {
		v := *s.QueueWaitMs
		c.QueueWaitMs = &v
	}
	if s.LastRetryAt != nil {
		v := *s.LastRetryAt
		c.LastRetryAt = &v
	}
	return &c
}

func (m *memStatusStore) Set(ctx context.Context, status *models.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[status.JobID] = cloneStatus(status)
	return nil
}

func (m *memStatusStore) Get(ctx context.Context, jobID string) (*models.JobStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status, ok := m.records[jobID]
	if !ok {
		return nil, nil
	}
	return cloneStatus(status), nil
}

func (m *memStatusStore) Delete(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, jobID)
	return nil
}

func (m *memStatusStore) ListByStatus(ctx context.Context, state models.JobState, skip, take int) ([]*models.JobStatus, error) {
	return m.List(ctx, &models.JobStatusFilter{State: state}, skip, take)
}

func (m *memStatusStore) ListByType(ctx context.Context, jobType string, skip, take int) ([]*models.JobStatus, error) {
	return m.List(ctx, &models.JobStatusFilter{JobType: jobType}, skip, take)
}

func (m *memStatusStore) ListBySource(ctx context.Context, source string, skip, take int) ([]*models.JobStatus, error) {
	return m.List(ctx, &models.JobStatusFilter{Source: source}, skip, take)
}

func (m *memStatusStore) List(ctx context.Context, filter *models.JobStatusFilter, skip, take int) ([]*models.JobStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.JobStatus
	for _, status := range m.records {
		if filter != nil {
			if filter.State != "" && status.State != filter.State {
				continue
			}
			if filter.JobType != "" && status.JobType != filter.JobType {
				continue
			}
			if filter.Source != "" && status.Source != filter.Source {
				continue
			}
			if filter.CorrelationID != "" && status.CorrelationID != filter.CorrelationID {
				continue
			}
		}
		out = append(out, cloneStatus(status))
	}
	return out, nil
}

func (m *memStatusStore) Count(ctx context.Context, filter *models.JobStatusFilter) (int, error) {
	list, err := m.List(ctx, filter, 0, 0)
	return len(list), err
}

func (m *memStatusStore) Metrics(ctx context.Context) (*models.JobMetrics, error) {
	return &models.JobMetrics{}, nil
}

func (m *memStatusStore) DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, status := range m.records {
		if status.IsTerminal() && status.CreatedAt.Before(cutoff) {
			delete(m.records, id)
			removed++
		}
	}
	return removed, nil
}

func (m *memStatusStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Stub handler with call counting
type stubHandler struct {
	jobType string
	fn      func(ctx context.Context, job *models.Job) models.JobResult
	calls   atomic.Int32
}

func (h *stubHandler) Type() string { return h.jobType }

func (h *stubHandler) Execute(ctx context.Context, job *models.Job) models.JobResult {
	h.calls.Add(1)
	if h.fn != nil {
		return h.fn(ctx, job)
	}
	return models.SuccessResult()
}

func (h *stubHandler) callCount() int { return int(h.calls.Load()) }

// waitForState polls the store until the job reaches the wanted state
func waitForState(t *testing.T, store *memStatusStore, jobID string, state models.JobState, timeout time.Duration) *models.JobStatus {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		status, _ := store.Get(context.Background(), jobID)
		if status != nil && status.State == state {
			return status
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach state %s within %s", jobID, state, timeout)
	return nil
}
