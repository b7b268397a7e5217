package health

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/faber/internal/interfaces"
	"github.com/ternarybob/faber/internal/models"
)

// metricsStore stubs the status store; only Metrics matters here
type metricsStore struct {
	metrics *models.JobMetrics
	err     error
}

func (m *metricsStore) Set(ctx context.Context, status *models.JobStatus) error { return nil }
func (m *metricsStore) Get(ctx context.Context, jobID string) (*models.JobStatus, error) {
	return nil, nil
}
func (m *metricsStore) Delete(ctx context.Context, jobID string) error { return nil }
func (m *metricsStore) ListByStatus(ctx context.Context, state models.JobState, skip, take int) ([]*models.JobStatus, error) {
	return nil, nil
}
func (m *metricsStore) ListByType(ctx context.Context, jobType string, skip, take int) ([]*models.JobStatus, error) {
	return nil, nil
}
func (m *metricsStore) ListBySource(ctx context.Context, source string, skip, take int) ([]*models.JobStatus, error) {
	return nil, nil
}
func (m *metricsStore) List(ctx context.Context, filter *models.JobStatusFilter, skip, take int) ([]*models.JobStatus, error) {
	return nil, nil
}
func (m *metricsStore) Count(ctx context.Context, filter *models.JobStatusFilter) (int, error) {
	return 0, nil
}
func (m *metricsStore) Metrics(ctx context.Context) (*models.JobMetrics, error) {
	return m.metrics, m.err
}
func (m *metricsStore) DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

// depthQueue stubs the queue at a fixed depth
type depthQueue struct {
	depth int
}

func (q *depthQueue) Enqueue(job *models.Job) bool { return true }

func (q *depthQueue) Dequeue(ctx context.Context) (*models.Job, error) { return nil, nil }

func (q *depthQueue) Count() int { return q.depth }

func (q *depthQueue) Close() {}

type recordingEvents struct {
	mu     sync.Mutex
	events []interfaces.Event
}

func (r *recordingEvents) Subscribe(t interfaces.EventType, h interfaces.EventHandler) error {
	return nil
}
func (r *recordingEvents) Unsubscribe(t interfaces.EventType, h interfaces.EventHandler) error {
	return nil
}
func (r *recordingEvents) Publish(ctx context.Context, event interfaces.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}
func (r *recordingEvents) PublishSync(ctx context.Context, event interfaces.Event) error {
	return r.Publish(ctx, event)
}
func (r *recordingEvents) Close() error { return nil }

func (r *recordingEvents) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newHealthService(metrics *models.JobMetrics, metricsErr error, depth int) *Service {
	store := &metricsStore{metrics: metrics, err: metricsErr}
	return NewService(store, &depthQueue{depth: depth}, nil, nil, arbor.NewLogger())
}

func metricsWithFailureRate(rate float64) *models.JobMetrics {
	return &models.JobMetrics{
		TotalJobs:   100,
		FailedCount: int(rate * 100),
		FailureRate: rate,
	}
}

func TestService_CheckAllHealthy(t *testing.T) {
	service := newHealthService(metricsWithFailureRate(0.1), nil, 5)

	report := service.Check(context.Background())
	if report.Status != models.HealthStatusHealthy {
		t.Errorf("Expected healthy, got %s", report.Status)
	}
	if len(report.Components) != 3 {
		t.Errorf("Expected 3 components, got %d", len(report.Components))
	}
	for name, component := range report.Components {
		if component.Status != models.HealthStatusHealthy {
			t.Errorf("Expected %s healthy, got %s", name, component.Status)
		}
	}
	if report.Metrics == nil || report.Metrics.TotalJobs != 100 {
		t.Errorf("Expected metrics in report, got %+v", report.Metrics)
	}
	if report.Timestamp.IsZero() {
		t.Error("Expected timestamp in report")
	}
}

func TestService_CheckFailureRateBands(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		want models.HealthStatus
	}{
		{"zero", 0.0, models.HealthStatusHealthy},
		{"exactly degraded threshold", 0.20, models.HealthStatusHealthy},
		{"inside degraded band", 0.21, models.HealthStatusDegraded},
		{"exactly unhealthy threshold", 0.50, models.HealthStatusDegraded},
		{"above unhealthy threshold", 0.51, models.HealthStatusUnhealthy},
		{"total failure", 1.0, models.HealthStatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := newHealthService(metricsWithFailureRate(tt.rate), nil, 0)
			report := service.Check(context.Background())
			if got := report.Components["job_processing"].Status; got != tt.want {
				t.Errorf("Rate %.2f: expected %s, got %s", tt.rate, tt.want, got)
			}
			if report.Status != tt.want {
				t.Errorf("Rate %.2f: expected aggregate %s, got %s", tt.rate, tt.want, report.Status)
			}
		})
	}
}

func TestService_CheckQueueDepthBands(t *testing.T) {
	tests := []struct {
		name  string
		depth int
		want  models.HealthStatus
	}{
		{"empty", 0, models.HealthStatusHealthy},
		{"exactly threshold", 1000, models.HealthStatusHealthy},
		{"above threshold", 1001, models.HealthStatusDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := newHealthService(metricsWithFailureRate(0), nil, tt.depth)
			report := service.Check(context.Background())
			if got := report.Components["job_queue"].Status; got != tt.want {
				t.Errorf("Depth %d: expected %s, got %s", tt.depth, tt.want, got)
			}
		})
	}
}

func TestService_CheckMetricsFailure(t *testing.T) {
	service := newHealthService(nil, fmt.Errorf("store offline"), 0)

	report := service.Check(context.Background())
	if report.Status != models.HealthStatusUnhealthy {
		t.Errorf("Expected unhealthy, got %s", report.Status)
	}
	if got := report.Components["database"].Status; got != models.HealthStatusUnhealthy {
		t.Errorf("Expected database unhealthy, got %s", got)
	}
	if got := report.Components["job_processing"].Status; got != models.HealthStatusUnhealthy {
		t.Errorf("Expected job_processing unhealthy, got %s", got)
	}
	// Queue depth alone still reports independently
	if got := report.Components["job_queue"].Status; got != models.HealthStatusHealthy {
		t.Errorf("Expected job_queue healthy, got %s", got)
	}
	if report.Metrics != nil {
		t.Error("Expected no metrics when the store fails")
	}
}

func TestService_CheckWorstOfAggregation(t *testing.T) {
	// Healthy processing but degraded queue: aggregate is degraded
	service := newHealthService(metricsWithFailureRate(0.0), nil, 5000)
	report := service.Check(context.Background())
	if report.Status != models.HealthStatusDegraded {
		t.Errorf("Expected degraded aggregate, got %s", report.Status)
	}
}

func TestService_CheckPublishesOnChange(t *testing.T) {
	store := &metricsStore{metrics: metricsWithFailureRate(0.0)}
	events := &recordingEvents{}
	service := NewService(store, &depthQueue{}, events, nil, arbor.NewLogger())
	ctx := context.Background()

	// healthy -> healthy: no event
	service.Check(ctx)
	if events.count() != 0 {
		t.Errorf("Expected no events while status is stable, got %d", events.count())
	}

	// healthy -> unhealthy: one event
	store.metrics = metricsWithFailureRate(0.9)
	service.Check(ctx)
	if events.count() != 1 {
		t.Fatalf("Expected 1 event after status change, got %d", events.count())
	}
	if events.events[0].Type != interfaces.EventHealthChanged {
		t.Errorf("Expected health_changed event, got %s", events.events[0].Type)
	}

	// unhealthy -> unhealthy: still one event
	service.Check(ctx)
	if events.count() != 1 {
		t.Errorf("Expected no further events while unhealthy, got %d", events.count())
	}
}
