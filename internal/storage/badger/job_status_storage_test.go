package badger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/faber/internal/models"
)

func int64Ptr(v int64) *int64 { return &v }

func statusFixture(jobID, jobType string, state models.JobState, createdAt time.Time) *models.JobStatus {
	return &models.JobStatus{
		JobID:      jobID,
		JobType:    jobType,
		State:      state,
		Source:     models.JobSourceAPI,
		CreatedAt:  createdAt,
		MaxRetries: 3,
	}
}

func TestJobStatusStorage_SetAndGet(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStatusStorage(db, arbor.NewLogger())
	ctx := context.Background()

	started := time.Date(2025, 11, 3, 10, 0, 5, 0, time.UTC)
	status := statusFixture("job-1", models.JobTypeGeneratePlan, models.JobStateCompleted, time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC))
	status.StartedAt = &started
	status.ProcessingDurationMs = int64Ptr(1250)
	status.QueueWaitMs = int64Ptr(5000)
	status.CorrelationID = "corr-1"
	status.Metadata = map[string]string{"owner": "octo"}

	if err := storage.Set(ctx, status); err != nil {
		t.Fatalf("Failed to set job status: %v", err)
	}

	got, err := storage.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Failed to get job status: %v", err)
	}
	if got == nil {
		t.Fatal("Expected job status, got nil")
	}
	if got.JobType != models.JobTypeGeneratePlan {
		t.Errorf("Expected job type %s, got %s", models.JobTypeGeneratePlan, got.JobType)
	}
	if got.State != models.JobStateCompleted {
		t.Errorf("Expected state %s, got %s", models.JobStateCompleted, got.State)
	}
	if got.ProcessingDurationMs == nil || *got.ProcessingDurationMs != 1250 {
		t.Errorf("Expected processing duration 1250, got %v", got.ProcessingDurationMs)
	}
	if got.QueueWaitMs == nil || *got.QueueWaitMs != 5000 {
		t.Errorf("Expected queue wait 5000, got %v", got.QueueWaitMs)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Errorf("Expected started at %v, got %v", started, got.StartedAt)
	}
	if got.Metadata["owner"] != "octo" {
		t.Errorf("Expected metadata owner octo, got %v", got.Metadata)
	}
}

func TestJobStatusStorage_GetUnknownReturnsNil(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStatusStorage(db, arbor.NewLogger())

	got, err := storage.Get(context.Background(), "never-dispatched")
	if err != nil {
		t.Fatalf("Expected no error for unknown job, got %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil status for unknown job, got %+v", got)
	}
}

func TestJobStatusStorage_SetValidation(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStatusStorage(db, arbor.NewLogger())
	ctx := context.Background()

	if err := storage.Set(ctx, nil); err == nil {
		t.Error("Expected error for nil status")
	}
	if err := storage.Set(ctx, &models.JobStatus{}); err == nil {
		t.Error("Expected error for empty job ID")
	}
}

func TestJobStatusStorage_SetReplacesExisting(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStatusStorage(db, arbor.NewLogger())
	ctx := context.Background()
	created := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)

	if err := storage.Set(ctx, statusFixture("job-1", models.JobTypeGeneratePlan, models.JobStateQueued, created)); err != nil {
		t.Fatalf("Failed to set job status: %v", err)
	}

	updated := statusFixture("job-1", models.JobTypeGeneratePlan, models.JobStateProcessing, created)
	updated.RetryCount = 1
	if err := storage.Set(ctx, updated); err != nil {
		t.Fatalf("Failed to update job status: %v", err)
	}

	got, err := storage.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Failed to get job status: %v", err)
	}
	if got.State != models.JobStateProcessing {
		t.Errorf("Expected state %s after update, got %s", models.JobStateProcessing, got.State)
	}
	if got.RetryCount != 1 {
		t.Errorf("Expected retry count 1, got %d", got.RetryCount)
	}

	count, err := storage.Count(ctx, nil)
	if err != nil {
		t.Fatalf("Failed to count job statuses: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected one record after upsert, got %d", count)
	}
}

func TestJobStatusStorage_Delete(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStatusStorage(db, arbor.NewLogger())
	ctx := context.Background()

	if err := storage.Set(ctx, statusFixture("job-1", models.JobTypeGeneratePlan, models.JobStateCompleted, time.Now().UTC())); err != nil {
		t.Fatalf("Failed to set job status: %v", err)
	}
	if err := storage.Delete(ctx, "job-1"); err != nil {
		t.Fatalf("Failed to delete job status: %v", err)
	}

	got, err := storage.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Failed to get job status: %v", err)
	}
	if got != nil {
		t.Error("Expected status to be deleted")
	}

	// Deleting an unknown ID is a no-op
	if err := storage.Delete(ctx, "job-1"); err != nil {
		t.Errorf("Expected no error deleting unknown job, got %v", err)
	}
}

func TestJobStatusStorage_ListOrdersNewestFirst(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStatusStorage(db, arbor.NewLogger())
	ctx := context.Background()
	base := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)

	// Inserted out of creation order on purpose
	for _, status := range []*models.JobStatus{
		statusFixture("job-mid", models.JobTypeGeneratePlan, models.JobStateCompleted, base.Add(1*time.Hour)),
		statusFixture("job-new", models.JobTypeGeneratePlan, models.JobStateCompleted, base.Add(2*time.Hour)),
		statusFixture("job-old", models.JobTypeGeneratePlan, models.JobStateCompleted, base),
	} {
		if err := storage.Set(ctx, status); err != nil {
			t.Fatalf("Failed to set job status: %v", err)
		}
	}

	statuses, err := storage.List(ctx, nil, 0, 0)
	if err != nil {
		t.Fatalf("Failed to list job statuses: %v", err)
	}
	if len(statuses) != 3 {
		t.Fatalf("Expected 3 statuses, got %d", len(statuses))
	}
	if statuses[0].JobID != "job-new" || statuses[1].JobID != "job-mid" || statuses[2].JobID != "job-old" {
		t.Errorf("Expected newest-first order, got %s, %s, %s",
			statuses[0].JobID, statuses[1].JobID, statuses[2].JobID)
	}

	page, err := storage.List(ctx, nil, 1, 1)
	if err != nil {
		t.Fatalf("Failed to list page: %v", err)
	}
	if len(page) != 1 || page[0].JobID != "job-mid" {
		t.Errorf("Expected page with job-mid, got %+v", page)
	}
}

func TestJobStatusStorage_ListFilters(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStatusStorage(db, arbor.NewLogger())
	ctx := context.Background()
	base := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)

	planDone := statusFixture("job-1", models.JobTypeGeneratePlan, models.JobStateCompleted, base)
	planDone.Source = models.JobSourceWebhook
	planDone.CorrelationID = "corr-a"

	planFailed := statusFixture("job-2", models.JobTypeGeneratePlan, models.JobStateFailed, base.Add(time.Minute))
	planFailed.Source = models.JobSourceWebhook
	planFailed.CorrelationID = "corr-b"

	execDone := statusFixture("job-3", models.JobTypeExecutePlan, models.JobStateCompleted, base.Add(2*time.Minute))
	execDone.Source = models.JobSourceHandler
	execDone.CorrelationID = "corr-a"

	for _, status := range []*models.JobStatus{planDone, planFailed, execDone} {
		if err := storage.Set(ctx, status); err != nil {
			t.Fatalf("Failed to set job status: %v", err)
		}
	}

	byState, err := storage.ListByStatus(ctx, models.JobStateCompleted, 0, 0)
	if err != nil {
		t.Fatalf("Failed to list by state: %v", err)
	}
	if len(byState) != 2 {
		t.Errorf("Expected 2 completed statuses, got %d", len(byState))
	}

	byType, err := storage.ListByType(ctx, models.JobTypeExecutePlan, 0, 0)
	if err != nil {
		t.Fatalf("Failed to list by type: %v", err)
	}
	if len(byType) != 1 || byType[0].JobID != "job-3" {
		t.Errorf("Expected job-3 for execute_plan, got %+v", byType)
	}

	bySource, err := storage.ListBySource(ctx, models.JobSourceWebhook, 0, 0)
	if err != nil {
		t.Fatalf("Failed to list by source: %v", err)
	}
	if len(bySource) != 2 {
		t.Errorf("Expected 2 webhook statuses, got %d", len(bySource))
	}

	byCorrelation, err := storage.List(ctx, &models.JobStatusFilter{CorrelationID: "corr-a"}, 0, 0)
	if err != nil {
		t.Fatalf("Failed to list by correlation: %v", err)
	}
	if len(byCorrelation) != 2 {
		t.Errorf("Expected 2 statuses for corr-a, got %d", len(byCorrelation))
	}

	combined, err := storage.List(ctx, &models.JobStatusFilter{
		State:   models.JobStateCompleted,
		JobType: models.JobTypeGeneratePlan,
	}, 0, 0)
	if err != nil {
		t.Fatalf("Failed to list with combined filter: %v", err)
	}
	if len(combined) != 1 || combined[0].JobID != "job-1" {
		t.Errorf("Expected job-1 for combined filter, got %+v", combined)
	}

	count, err := storage.Count(ctx, &models.JobStatusFilter{JobType: models.JobTypeGeneratePlan})
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected count 2 for generate_plan, got %d", count)
	}
}

func TestJobStatusStorage_Metrics(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStatusStorage(db, arbor.NewLogger())
	ctx := context.Background()
	base := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)

	// Four completed plans, two of them carrying measurements
	for i := 0; i < 4; i++ {
		status := statusFixture(fmt.Sprintf("done-%d", i), models.JobTypeGeneratePlan, models.JobStateCompleted, base.Add(time.Duration(i)*time.Second))
		if i < 2 {
			status.ProcessingDurationMs = int64Ptr(int64(100 + i*200))
			status.QueueWaitMs = int64Ptr(int64(50 + i*100))
		}
		if err := storage.Set(ctx, status); err != nil {
			t.Fatalf("Failed to set job status: %v", err)
		}
	}
	// Six failed executions with no measurements
	for i := 0; i < 6; i++ {
		status := statusFixture(fmt.Sprintf("failed-%d", i), models.JobTypeExecutePlan, models.JobStateFailed, base.Add(time.Duration(10+i)*time.Second))
		if err := storage.Set(ctx, status); err != nil {
			t.Fatalf("Failed to set job status: %v", err)
		}
	}

	metrics, err := storage.Metrics(ctx)
	if err != nil {
		t.Fatalf("Failed to compute metrics: %v", err)
	}

	if metrics.TotalJobs != 10 {
		t.Errorf("Expected 10 total jobs, got %d", metrics.TotalJobs)
	}
	if metrics.CompletedCount != 4 {
		t.Errorf("Expected 4 completed, got %d", metrics.CompletedCount)
	}
	if metrics.FailedCount != 6 {
		t.Errorf("Expected 6 failed, got %d", metrics.FailedCount)
	}
	if metrics.FailureRate != 0.6 {
		t.Errorf("Expected failure rate 0.6, got %f", metrics.FailureRate)
	}
	// Only the two measured records count toward the averages
	if metrics.AverageProcessingMs != 200 {
		t.Errorf("Expected average processing 200ms, got %f", metrics.AverageProcessingMs)
	}
	if metrics.AverageQueueWaitMs != 100 {
		t.Errorf("Expected average queue wait 100ms, got %f", metrics.AverageQueueWaitMs)
	}

	planMetrics := metrics.ByType[models.JobTypeGeneratePlan]
	if planMetrics == nil {
		t.Fatal("Expected per-type metrics for generate_plan")
	}
	if planMetrics.TotalCount != 4 || planMetrics.SuccessCount != 4 || planMetrics.FailureCount != 0 {
		t.Errorf("Unexpected generate_plan metrics: %+v", planMetrics)
	}
	if planMetrics.AverageProcessingMs != 200 {
		t.Errorf("Expected generate_plan average 200ms, got %f", planMetrics.AverageProcessingMs)
	}

	execMetrics := metrics.ByType[models.JobTypeExecutePlan]
	if execMetrics == nil {
		t.Fatal("Expected per-type metrics for execute_plan")
	}
	if execMetrics.TotalCount != 6 || execMetrics.FailureCount != 6 {
		t.Errorf("Unexpected execute_plan metrics: %+v", execMetrics)
	}
	if execMetrics.FailureRate != 1.0 {
		t.Errorf("Expected execute_plan failure rate 1.0, got %f", execMetrics.FailureRate)
	}
}

func TestJobStatusStorage_MetricsEmpty(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStatusStorage(db, arbor.NewLogger())

	metrics, err := storage.Metrics(context.Background())
	if err != nil {
		t.Fatalf("Failed to compute metrics: %v", err)
	}
	if metrics.TotalJobs != 0 || metrics.FailureRate != 0 || metrics.AverageProcessingMs != 0 {
		t.Errorf("Expected zeroed metrics for empty store, got %+v", metrics)
	}
}

func TestJobStatusStorage_DeleteTerminalOlderThan(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStatusStorage(db, arbor.NewLogger())
	ctx := context.Background()
	cutoff := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)

	oldCompleted := statusFixture("old-completed", models.JobTypeGeneratePlan, models.JobStateCompleted, cutoff.Add(-48*time.Hour))
	oldFailed := statusFixture("old-failed", models.JobTypeExecutePlan, models.JobStateFailed, cutoff.Add(-24*time.Hour))
	oldProcessing := statusFixture("old-processing", models.JobTypeExecutePlan, models.JobStateProcessing, cutoff.Add(-24*time.Hour))
	recentCompleted := statusFixture("recent-completed", models.JobTypeGeneratePlan, models.JobStateCompleted, cutoff.Add(time.Hour))

	for _, status := range []*models.JobStatus{oldCompleted, oldFailed, oldProcessing, recentCompleted} {
		if err := storage.Set(ctx, status); err != nil {
			t.Fatalf("Failed to set job status: %v", err)
		}
	}

	removed, err := storage.DeleteTerminalOlderThan(ctx, cutoff)
	if err != nil {
		t.Fatalf("Failed to delete terminal statuses: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 removed, got %d", removed)
	}

	// Non-terminal and recent records survive
	for _, jobID := range []string{"old-processing", "recent-completed"} {
		got, err := storage.Get(ctx, jobID)
		if err != nil {
			t.Fatalf("Failed to get %s: %v", jobID, err)
		}
		if got == nil {
			t.Errorf("Expected %s to survive cleanup", jobID)
		}
	}
	for _, jobID := range []string{"old-completed", "old-failed"} {
		got, err := storage.Get(ctx, jobID)
		if err != nil {
			t.Fatalf("Failed to get %s: %v", jobID, err)
		}
		if got != nil {
			t.Errorf("Expected %s to be removed", jobID)
		}
	}

	// Second pass finds nothing left to remove
	removed, err = storage.DeleteTerminalOlderThan(ctx, cutoff)
	if err != nil {
		t.Fatalf("Failed on second cleanup pass: %v", err)
	}
	if removed != 0 {
		t.Errorf("Expected 0 removed on second pass, got %d", removed)
	}
}
