package scheduler

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
)

func waitForCondition(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestService_RegisterJob(t *testing.T) {
	service := NewService(arbor.NewLogger())

	if err := service.RegisterJob("cleanup", "0 3 * * *", "nightly cleanup", func() error { return nil }); err != nil {
		t.Fatalf("Failed to register job: %v", err)
	}

	status, err := service.GetJobStatus("cleanup")
	if err != nil {
		t.Fatalf("Failed to get job status: %v", err)
	}
	if !status.Enabled {
		t.Error("Expected job to be enabled after registration")
	}
	if status.Schedule != "0 3 * * *" {
		t.Errorf("Expected schedule to round-trip, got %s", status.Schedule)
	}
	if status.Description != "nightly cleanup" {
		t.Errorf("Expected description to round-trip, got %s", status.Description)
	}
}

func TestService_RegisterJobValidation(t *testing.T) {
	service := NewService(arbor.NewLogger())

	if err := service.RegisterJob("bad", "not a cron", "", func() error { return nil }); err == nil {
		t.Error("Expected error for invalid schedule")
	}
	if err := service.RegisterJob("too-frequent", "* * * * *", "", func() error { return nil }); err == nil {
		t.Error("Expected error for every-minute schedule")
	}
	if err := service.RegisterJob("", "0 3 * * *", "", func() error { return nil }); err == nil {
		t.Error("Expected error for empty name")
	}
	if err := service.RegisterJob("no-handler", "0 3 * * *", "", nil); err == nil {
		t.Error("Expected error for nil handler")
	}

	if err := service.RegisterJob("dup", "0 3 * * *", "", func() error { return nil }); err != nil {
		t.Fatalf("Failed to register job: %v", err)
	}
	if err := service.RegisterJob("dup", "0 4 * * *", "", func() error { return nil }); err == nil {
		t.Error("Expected error for duplicate registration")
	}
}

func TestService_StartStop(t *testing.T) {
	service := NewService(arbor.NewLogger())

	if service.IsRunning() {
		t.Error("Expected scheduler to start stopped")
	}
	if err := service.Start(); err != nil {
		t.Fatalf("Failed to start: %v", err)
	}
	if !service.IsRunning() {
		t.Error("Expected scheduler to be running")
	}
	if err := service.Start(); err == nil {
		t.Error("Expected error starting twice")
	}
	if err := service.Stop(); err != nil {
		t.Fatalf("Failed to stop: %v", err)
	}
	if service.IsRunning() {
		t.Error("Expected scheduler to be stopped")
	}
	// Stopping again is a no-op
	if err := service.Stop(); err != nil {
		t.Errorf("Expected nil stopping twice, got %v", err)
	}
}

func TestService_TriggerJob(t *testing.T) {
	service := NewService(arbor.NewLogger())

	var runs atomic.Int32
	if err := service.RegisterJob("probe", "*/5 * * * *", "", func() error {
		runs.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("Failed to register job: %v", err)
	}

	if err := service.TriggerJob("probe"); err != nil {
		t.Fatalf("Failed to trigger job: %v", err)
	}
	waitForCondition(t, "job run", func() bool { return runs.Load() == 1 })

	waitForCondition(t, "last run recorded", func() bool {
		status, err := service.GetJobStatus("probe")
		return err == nil && status.LastRun != nil && !status.IsRunning
	})

	if err := service.TriggerJob("missing"); err == nil {
		t.Error("Expected error triggering an unknown job")
	}
}

func TestService_TriggerJobWhileRunning(t *testing.T) {
	service := NewService(arbor.NewLogger())

	release := make(chan struct{})
	entered := make(chan struct{})
	if err := service.RegisterJob("slow", "*/5 * * * *", "", func() error {
		close(entered)
		<-release
		return nil
	}); err != nil {
		t.Fatalf("Failed to register job: %v", err)
	}

	if err := service.TriggerJob("slow"); err != nil {
		t.Fatalf("Failed to trigger job: %v", err)
	}
	<-entered

	if err := service.TriggerJob("slow"); err == nil {
		t.Error("Expected error triggering a running job")
	}
	close(release)

	waitForCondition(t, "job completion", func() bool {
		status, err := service.GetJobStatus("slow")
		return err == nil && !status.IsRunning
	})
}

func TestService_JobFailureRecordsError(t *testing.T) {
	service := NewService(arbor.NewLogger())

	fail := atomic.Bool{}
	fail.Store(true)
	if err := service.RegisterJob("flaky", "*/5 * * * *", "", func() error {
		if fail.Load() {
			return fmt.Errorf("temporary outage")
		}
		return nil
	}); err != nil {
		t.Fatalf("Failed to register job: %v", err)
	}

	if err := service.TriggerJob("flaky"); err != nil {
		t.Fatalf("Failed to trigger job: %v", err)
	}
	waitForCondition(t, "error recorded", func() bool {
		status, err := service.GetJobStatus("flaky")
		return err == nil && status.LastError == "temporary outage"
	})

	// A later success clears the recorded error
	fail.Store(false)
	if err := service.TriggerJob("flaky"); err != nil {
		t.Fatalf("Failed to trigger job: %v", err)
	}
	waitForCondition(t, "error cleared", func() bool {
		status, err := service.GetJobStatus("flaky")
		return err == nil && status.LastError == ""
	})
}

func TestService_JobPanicRecovered(t *testing.T) {
	service := NewService(arbor.NewLogger())

	if err := service.RegisterJob("panics", "*/5 * * * *", "", func() error {
		panic("scheduler boom")
	}); err != nil {
		t.Fatalf("Failed to register job: %v", err)
	}

	if err := service.TriggerJob("panics"); err != nil {
		t.Fatalf("Failed to trigger job: %v", err)
	}
	waitForCondition(t, "panic recorded", func() bool {
		status, err := service.GetJobStatus("panics")
		return err == nil && !status.IsRunning && status.LastError == "panic: scheduler boom"
	})

	// The scheduler survives and can trigger again
	if err := service.TriggerJob("panics"); err != nil {
		t.Errorf("Expected scheduler to survive a panicking job, got %v", err)
	}
}

func TestService_EnableDisable(t *testing.T) {
	service := NewService(arbor.NewLogger())

	if err := service.RegisterJob("toggle", "0 3 * * *", "", func() error { return nil }); err != nil {
		t.Fatalf("Failed to register job: %v", err)
	}

	if err := service.DisableJob("toggle"); err != nil {
		t.Fatalf("Failed to disable job: %v", err)
	}
	status, err := service.GetJobStatus("toggle")
	if err != nil {
		t.Fatalf("Failed to get job status: %v", err)
	}
	if status.Enabled {
		t.Error("Expected job to be disabled")
	}
	if status.NextRun != nil {
		t.Error("Expected no next run for a disabled job")
	}

	// Disabling again is a no-op
	if err := service.DisableJob("toggle"); err != nil {
		t.Errorf("Expected nil disabling twice, got %v", err)
	}

	if err := service.EnableJob("toggle"); err != nil {
		t.Fatalf("Failed to enable job: %v", err)
	}
	status, err = service.GetJobStatus("toggle")
	if err != nil {
		t.Fatalf("Failed to get job status: %v", err)
	}
	if !status.Enabled {
		t.Error("Expected job to be enabled")
	}

	if err := service.EnableJob("missing"); err == nil {
		t.Error("Expected error enabling an unknown job")
	}
	if err := service.DisableJob("missing"); err == nil {
		t.Error("Expected error disabling an unknown job")
	}
}

func TestService_NextRunAfterStart(t *testing.T) {
	service := NewService(arbor.NewLogger())

	if err := service.RegisterJob("nightly", "0 3 * * *", "", func() error { return nil }); err != nil {
		t.Fatalf("Failed to register job: %v", err)
	}

	status, err := service.GetJobStatus("nightly")
	if err != nil {
		t.Fatalf("Failed to get job status: %v", err)
	}
	if status.NextRun != nil {
		t.Error("Expected no next run before the scheduler starts")
	}

	if err := service.Start(); err != nil {
		t.Fatalf("Failed to start: %v", err)
	}
	defer service.Stop()

	status, err = service.GetJobStatus("nightly")
	if err != nil {
		t.Fatalf("Failed to get job status: %v", err)
	}
	if status.NextRun == nil {
		t.Fatal("Expected a next run once the scheduler is running")
	}
	if !status.NextRun.After(time.Now()) {
		t.Errorf("Expected next run in the future, got %v", status.NextRun)
	}
}

func TestService_GetAllJobStatuses(t *testing.T) {
	service := NewService(arbor.NewLogger())

	for _, name := range []string{"first", "second"} {
		if err := service.RegisterJob(name, "0 3 * * *", "", func() error { return nil }); err != nil {
			t.Fatalf("Failed to register %s: %v", name, err)
		}
	}

	statuses := service.GetAllJobStatuses()
	if len(statuses) != 2 {
		t.Fatalf("Expected 2 statuses, got %d", len(statuses))
	}
	if _, ok := statuses["first"]; !ok {
		t.Error("Expected status for job first")
	}
	if _, ok := statuses["second"]; !ok {
		t.Error("Expected status for job second")
	}
}
