package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/faber/internal/models"
)

// ErrTaskExists is returned by TaskStorage.Create when the ID is taken
var ErrTaskExists = errors.New("task already exists")

// JobStatusStorage - interface for job execution record persistence
type JobStatusStorage interface {
	// Set inserts or fully replaces the record for status.JobID
	Set(ctx context.Context, status *models.JobStatus) error

	// Get returns the record or nil when the job ID is unknown
	Get(ctx context.Context, jobID string) (*models.JobStatus, error)

	// Delete removes the record for jobID
	Delete(ctx context.Context, jobID string) error

	// ListByStatus returns records in a state, newest first
	ListByStatus(ctx context.Context, state models.JobState, skip, take int) ([]*models.JobStatus, error)

	// ListByType returns records of a job type, newest first
	ListByType(ctx context.Context, jobType string, skip, take int) ([]*models.JobStatus, error)

	// ListBySource returns records from a source, newest first
	ListBySource(ctx context.Context, source string, skip, take int) ([]*models.JobStatus, error)

	// List returns records matching the filter ordered by created-at
	// descending, ties broken by job ID
	List(ctx context.Context, filter *models.JobStatusFilter, skip, take int) ([]*models.JobStatus, error)

	// Count returns the number of records matching the filter
	Count(ctx context.Context, filter *models.JobStatusFilter) (int, error)

	// Metrics aggregates all records into queue metrics
	Metrics(ctx context.Context) (*models.JobMetrics, error)

	// DeleteTerminalOlderThan removes terminal records created before
	// the cutoff. Returns the number removed.
	DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// TaskStorage - interface for task persistence. The store checks
// existence only; lifecycle transitions are enforced by callers.
type TaskStorage interface {
	// Create persists a new task. Creating an existing ID returns
	// ErrTaskExists.
	Create(ctx context.Context, task *models.Task) error

	// Get returns the task or nil when the ID is unknown
	Get(ctx context.Context, id string) (*models.Task, error)

	// Update replaces an existing task's attributes
	Update(ctx context.Context, task *models.Task) error

	// List returns tasks ordered by created-at descending
	List(ctx context.Context, skip, take int) ([]*models.Task, error)

	// Count returns the total number of tasks
	Count(ctx context.Context) (int, error)
}

// AuditStorage - interface for audit event persistence
type AuditStorage interface {
	// Append persists one audit event
	Append(ctx context.Context, event *models.AuditEvent) error

	// Query returns events matching the filter, newest first
	Query(ctx context.Context, filter *models.AuditFilter, skip, take int) ([]*models.AuditEvent, error)

	// Count returns the number of events matching the filter
	Count(ctx context.Context, filter *models.AuditFilter) (int, error)

	// DeleteOlderThan removes events recorded before the cutoff.
	// Returns the number removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	JobStatusStorage() JobStatusStorage
	TaskStorage() TaskStorage
	AuditStorage() AuditStorage
	KVStorage() KeyValueStorage
	DB() interface{}
	Close() error

	// LoadVariablesFromFiles seeds the KV store from TOML variable files
	LoadVariablesFromFiles(ctx context.Context, dirPath string) error

	// LoadEnvFile seeds the KV store from a .env file
	LoadEnvFile(ctx context.Context, filePath string) error

	// RunValueLogGC compacts the underlying store's value log
	RunValueLogGC() error
}
