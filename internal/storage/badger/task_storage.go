package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/faber/internal/interfaces"
	"github.com/ternarybob/faber/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// TaskStorage implements the TaskStorage interface for Badger. The
// store enforces ID uniqueness only; lifecycle legality is the
// caller's concern.
type TaskStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTaskStorage creates a new TaskStorage instance
func NewTaskStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TaskStorage {
	return &TaskStorage{
		db:     db,
		logger: logger,
	}
}

// Create persists a new task. An existing ID returns ErrTaskExists.
func (s *TaskStorage) Create(ctx context.Context, task *models.Task) error {
	if task == nil {
		return fmt.Errorf("task is required")
	}
	if task.ID == "" {
		return fmt.Errorf("task ID is required")
	}

	err := s.db.Store().Insert(task.ID, task)
	if err == badgerhold.ErrKeyExists {
		return interfaces.ErrTaskExists
	}
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	s.logger.Debug().
		Str("task_id", task.ID).
		Msg("Task created")
	return nil
}

// Get returns the task, or nil when the ID is unknown
func (s *TaskStorage) Get(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task
	err := s.db.Store().Get(id, &task)
	if err == badgerhold.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

// Update replaces an existing task's attributes
func (s *TaskStorage) Update(ctx context.Context, task *models.Task) error {
	if task == nil {
		return fmt.Errorf("task is required")
	}
	if task.ID == "" {
		return fmt.Errorf("task ID is required")
	}

	err := s.db.Store().Update(task.ID, task)
	if err == badgerhold.ErrNotFound {
		return fmt.Errorf("task not found: %s", task.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return nil
}

// List returns tasks ordered by created-at descending
func (s *TaskStorage) List(ctx context.Context, skip, take int) ([]*models.Task, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("CreatedAt").Reverse()
	if skip > 0 {
		query = query.Skip(skip)
	}
	if take > 0 {
		query = query.Limit(take)
	}

	var tasks []models.Task
	if err := s.db.Store().Find(&tasks, query); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	result := make([]*models.Task, len(tasks))
	for i := range tasks {
		result[i] = &tasks[i]
	}
	return result, nil
}

// Count returns the total number of tasks
func (s *TaskStorage) Count(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Task{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return int(count), nil
}
