// -----------------------------------------------------------------------
// Task Transitions - State-machine enforcement shared by job handlers
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/faber/internal/interfaces"
	"github.com/ternarybob/faber/internal/models"
)

// transitionTask validates and applies a state change, persists it, and
// records the transition in the audit trail
func transitionTask(ctx context.Context, taskStorage interfaces.TaskStorage, auditService interfaces.AuditService, task *models.Task, to models.TaskState) error {
	if !task.Status.CanTransitionTo(to) {
		return fmt.Errorf("task %s cannot move from %s to %s", task.ID, task.Status, to)
	}

	from := task.Status
	task.Status = to
	task.UpdatedAt = time.Now()

	if err := taskStorage.Update(ctx, task); err != nil {
		task.Status = from
		return fmt.Errorf("failed to persist task %s transition to %s: %w", task.ID, to, err)
	}

	if auditService != nil {
		auditService.LogTaskStateTransition(ctx, task.ID, from, to)
	}
	return nil
}

// failTask moves a task to Failed for a permanent handler failure. The
// write uses a background context so it still lands when the job context
// is already dead.
func failTask(taskStorage interfaces.TaskStorage, auditService interfaces.AuditService, logger arbor.ILogger, task *models.Task) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := transitionTask(ctx, taskStorage, auditService, task, models.TaskStateFailed); err != nil {
		logger.Error().Err(err).
			Str("task_id", task.ID).
			Msg("Failed to mark task as failed")
	}
}
