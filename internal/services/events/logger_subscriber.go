package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/faber/internal/interfaces"
	"github.com/ternarybob/faber/internal/models"
)

// NewLoggerSubscriber creates an event handler that logs all events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		logEvent := logger.Debug().
			Str("event_type", string(event.Type))

		// Job lifecycle events carry the typed status record
		switch payload := event.Payload.(type) {
		case *models.JobStatus:
			logEvent = logEvent.
				Str("job_id", payload.JobID).
				Str("job_type", payload.JobType).
				Str("state", string(payload.State))
			if payload.CorrelationID != "" {
				logEvent = logEvent.Str("correlation_id", payload.CorrelationID)
			}
		case *models.Task:
			logEvent = logEvent.
				Str("task_id", payload.ID).
				Str("task_status", string(payload.Status))
		case map[string]interface{}:
			if id, ok := payload["job_id"].(string); ok && id != "" {
				logEvent = logEvent.Str("job_id", id)
			}
			if outcome, ok := payload["outcome"].(string); ok && outcome != "" {
				logEvent = logEvent.Str("outcome", outcome)
			}
			if status, ok := payload["new_status"].(string); ok && status != "" {
				logEvent = logEvent.Str("new_status", status)
			}
		}

		logEvent.Msg("Event published")

		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to all known event types
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	// Subscribe to all event types
	eventTypes := []interfaces.EventType{
		interfaces.EventJobQueued,
		interfaces.EventJobStarted,
		interfaces.EventJobCompleted,
		interfaces.EventJobFailed,
		interfaces.EventJobCancelled,
		interfaces.EventJobRetried,
		interfaces.EventJobDeadLetter,
		interfaces.EventTaskUpdated,
		interfaces.EventWebhookHandled,
		interfaces.EventHealthChanged,
	}

	for _, eventType := range eventTypes {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
	}

	logger.Info().
		Int("event_type_count", len(eventTypes)).
		Msg("Logger subscribed to all event types")

	return nil
}
