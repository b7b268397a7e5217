package handlers

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/faber/internal/common"
	"github.com/ternarybob/faber/internal/interfaces"
	"github.com/ternarybob/faber/internal/models"
	"golang.org/x/time/rate"
)

// EventSubscriber bridges the event bus to the websocket stream with
// config-driven filtering and throttling
type EventSubscriber struct {
	handler       *WebSocketHandler
	eventService  interfaces.EventService
	logger        arbor.ILogger
	allowedEvents map[string]bool          // Whitelist of events to broadcast (empty = allow all)
	throttlers    map[string]*rate.Limiter // Rate limiters for high-frequency events
}

// NewEventSubscriber creates and initializes an event subscriber.
// Automatically subscribes to job, task, webhook, and health events.
func NewEventSubscriber(handler *WebSocketHandler, eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *EventSubscriber {
	s := &EventSubscriber{
		handler:      handler,
		eventService: eventService,
		logger:       logger,
	}

	// Empty whitelist means allow all events
	s.allowedEvents = make(map[string]bool)
	if config != nil && len(config.AllowedEvents) > 0 {
		for _, eventType := range config.AllowedEvents {
			s.allowedEvents[eventType] = true
		}
	}

	s.throttlers = make(map[string]*rate.Limiter)
	if config != nil && len(config.ThrottleIntervals) > 0 {
		for eventType, intervalStr := range config.ThrottleIntervals {
			if duration, err := time.ParseDuration(intervalStr); err == nil {
				// One event per interval (burst=1)
				s.throttlers[eventType] = rate.NewLimiter(rate.Every(duration), 1)
				logger.Debug().
					Str("event_type", eventType).
					Str("interval", intervalStr).
					Msg("Throttler initialized for event type")
			} else {
				logger.Warn().
					Err(err).
					Str("event_type", eventType).
					Str("interval", intervalStr).
					Msg("Failed to parse throttle interval - skipping throttler")
			}
		}
	}

	if eventService == nil {
		logger.Warn().Msg("EventSubscriber created with nil eventService - subscriptions will be skipped")
		return s
	}

	s.SubscribeAll()

	return s
}

// SubscribeAll registers subscriptions for all broadcastable events
func (s *EventSubscriber) SubscribeAll() {
	if s.eventService == nil {
		s.logger.Warn().Msg("Cannot subscribe to events - eventService is nil")
		return
	}

	jobEvents := []interfaces.EventType{
		interfaces.EventJobQueued,
		interfaces.EventJobStarted,
		interfaces.EventJobCompleted,
		interfaces.EventJobFailed,
		interfaces.EventJobCancelled,
		interfaces.EventJobRetried,
		interfaces.EventJobDeadLetter,
	}
	for _, eventType := range jobEvents {
		s.eventService.Subscribe(eventType, s.handleJobEvent)
	}

	s.eventService.Subscribe(interfaces.EventTaskUpdated, s.handleTaskUpdated)
	s.eventService.Subscribe(interfaces.EventWebhookHandled, s.handleWebhookHandled)
	s.eventService.Subscribe(interfaces.EventHealthChanged, s.handleHealthChanged)

	s.logger.Info().Msg("EventSubscriber registered for job, task, webhook, and health events")
}

// shouldBroadcastEvent checks the whitelist and throttling for an event
func (s *EventSubscriber) shouldBroadcastEvent(eventType string) bool {
	if len(s.allowedEvents) > 0 && !s.allowedEvents[eventType] {
		return false
	}

	if limiter, ok := s.throttlers[eventType]; ok {
		if !limiter.Allow() {
			s.logger.Debug().
				Str("event_type", eventType).
				Msg("Event throttled - rate limit exceeded")
			return false
		}
	}

	return true
}

// handleJobEvent transforms a job status record into the broadcast shape
func (s *EventSubscriber) handleJobEvent(ctx context.Context, event interfaces.Event) error {
	if !s.shouldBroadcastEvent(string(event.Type)) {
		return nil
	}

	status, ok := event.Payload.(*models.JobStatus)
	if !ok {
		s.logger.Warn().Str("event_type", string(event.Type)).Msg("Invalid job event payload type")
		return nil
	}

	update := JobStatusUpdate{
		JobID:         status.JobID,
		JobType:       status.JobType,
		State:         string(status.State),
		Source:        status.Source,
		CorrelationID: status.CorrelationID,
		RetryCount:    status.RetryCount,
		Error:         status.ErrorMessage,
		Timestamp:     eventTimestamp(status),
	}
	if status.ProcessingDurationMs != nil {
		update.DurationMs = *status.ProcessingDurationMs
	}

	s.handler.BroadcastJobStatusChange(update)
	return nil
}

// eventTimestamp picks the most recent timestamp the record carries
func eventTimestamp(status *models.JobStatus) time.Time {
	if status.CompletedAt != nil {
		return *status.CompletedAt
	}
	if status.StartedAt != nil {
		return *status.StartedAt
	}
	return status.CreatedAt
}

func (s *EventSubscriber) handleTaskUpdated(ctx context.Context, event interfaces.Event) error {
	if !s.shouldBroadcastEvent(string(event.Type)) {
		return nil
	}

	s.handler.BroadcastTaskUpdate(event.Payload)
	return nil
}

func (s *EventSubscriber) handleWebhookHandled(ctx context.Context, event interfaces.Event) error {
	if !s.shouldBroadcastEvent(string(event.Type)) {
		return nil
	}

	s.handler.BroadcastWebhookHandled(event.Payload)
	return nil
}

func (s *EventSubscriber) handleHealthChanged(ctx context.Context, event interfaces.Event) error {
	if !s.shouldBroadcastEvent(string(event.Type)) {
		return nil
	}

	s.handler.BroadcastHealthChange(event.Payload)
	return nil
}
