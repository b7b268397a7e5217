// -----------------------------------------------------------------------
// Audit Event - Persisted record of reportable system operations
// -----------------------------------------------------------------------

package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditKind classifies audit events. Kinds are stable strings used for
// filtering in the store and searching in the log output.
type AuditKind string

const (
	AuditWebhookReceived     AuditKind = "webhook_received"
	AuditWebhookValidation   AuditKind = "webhook_validation"
	AuditTaskStateTransition AuditKind = "task_state_transition"
	AuditPlatformAPICall     AuditKind = "platform_api_call"
	AuditJobStateTransition  AuditKind = "job_state_transition"
	AuditContainerOperation  AuditKind = "container_operation"
	AuditFileOperation       AuditKind = "file_operation"
	AuditPlanGeneration      AuditKind = "plan_generation"
	AuditPlanExecution       AuditKind = "plan_execution"
	AuditRetentionCleanup    AuditKind = "retention_cleanup"
)

// AuditEvent is one audit record. Events are append-only and removed
// only by retention cleanup.
type AuditEvent struct {
	ID            string                 `json:"id"`
	Kind          AuditKind              `json:"kind" badgerhold:"index"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id,omitempty" badgerhold:"index"`
	Description   string                 `json:"description"`
	Data          map[string]interface{} `json:"data,omitempty"`
	Initiator     string                 `json:"initiator,omitempty"`
	Target        string                 `json:"target,omitempty"`
	Result        string                 `json:"result,omitempty"`
	DurationMs    int64                  `json:"duration_ms,omitempty"`
	ErrorMessage  string                 `json:"error_message,omitempty"`
}

// NewAuditEvent creates an audit event stamped with the current time
func NewAuditEvent(kind AuditKind, description string) *AuditEvent {
	return &AuditEvent{
		ID:          uuid.New().String(),
		Kind:        kind,
		Timestamp:   time.Now(),
		Description: description,
	}
}

// AuditFilter narrows audit queries. Zero-valued fields match all.
type AuditFilter struct {
	Kind          AuditKind `json:"kind,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}
