// -----------------------------------------------------------------------
// Webhook Event - Host-neutral view of an issue webhook delivery
// -----------------------------------------------------------------------

package models

// IssueWebhookEvent carries the fields of an issue delivery the webhook
// service acts on, decoupled from the hosting provider's payload shape.
type IssueWebhookEvent struct {
	DeliveryID     string `json:"delivery_id,omitempty"`
	Action         string `json:"action"`
	Label          string `json:"label,omitempty"`
	InstallationID int64  `json:"installation_id,omitempty"`
	Owner          string `json:"owner"`
	Repo           string `json:"repo"`
	IssueNumber    int    `json:"issue_number"`
	IssueTitle     string `json:"issue_title,omitempty"`
	IssueBody      string `json:"issue_body,omitempty"`
}

// WebhookOutcome reports what the webhook service did with a delivery
type WebhookOutcome string

const (
	WebhookOutcomeTaskCreated  WebhookOutcome = "task_created"
	WebhookOutcomeIgnored      WebhookOutcome = "ignored"
	WebhookOutcomeDeduplicated WebhookOutcome = "deduplicated"
)

// WebhookResult is the webhook service's decision for one delivery
type WebhookResult struct {
	Outcome WebhookOutcome `json:"outcome"`
	TaskID  string         `json:"task_id,omitempty"`
	JobID   string         `json:"job_id,omitempty"`
	Reason  string         `json:"reason,omitempty"`
}
