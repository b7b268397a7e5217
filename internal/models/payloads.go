// -----------------------------------------------------------------------
// Job Payloads - Typed payload DTOs carried by background jobs
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"fmt"
)

// GeneratePlanPayload is carried by generate_plan jobs
type GeneratePlanPayload struct {
	TaskID            string `json:"task_id"`
	InstallationID    int64  `json:"installation_id,omitempty"`
	Owner             string `json:"owner"`
	Repo              string `json:"repo"`
	IssueNumber       int    `json:"issue_number"`
	IssueTitle        string `json:"issue_title,omitempty"`
	IssueBody         string `json:"issue_body,omitempty"`
	WebhookDeliveryID string `json:"webhook_delivery_id,omitempty"`
}

// ExecutePlanPayload is carried by execute_plan jobs
type ExecutePlanPayload struct {
	TaskID string `json:"task_id"`
}

// MarshalPayload serializes a payload DTO for a job
func MarshalPayload(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}
	return data, nil
}
