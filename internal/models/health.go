// -----------------------------------------------------------------------
// Health Report - Component and aggregate service health
// -----------------------------------------------------------------------

package models

import "time"

// HealthStatus is the three-level health classification
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// severity orders statuses for worst-of aggregation
func (s HealthStatus) severity() int {
	switch s {
	case HealthStatusUnhealthy:
		return 2
	case HealthStatusDegraded:
		return 1
	default:
		return 0
	}
}

// WorseOf returns the more severe of two statuses
func WorseOf(a, b HealthStatus) HealthStatus {
	if b.severity() > a.severity() {
		return b
	}
	return a
}

// ComponentHealth is the probe result for a single component
type ComponentHealth struct {
	Status      HealthStatus           `json:"status"`
	Description string                 `json:"description,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// HealthReport is the aggregate health snapshot. Status is the worst
// component status.
type HealthReport struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
	Metrics    *JobMetrics                `json:"metrics,omitempty"`
}
