package models

import "time"

// HealthState is the derived health of an integration.
type HealthState string

const (
	HealthStateHealthy HealthState = "healthy"
	HealthStateWarning HealthState = "warning"
	HealthStateError   HealthState = "error"
)

// Rank orders states by severity.
func (s HealthState) Rank() int {
	switch s {
	case HealthStateWarning:
		return 1
	case HealthStateError:
		return 2
	default:
		return 0
	}
}

// SampleSource tells where a sample came from.
type SampleSource string

const (
	SampleSourceProbe    SampleSource = "probe"
	SampleSourceTest     SampleSource = "test"
	SampleSourceWorkflow SampleSource = "workflow"
	SampleSourceExternal SampleSource = "external"
)

// Sample is one observed call to an integration.
type Sample struct {
	IntegrationID string       `json:"integration_id" validate:"required"`
	LatencyMs     int64        `json:"latency_ms"     validate:"gte=0"`
	StatusCode    int          `json:"status_code"`
	Error         string       `json:"error,omitempty"`
	Source        SampleSource `json:"source"`
	Timestamp     time.Time    `json:"timestamp"`
}

// Failed reports whether the sample counts as an error.
func (s Sample) Failed() bool {
	return s.Error != "" || s.StatusCode >= 500
}

// HealthSnapshot is an immutable view of an integration's health.
type HealthSnapshot struct {
	IntegrationID        string      `json:"integration_id"`
	State                HealthState `json:"state"`
	Reason               string      `json:"reason,omitempty"`
	Samples              int         `json:"samples"`
	ErrorRate            float64     `json:"error_rate"`
	P50Ms                int64       `json:"p50_ms"`
	P95Ms                int64       `json:"p95_ms"`
	ThroughputPerMinute  float64     `json:"throughput_per_minute"`
	ConsecutiveFailures  int         `json:"consecutive_failures"`
	ConsecutiveSuccesses int         `json:"consecutive_successes"`
	AlertID              string      `json:"alert_id,omitempty"`
	LastSampleAt         time.Time   `json:"last_sample_at"`
	ChangedAt            time.Time   `json:"changed_at"`
}
