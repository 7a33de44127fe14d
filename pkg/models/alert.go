package models

import "time"

// AlertSeverity ranks alerts in the dashboard.
type AlertSeverity string

const (
	AlertSeverityCritical AlertSeverity = "critical"
	AlertSeverityHigh     AlertSeverity = "high"
	AlertSeverityMedium   AlertSeverity = "medium"
	AlertSeverityLow      AlertSeverity = "low"
)

// AlertStatus is the triage status of an alert.
type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "active"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
)

// Alert covers one health breach of an integration, from the moment it leaves
// healthy until it recovers.
type Alert struct {
	ID             string        `json:"id"`
	IntegrationID  string        `json:"integration_id"`
	Endpoint       string        `json:"endpoint,omitempty"`
	Severity       AlertSeverity `json:"severity"`
	Status         AlertStatus   `json:"status"`
	State          HealthState   `json:"state"`
	Message        string        `json:"message"`
	Revision       int64         `json:"revision"`
	FirstSeen      time.Time     `json:"first_seen"`
	LastSeen       time.Time     `json:"last_seen"`
	AcknowledgedAt *time.Time    `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string        `json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time    `json:"resolved_at,omitempty"`
	AutoResolved   bool          `json:"auto_resolved"`
	// Generation counts stored writes. Saves compare it to detect lost updates.
	Generation int64 `json:"generation"`
}

// SeverityFor maps a breach state to an alert severity.
func SeverityFor(state HealthState, outage bool) AlertSeverity {
	switch {
	case state == HealthStateError && outage:
		return AlertSeverityCritical
	case state == HealthStateError:
		return AlertSeverityHigh
	case state == HealthStateWarning:
		return AlertSeverityMedium
	default:
		return AlertSeverityLow
	}
}
