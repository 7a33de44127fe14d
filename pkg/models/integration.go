// Package models defines the domain models shared by the registry, engine, monitor and version store.
package models

import "time"

// AuthType selects how requests to an integration are authenticated.
type AuthType string

const (
	AuthTypeNone   AuthType = "none"
	AuthTypeBearer AuthType = "bearer"
	AuthTypeBasic  AuthType = "basic"
	AuthTypeAPIKey AuthType = "api_key"
)

// IntegrationStatus is the configured lifecycle status of an integration.
type IntegrationStatus string

const (
	IntegrationStatusActive   IntegrationStatus = "active"
	IntegrationStatusInactive IntegrationStatus = "inactive"
	IntegrationStatusError    IntegrationStatus = "error"
	IntegrationStatusTesting  IntegrationStatus = "testing"
)

// Environment is the deployment target of an integration.
type Environment string

const (
	EnvironmentDevelopment Environment = "development"
	EnvironmentStaging     Environment = "staging"
	EnvironmentProduction  Environment = "production"
)

// Auth holds the credentials of an integration. Which fields are required
// depends on Type.
type Auth struct {
	Type     AuthType `json:"type"                validate:"required,oneof=none bearer basic api_key"`
	Token    string   `json:"token,omitempty"`
	Username string   `json:"username,omitempty"`
	Password string   `json:"password,omitempty"`
	KeyName  string   `json:"key_name,omitempty"`
	KeyValue string   `json:"key_value,omitempty"`
	KeyIn    string   `json:"key_in,omitempty"    validate:"omitempty,oneof=header query"`
}

// RetryPolicy configures exponential backoff between attempts.
type RetryPolicy struct {
	Attempts          int `json:"attempts"                      validate:"gte=0,lte=10"`
	InitialIntervalMs int `json:"initial_interval_ms,omitempty" validate:"gte=0"`
	MaxIntervalMs     int `json:"max_interval_ms,omitempty"     validate:"gte=0"`
}

// RateLimit caps the number of outbound requests per window.
type RateLimit struct {
	Enabled  bool   `json:"enabled"`
	Requests int    `json:"requests" validate:"gte=0"`
	Window   string `json:"window"   validate:"omitempty,oneof=second minute hour"`
}

// Interval returns the window as a duration.
func (r RateLimit) Interval() time.Duration {
	switch r.Window {
	case "second":
		return time.Second
	case "hour":
		return time.Hour
	default:
		return time.Minute
	}
}

// Integration is an API endpoint definition. Every change to it is committed
// as a new Version; the struct itself is the snapshot stored in that version.
type Integration struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"                   validate:"required,min=1,max=255"`
	Description string            `json:"description"`
	Endpoint    string            `json:"endpoint"               validate:"required"`
	Method      string            `json:"method"                 validate:"required,oneof=GET POST PUT PATCH DELETE HEAD"`
	Auth        Auth              `json:"auth"`
	Headers     map[string]string `json:"headers,omitempty"`
	QueryParams map[string]string `json:"query_params,omitempty"`
	Timeout     int               `json:"timeout"                validate:"gte=1,lte=300"`
	Retry       RetryPolicy       `json:"retry"`
	RateLimit   RateLimit         `json:"rate_limit"`
	Environment Environment       `json:"environment"            validate:"required,oneof=development staging production"`
	Status      IntegrationStatus `json:"status"                 validate:"required,oneof=active inactive error testing"`
	Tags        []string          `json:"tags,omitempty"`
	Version     int64             `json:"version"`
	CreatedBy   string            `json:"created_by,omitempty"`
	UpdatedBy   string            `json:"updated_by,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// TimeoutDuration returns the per-request timeout.
func (i *Integration) TimeoutDuration() time.Duration {
	if i.Timeout <= 0 {
		return 30 * time.Second
	}

	return time.Duration(i.Timeout) * time.Second
}

// HasTag reports whether the integration carries tag.
func (i *Integration) HasTag(tag string) bool {
	for _, t := range i.Tags {
		if t == tag {
			return true
		}
	}

	return false
}
