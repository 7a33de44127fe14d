// Package persistence provides the storage abstraction for versions, alerts and execution runs.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/conduit/pkg/models"
)

type Persistence interface {
	VersionRepository() VersionRepository
	AlertRepository() AlertRepository
	RunRepository() RunRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// EntityHead points at the current version of a versioned entity.
type EntityHead struct {
	Kind      models.EntityKind `json:"kind"`
	EntityID  string            `json:"entity_id"`
	Head      int64             `json:"head"`
	Deleted   bool              `json:"deleted"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// VersionRepository is an append-only log of versions keyed by entity and
// version number. Append is the only way to move the head of an entity.
type VersionRepository interface {
	// Append stores version as the new head if the current head equals
	// expectedHead. An expectedHead of 0 creates the entity.
	Append(ctx context.Context, version *models.Version, expectedHead int64) error
	Head(ctx context.Context, kind models.EntityKind, entityID string) (*EntityHead, error)
	Get(ctx context.Context, kind models.EntityKind, entityID string, number int64) (*models.Version, error)
	List(ctx context.Context, kind models.EntityKind, entityID string) ([]*models.Version, error)
	ListHeads(ctx context.Context, kind models.EntityKind) ([]*EntityHead, error)
	MarkDeleted(ctx context.Context, kind models.EntityKind, entityID string, expectedHead int64) error
}

// AlertFilter narrows an alert listing.
type AlertFilter struct {
	IntegrationID string
	Status        models.AlertStatus
	Severity      models.AlertSeverity
	Limit         int
}

type AlertRepository interface {
	// Save stores alert if the stored generation still equals
	// expectedGeneration (0 when the alert is new) and bumps it. Otherwise it
	// returns ErrAlertConflict.
	Save(ctx context.Context, alert *models.Alert, expectedGeneration int64) error
	GetByID(ctx context.Context, id string) (*models.Alert, error)
	List(ctx context.Context, filter AlertFilter) ([]*models.Alert, error)
}

type RunRepository interface {
	Save(ctx context.Context, run *models.ExecutionRun) error
	GetByID(ctx context.Context, id string) (*models.ExecutionRun, error)
	ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.ExecutionRun, error)
}
