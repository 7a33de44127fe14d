package models

import (
	"encoding/json"
	"time"
)

// EntityKind names the kind of versioned entity.
type EntityKind string

const (
	EntityKindIntegration EntityKind = "integration"
	EntityKindWorkflow    EntityKind = "workflow"
)

// Valid reports whether k is a known entity kind.
func (k EntityKind) Valid() bool {
	return k == EntityKindIntegration || k == EntityKindWorkflow
}

// Version is an immutable snapshot of an entity's configuration.
type Version struct {
	EntityKind EntityKind      `json:"entity_kind"`
	EntityID   string          `json:"entity_id"`
	Number     int64           `json:"number"`
	Author     string          `json:"author"`
	Note       string          `json:"note,omitempty"`
	RestoredOf int64           `json:"restored_of,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	Snapshot   json.RawMessage `json:"snapshot"`
}

// ChangeOp is the kind of a single difference between two snapshots.
type ChangeOp string

const (
	ChangeOpAdd     ChangeOp = "add"
	ChangeOpRemove  ChangeOp = "remove"
	ChangeOpReplace ChangeOp = "replace"
)

// Change is one field-level difference between two snapshots.
type Change struct {
	Op   ChangeOp `json:"op"`
	Path string   `json:"path"`
	From any      `json:"from,omitempty"`
	To   any      `json:"to,omitempty"`
}
