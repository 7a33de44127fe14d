package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"    // Editable, runnable manually
	WorkflowStatusActive   WorkflowStatus = "active"   // Accepts webhook triggers
	WorkflowStatusInactive WorkflowStatus = "inactive" // Rejects webhook triggers
)

// FailurePolicy decides what happens to the rest of a run when a node fails.
type FailurePolicy string

const (
	// FailurePolicyPropagate delivers the error on every outgoing connection.
	FailurePolicyPropagate FailurePolicy = "propagate"
	// FailurePolicyAbortBranch only follows connections from the error port.
	FailurePolicyAbortBranch FailurePolicy = "abort_branch"
	// FailurePolicyAbortAll stops the run and skips every pending node.
	FailurePolicyAbortAll FailurePolicy = "abort_all"
)

// Position is the canvas location of a node. It is layout only.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Workflow is a DAG of nodes joined by port connections.
type Workflow struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"                      validate:"required,min=1,max=255"`
	Description    string              `json:"description"`
	Status         WorkflowStatus      `json:"status"                    validate:"required,oneof=draft active inactive"`
	Nodes          []*WorkflowNode     `json:"nodes"                     validate:"required,min=1,dive,required"`
	Connections    []*Connection       `json:"connections"               validate:"dive,required"`
	Variables      map[string]any      `json:"variables,omitempty"`
	FailurePolicy  FailurePolicy       `json:"failure_policy"            validate:"omitempty,oneof=propagate abort_branch abort_all"`
	MaxParallelism int                 `json:"max_parallelism,omitempty" validate:"gte=0,lte=64"`
	TriggerSchema  map[string]any      `json:"trigger_schema,omitempty"`
	Layout         map[string]Position `json:"layout,omitempty"`
	Version        int64               `json:"version"`
	CreatedBy      string              `json:"created_by,omitempty"`
	UpdatedBy      string              `json:"updated_by,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// Node returns the node with the given id, or nil.
func (w *Workflow) Node(id string) *WorkflowNode {
	for _, node := range w.Nodes {
		if node != nil && node.ID == id {
			return node
		}
	}

	return nil
}

// EffectiveFailurePolicy returns the configured policy or the default.
func (w *Workflow) EffectiveFailurePolicy() FailurePolicy {
	if w.FailurePolicy == "" {
		return FailurePolicyAbortBranch
	}

	return w.FailurePolicy
}
