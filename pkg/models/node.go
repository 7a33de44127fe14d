package models

import (
	"time"
)

// CategoryType represents the palette category of a node.
type CategoryType string

const (
	CategoryTypeConnector   CategoryType = "connector"   // webhook, http_request
	CategoryTypeTransformer CategoryType = "transformer" // transform, filter, mapper, validator
	CategoryTypeLogic       CategoryType = "logic"       // conditional, loop, delay, merge
	CategoryTypeAction      CategoryType = "action"      // log, notify
)

// Connection connects two ports directly.
type Connection struct {
	ID         string `json:"id"`
	SourcePort string `json:"source_port" validate:"required"` // "{node_id}:{port_name}"
	TargetPort string `json:"target_port" validate:"required"` // "{node_id}:{port_name}"
}

// SourceNodeID returns the node id of the source port.
func (c *Connection) SourceNodeID() string {
	nodeID, _, _ := ParsePortID(c.SourcePort)

	return nodeID
}

// TargetNodeID returns the node id of the target port.
func (c *Connection) TargetNodeID() string {
	nodeID, _, _ := ParsePortID(c.TargetPort)

	return nodeID
}

// WorkflowNode represents a node instance in a workflow.
type WorkflowNode struct {
	ID        string         `json:"id"                   validate:"required"`
	Type      string         `json:"type"                 validate:"required"`
	Category  CategoryType   `json:"category"             validate:"omitempty,oneof=connector transformer logic action"`
	Name      string         `json:"name"                 validate:"required,min=1"`
	Config    map[string]any `json:"config"`
	TimeoutMs int            `json:"timeout_ms,omitempty" validate:"gte=0"`
	Retry     *RetryPolicy   `json:"retry,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Timeout returns the per-attempt timeout of the node.
func (n *WorkflowNode) Timeout(fallback time.Duration) time.Duration {
	if n.TimeoutMs <= 0 {
		return fallback
	}

	return time.Duration(n.TimeoutMs) * time.Millisecond
}

// NodeResult is the data a node emits on one output port.
type NodeResult struct {
	NodeID    string         `json:"node_id"`
	Port      string         `json:"port,omitempty"`
	Data      map[string]any `json:"data"`
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Error     string         `json:"error,omitempty"`
}

// NodeStatus defines the possible states of a node inside a run.
type NodeStatus string

const (
	NodeStatusPending NodeStatus = "pending"
	NodeStatusRunning NodeStatus = "running"
	NodeStatusSuccess NodeStatus = "success"
	NodeStatusError   NodeStatus = "error"
	NodeStatusSkipped NodeStatus = "skipped"
)

// Terminal reports whether the status is final.
func (s NodeStatus) Terminal() bool {
	return s == NodeStatusSuccess || s == NodeStatusError || s == NodeStatusSkipped
}
