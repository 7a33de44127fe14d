package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrRunSealed is returned when a finished run is mutated.
var ErrRunSealed = errors.New("execution run is sealed")

// RunStatus is the overall state of an execution run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSuccess   RunStatus = "success"
	RunStatusError     RunStatus = "error"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the run has finished.
func (s RunStatus) Terminal() bool {
	return s != RunStatusRunning
}

// NodeTrace records what happened to a single node during a run.
type NodeTrace struct {
	NodeID     string         `json:"node_id"`
	Type       string         `json:"type"`
	Status     NodeStatus     `json:"status"`
	Attempts   int            `json:"attempts"`
	Sequence   int            `json:"sequence"` // order in which the node reached a terminal state
	Ports      []string       `json:"ports,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

// ExecutionRun is one execution of a workflow version.
type ExecutionRun struct {
	ID              string         `json:"id"`
	WorkflowID      string         `json:"workflow_id"`
	WorkflowVersion int64          `json:"workflow_version"`
	TriggerType     string         `json:"trigger_type"`
	Trigger         map[string]any `json:"trigger,omitempty"`
	Status          RunStatus      `json:"status"`
	Trace           []*NodeTrace   `json:"trace"`
	Error           string         `json:"error,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      *time.Time     `json:"finished_at,omitempty"`
	DurationMs      int64          `json:"duration_ms"`
	Sealed          bool           `json:"sealed"`
}

// NodeTrace returns the trace entry of a node, or nil.
func (r *ExecutionRun) NodeTrace(nodeID string) *NodeTrace {
	for _, trace := range r.Trace {
		if trace.NodeID == nodeID {
			return trace
		}
	}

	return nil
}

// UpdateNode applies fn to the trace entry of nodeID. It fails with
// ErrRunSealed once the run is sealed.
func (r *ExecutionRun) UpdateNode(nodeID string, fn func(trace *NodeTrace)) error {
	if r.Sealed {
		return ErrRunSealed
	}

	trace := r.NodeTrace(nodeID)
	if trace == nil {
		return fmt.Errorf("node %s is not part of run %s", nodeID, r.ID)
	}

	fn(trace)

	return nil
}

// Seal finalizes the run. Once sealed, UpdateNode and Seal fail with ErrRunSealed.
func (r *ExecutionRun) Seal(status RunStatus, errMessage string, at time.Time) error {
	if r.Sealed {
		return ErrRunSealed
	}

	r.Status = status
	r.Error = errMessage
	r.FinishedAt = &at
	r.DurationMs = at.Sub(r.StartedAt).Milliseconds()
	r.Sealed = true

	return nil
}

// Clone returns a copy that shares no mutable trace entries with r.
func (r *ExecutionRun) Clone() *ExecutionRun {
	clone := *r
	clone.Trace = make([]*NodeTrace, len(r.Trace))

	for i, trace := range r.Trace {
		entry := *trace
		entry.Ports = append([]string(nil), trace.Ports...)
		clone.Trace[i] = &entry
	}

	return &clone
}
