package models

// ExecutionContext is what a node sees while it executes: the trigger
// payload, workflow variables and the results of nodes that already finished.
type ExecutionContext struct {
	RunID           string                `json:"run_id"`
	WorkflowID      string                `json:"workflow_id"`
	WorkflowVersion int64                 `json:"workflow_version"`
	NodeID          string                `json:"node_id"`
	Attempt         int                   `json:"attempt"`
	Trigger         map[string]any        `json:"trigger,omitempty"`
	Variables       map[string]any        `json:"variables,omitempty"`
	NodeResults     map[string]NodeResult `json:"node_results,omitempty"`
	Metadata        map[string]any        `json:"metadata,omitempty"`
}

// IdempotencyKey identifies the side effect of the current node in the current run.
func (c *ExecutionContext) IdempotencyKey() string {
	return c.RunID + ":" + c.NodeID
}
