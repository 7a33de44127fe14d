// Package loop provides the node that iterates over an array.
package loop

import (
	"context"
	"fmt"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
	"github.com/dukex/conduit/pkg/template"
)

const (
	OutputPortSuccess = models.PortSuccess
	OutputPortError   = models.PortError
	InputPortMain     = models.PortMain

	// MaxIterations bounds every loop regardless of its configuration.
	MaxIterations = 1000

	defaultItems      = "{{ json .input.items }}"
	defaultExpression = "{{ json .item }}"
)

// LoopNode evaluates expression once per item, up to maxIterations items.
// Items past the limit are reported as truncated and never evaluated.
type LoopNode struct {
	id            string
	items         string
	expression    string
	maxIterations int
}

// NewLoopNode creates a new loop node.
func NewLoopNode(id string, config map[string]any) (*LoopNode, error) {
	maxIterations := protocol.IntConfig(config, "max_iterations", MaxIterations)
	if maxIterations <= 0 {
		return nil, fmt.Errorf("max_iterations must be positive, got %d", maxIterations)
	}

	return &LoopNode{
		id:            id,
		items:         protocol.StringConfig(config, "items", defaultItems),
		expression:    protocol.StringConfig(config, "expression", defaultExpression),
		maxIterations: min(maxIterations, MaxIterations),
	}, nil
}

// ID returns the node ID.
func (n *LoopNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *LoopNode) Type() string {
	return "loop"
}

// Execute iterates the items, stopping early when ctx is cancelled.
func (n *LoopNode) Execute(ctx context.Context, executionCtx models.ExecutionContext, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	data := template.Data(&executionCtx, protocol.InputData(inputs))

	items, err := template.RenderItems(n.items, data)
	if err != nil {
		return protocol.ErrorOutput(n.id, fmt.Sprintf("failed to resolve items: %v", err)), nil
	}

	limit := min(len(items), n.maxIterations)
	results := make([]any, 0, limit)

	for i := range limit {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		value, err := template.Render(n.expression, template.WithItem(data, items[i], i))
		if err != nil {
			return protocol.ErrorOutput(n.id, fmt.Sprintf("iteration %d failed: %v", i, err)), nil
		}

		results = append(results, value)
	}

	return protocol.Output(n.id, OutputPortSuccess, map[string]any{
		"results":       results,
		"count":         len(results),
		"truncated":     len(items) > limit,
		"skipped_items": len(items) - limit,
	}), nil
}

// InputPorts returns the input ports for the node.
func (n *LoopNode) InputPorts() []protocol.Port {
	return []protocol.Port{
		{Name: InputPortMain, Description: "Data holding the items to iterate"},
	}
}

// OutputPorts returns the output ports for the node.
func (n *LoopNode) OutputPorts() []protocol.Port {
	return []protocol.Port{
		{Name: OutputPortSuccess, Description: "Result of every iteration and whether the items were truncated"},
		{Name: OutputPortError, Description: "Error information when an iteration fails"},
	}
}
