// Package filter provides the node that keeps the items of an array that
// match a condition.
package filter

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
	"github.com/dukex/conduit/pkg/template"
)

const (
	OutputPortSuccess = models.PortSuccess
	OutputPortError   = models.PortError
	InputPortMain     = models.PortMain

	defaultItems = "{{ json .input.items }}"
)

// FilterNode evaluates condition for every item, exposing it as .item.
type FilterNode struct {
	id        string
	items     string
	condition string
}

// NewFilterNode creates a new filter node.
func NewFilterNode(id string, config map[string]any) (*FilterNode, error) {
	condition := protocol.StringConfig(config, "condition", "")
	if condition == "" {
		return nil, errors.New("missing required field 'condition'")
	}

	return &FilterNode{
		id:        id,
		items:     protocol.StringConfig(config, "items", defaultItems),
		condition: condition,
	}, nil
}

// ID returns the node ID.
func (n *FilterNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *FilterNode) Type() string {
	return "filter"
}

// Execute keeps the items for which the condition is truthy.
func (n *FilterNode) Execute(_ context.Context, executionCtx models.ExecutionContext, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	data := template.Data(&executionCtx, protocol.InputData(inputs))

	items, err := template.RenderItems(n.items, data)
	if err != nil {
		return protocol.ErrorOutput(n.id, fmt.Sprintf("failed to resolve items: %v", err)), nil
	}

	kept := make([]any, 0, len(items))

	for i, item := range items {
		value, err := template.Render(n.condition, template.WithItem(data, item, i))
		if err != nil {
			return protocol.ErrorOutput(n.id, fmt.Sprintf("condition failed on item %d: %v", i, err)), nil
		}

		if template.Truthy(value) {
			kept = append(kept, item)
		}
	}

	return protocol.Output(n.id, OutputPortSuccess, map[string]any{
		"items":   kept,
		"count":   len(kept),
		"dropped": len(items) - len(kept),
	}), nil
}

// InputPorts returns the input ports for the node.
func (n *FilterNode) InputPorts() []protocol.Port {
	return []protocol.Port{
		{Name: InputPortMain, Description: "Data holding the items to filter"},
	}
}

// OutputPorts returns the output ports for the node.
func (n *FilterNode) OutputPorts() []protocol.Port {
	return []protocol.Port{
		{Name: OutputPortSuccess, Description: "Items matching the condition"},
		{Name: OutputPortError, Description: "Error information when filtering fails"},
	}
}
