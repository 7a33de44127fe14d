// Package conditional provides the branching node. It evaluates a boolean
// template and emits on exactly one of its true or false ports.
package conditional

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
	"github.com/dukex/conduit/pkg/template"
)

const (
	OutputPortTrue  = "true"
	OutputPortFalse = "false"
	OutputPortError = models.PortError
	InputPortMain   = models.PortMain
)

// ConditionalNode routes execution to the true or false branch.
type ConditionalNode struct {
	id        string
	condition string
}

// NewConditionalNode creates a new conditional branching node.
func NewConditionalNode(id string, config map[string]any) (*ConditionalNode, error) {
	condition, ok := config["condition"].(string)
	if !ok || condition == "" {
		return nil, errors.New("missing required field 'condition'")
	}

	return &ConditionalNode{
		id:        id,
		condition: condition,
	}, nil
}

// ID returns the node ID.
func (n *ConditionalNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *ConditionalNode) Type() string {
	return "conditional"
}

// Execute evaluates the condition and routes to the true or false port.
// The input data is forwarded on the selected port.
func (n *ConditionalNode) Execute(_ context.Context, executionCtx models.ExecutionContext, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	result, err := template.RenderWithContext(n.condition, &executionCtx, protocol.InputData(inputs))
	if err != nil {
		return protocol.ErrorOutput(n.id, fmt.Sprintf("condition evaluation failed: %v", err)), nil
	}

	isTrue := template.Truthy(result)

	port := OutputPortFalse
	if isTrue {
		port = OutputPortTrue
	}

	return protocol.Output(n.id, port, map[string]any{
		"condition_result": isTrue,
		"evaluated_value":  result,
		"data":             protocol.MainInput(inputs),
	}), nil
}

// InputPorts returns the input ports for the node.
func (n *ConditionalNode) InputPorts() []protocol.Port {
	return []protocol.Port{
		{Name: InputPortMain, Description: "Data the condition is evaluated against"},
	}
}

// OutputPorts returns the output ports for the node.
func (n *ConditionalNode) OutputPorts() []protocol.Port {
	return []protocol.Port{
		{Name: OutputPortTrue, Description: "Execution path when the condition is true"},
		{Name: OutputPortFalse, Description: "Execution path when the condition is false"},
		{Name: OutputPortError, Description: "Error information when evaluation fails"},
	}
}
