// Package transform provides the template based data transformation node.
package transform

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
)

// TransformNode renders an expression against the run data.
type TransformNode struct {
	id         string
	expression string
}

// NewTransformNode creates a new data transformation node.
func NewTransformNode(id string, config map[string]any) (*TransformNode, error) {
	expression, ok := config["expression"].(string)
	if !ok || expression == "" {
		return nil, errors.New("missing required field 'expression'")
	}

	return &TransformNode{
		id:         id,
		expression: expression,
	}, nil
}

// ID returns the node ID.
func (n *TransformNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *TransformNode) Type() string {
	return "transform"
}

// Execute renders the expression and emits the value under "result".
func (n *TransformNode) Execute(_ context.Context, executionCtx models.ExecutionContext, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	result, err := template.RenderWithContext(n.expression, &executionCtx, protocol.InputData(inputs))
	if err != nil {
		return protocol.ErrorOutput(n.id, fmt.Sprintf("transformation failed: %v", err)), nil
	}

	return protocol.Output(n.id, OutputPortSuccess, map[string]any{
		"result": result,
	}), nil
}

// InputPorts returns the input ports for the node.
func (n *TransformNode) InputPorts() []protocol.Port {
	return []protocol.Port{
		{Name: InputPortMain, Description: "Main input for triggering the transformation"},
	}
}

// OutputPorts returns the output ports for the node.
func (n *TransformNode) OutputPorts() []protocol.Port {
	return []protocol.Port{
		{Name: OutputPortSuccess, Description: "Transformed data result"},
		{Name: OutputPortError, Description: "Error information when transformation fails"},
	}
}
