// Package validator provides the node that checks data against a JSON schema.
package validator

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
	"github.com/dukex/conduit/pkg/schema"
	"github.com/dukex/conduit/pkg/template"
)

const (
	OutputPortValid   = "valid"
	OutputPortInvalid = "invalid"
	OutputPortError   = models.PortError
	InputPortMain     = models.PortMain
)

// ValidatorNode routes its input to valid or invalid.
type ValidatorNode struct {
	id     string
	schema *schema.Schema
	target string
}

// NewValidatorNode creates a new validator node. The schema is compiled once.
func NewValidatorNode(id string, config map[string]any) (*ValidatorNode, error) {
	document, ok := config["schema"].(map[string]any)
	if !ok {
		return nil, errors.New("missing required field 'schema'")
	}

	compiled, err := schema.Compile(document)
	if err != nil {
		return nil, err
	}

	return &ValidatorNode{
		id:     id,
		schema: compiled,
		target: protocol.StringConfig(config, "target", ""),
	}, nil
}

// ID returns the node ID.
func (n *ValidatorNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *ValidatorNode) Type() string {
	return "validator"
}

// Execute validates the main input, or the rendered target when configured.
func (n *ValidatorNode) Execute(_ context.Context, executionCtx models.ExecutionContext, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	var document any = protocol.MainInput(inputs)

	if n.target != "" {
		rendered, err := template.RenderWithContext(n.target, &executionCtx, protocol.InputData(inputs))
		if err != nil {
			return protocol.ErrorOutput(n.id, fmt.Sprintf("failed to render target: %v", err)), nil
		}

		document = rendered
	}

	err := n.schema.Validate(document)

	var violationErr *schema.ViolationError

	switch {
	case err == nil:
		return protocol.Output(n.id, OutputPortValid, map[string]any{"data": document}), nil
	case errors.As(err, &violationErr):
		return protocol.Output(n.id, OutputPortInvalid, map[string]any{
			"data":   document,
			"errors": violationErr.Violations,
		}), nil
	default:
		return protocol.ErrorOutput(n.id, err.Error()), nil
	}
}

// InputPorts returns the input ports for the node.
func (n *ValidatorNode) InputPorts() []protocol.Port {
	return []protocol.Port{
		{Name: InputPortMain, Description: "Data to validate"},
	}
}

// OutputPorts returns the output ports for the node.
func (n *ValidatorNode) OutputPorts() []protocol.Port {
	return []protocol.Port{
		{Name: OutputPortValid, Description: "Data matching the schema"},
		{Name: OutputPortInvalid, Description: "Data with the list of schema violations"},
		{Name: OutputPortError, Description: "Error information when validation cannot run"},
	}
}
