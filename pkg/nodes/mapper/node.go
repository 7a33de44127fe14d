// Package mapper provides the field mapping node.
package mapper

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

// MapperNode builds an object whose fields are rendered from templates. When
// items is set the mapping is applied to every item.
type MapperNode struct {
	id       string
	mappings map[string]any
	items    string
}

// NewMapperNode creates a new mapper node.
func NewMapperNode(id string, config map[string]any) (*MapperNode, error) {
	mappings, ok := config["mappings"].(map[string]any)
	if !ok || len(mappings) == 0 {
		return nil, errors.New("missing required field 'mappings'")
	}

	return &MapperNode{
		id:       id,
		mappings: mappings,
		items:    protocol.StringConfig(config, "items", ""),
	}, nil
}

// ID returns the node ID.
func (n *MapperNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *MapperNode) Type() string {
	return "mapper"
}

// Execute renders the mappings.
func (n *MapperNode) Execute(_ context.Context, executionCtx models.ExecutionContext, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	data := template.Data(&executionCtx, protocol.InputData(inputs))

	if n.items == "" {
		mapped, err := n.apply(data)
		if err != nil {
			return protocol.ErrorOutput(n.id, err.Error()), nil
		}

		return protocol.Output(n.id, OutputPortSuccess, mapped), nil
	}

	items, err := template.RenderItems(n.items, data)
	if err != nil {
		return protocol.ErrorOutput(n.id, fmt.Sprintf("failed to resolve items: %v", err)), nil
	}

	out := make([]any, 0, len(items))

	for i, item := range items {
		mapped, err := n.apply(template.WithItem(data, item, i))
		if err != nil {
			return protocol.ErrorOutput(n.id, fmt.Sprintf("item %d: %v", i, err)), nil
		}

		out = append(out, mapped)
	}

	return protocol.Output(n.id, OutputPortSuccess, map[string]any{
		"items": out,
		"count": len(out),
	}), nil
}

func (n *MapperNode) apply(data map[string]any) (map[string]any, error) {
	rendered, err := template.RenderValue(n.mappings, data)
	if err != nil {
		return nil, fmt.Errorf("mapping failed: %w", err)
	}

	mapped, _ := rendered.(map[string]any)

	return mapped, nil
}

// InputPorts returns the input ports for the node.
func (n *MapperNode) InputPorts() []protocol.Port {
	return []protocol.Port{
		{Name: InputPortMain, Description: "Data the fields are mapped from"},
	}
}

// OutputPorts returns the output ports for the node.
func (n *MapperNode) OutputPorts() []protocol.Port {
	return []protocol.Port{
		{Name: OutputPortSuccess, Description: "Mapped object, or mapped items when items is set"},
		{Name: OutputPortError, Description: "Error information when a mapping fails"},
	}
}
