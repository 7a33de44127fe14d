package validator

import (
	"context"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
)

// ValidatorNodeFactory creates ValidatorNode instances.
type ValidatorNodeFactory struct{}

// NewValidatorNodeFactory creates a new factory instance.
func NewValidatorNodeFactory() protocol.NodeFactory {
	return &ValidatorNodeFactory{}
}

func (f *ValidatorNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewValidatorNode(id, config)
}

func (f *ValidatorNodeFactory) ID() string {
	return "validator"
}

func (f *ValidatorNodeFactory) Name() string {
	return "Schema Validator"
}

func (f *ValidatorNodeFactory) Description() string {
	return "Checks data against a JSON schema and routes it to the valid or invalid port"
}

func (f *ValidatorNodeFactory) Category() models.CategoryType {
	return models.CategoryTypeTransformer
}

func (f *ValidatorNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"schema": map[string]any{
				"type":        "object",
				"description": "JSON schema the data must satisfy",
				"examples": []map[string]any{
					{"type": "object", "required": []string{"email"}},
				},
			},
			"target": map[string]any{
				"type":        "string",
				"description": "Template selecting the value to validate. Defaults to the main input",
				"examples":    []string{"{{ json .nodes.fetch.json }}"},
			},
		},
		"required":             []string{"schema"},
		"additionalProperties": false,
	}
}
