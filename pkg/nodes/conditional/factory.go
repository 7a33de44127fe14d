package conditional

import (
	"context"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
)

// ConditionalNodeFactory creates ConditionalNode instances.
type ConditionalNodeFactory struct{}

// NewConditionalNodeFactory creates a new factory instance.
func NewConditionalNodeFactory() protocol.NodeFactory {
	return &ConditionalNodeFactory{}
}

// Create creates a new ConditionalNode instance.
func (f *ConditionalNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewConditionalNode(id, config)
}

// ID returns the factory ID.
func (f *ConditionalNodeFactory) ID() string {
	return "conditional"
}

// Name returns the factory name.
func (f *ConditionalNodeFactory) Name() string {
	return "Conditional"
}

// Description returns the factory description.
func (f *ConditionalNodeFactory) Description() string {
	return "Evaluates a condition and routes execution to the true or false branch."
}

// Category returns the palette category.
func (f *ConditionalNodeFactory) Category() models.CategoryType {
	return models.CategoryTypeLogic
}

// Schema returns the JSON schema for Conditional node configuration.
func (f *ConditionalNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"condition": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Template rendering to a boolean. Non-empty strings and non-zero numbers are true.",
				"examples": []string{
					`{{ eq .vars.status "active" }}`,
					`{{ eq .nodes.api_call.status_code 200.0 }}`,
					`{{ gt .input.count 10.0 }}`,
					`true`,
				},
			},
		},
		"required":             []string{"condition"},
		"additionalProperties": false,
	}
}
