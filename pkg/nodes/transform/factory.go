package transform

import (
	"context"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
)

// TransformNodeFactory creates TransformNode instances.
type TransformNodeFactory struct{}

// NewTransformNodeFactory creates a new factory instance.
func NewTransformNodeFactory() protocol.NodeFactory {
	return &TransformNodeFactory{}
}

// Create creates a new TransformNode instance.
func (f *TransformNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewTransformNode(id, config)
}

// ID returns the factory ID.
func (f *TransformNodeFactory) ID() string {
	return "transform"
}

// Name returns the factory name.
func (f *TransformNodeFactory) Name() string {
	return "Transform"
}

// Description returns the factory description.
func (f *TransformNodeFactory) Description() string {
	return "Transforms data using Go templates with access to the trigger, variables and node results"
}

// Category returns the palette category.
func (f *TransformNodeFactory) Category() models.CategoryType {
	return models.CategoryTypeTransformer
}

// Schema returns the JSON schema for Transform node configuration.
func (f *TransformNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Go template. JSON, number and boolean output is decoded.",
				"examples": []string{
					`{"user_id": "{{ .vars.user_id }}", "status": "active"}`,
					`{{ .nodes.api_call.json.name | upper }}`,
					`Processing {{ len .trigger.items }} items`,
				},
			},
		},
		"required":             []string{"expression"},
		"additionalProperties": false,
	}
}
