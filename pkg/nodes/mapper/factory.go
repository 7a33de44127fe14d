package mapper

import (
	"context"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
)

// MapperNodeFactory creates MapperNode instances.
type MapperNodeFactory struct{}

// NewMapperNodeFactory creates a new factory instance.
func NewMapperNodeFactory() protocol.NodeFactory {
	return &MapperNodeFactory{}
}

func (f *MapperNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewMapperNode(id, config)
}

func (f *MapperNodeFactory) ID() string {
	return "mapper"
}

func (f *MapperNodeFactory) Name() string {
	return "Field Mapper"
}

func (f *MapperNodeFactory) Description() string {
	return "Maps fields from the input into a new object, optionally for every item of an array"
}

func (f *MapperNodeFactory) Category() models.CategoryType {
	return models.CategoryTypeTransformer
}

func (f *MapperNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"mappings": map[string]any{
				"type":          "object",
				"minProperties": 1,
				"description":   "Target field to template. Nested objects and arrays are rendered recursively",
				"examples": []map[string]any{
					{"customer": "{{ .input.user.name }}", "total": "{{ .input.amount }}"},
				},
			},
			"items": map[string]any{
				"type":        "string",
				"description": "Template rendering to an array; mappings then apply per .item",
			},
		},
		"required":             []string{"mappings"},
		"additionalProperties": false,
	}
}
