package filter

import (
	"context"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
)

// FilterNodeFactory creates FilterNode instances.
type FilterNodeFactory struct{}

// NewFilterNodeFactory creates a new factory instance.
func NewFilterNodeFactory() protocol.NodeFactory {
	return &FilterNodeFactory{}
}

func (f *FilterNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewFilterNode(id, config)
}

func (f *FilterNodeFactory) ID() string {
	return "filter"
}

func (f *FilterNodeFactory) Name() string {
	return "Filter"
}

func (f *FilterNodeFactory) Description() string {
	return "Keeps the items of an array that match a condition"
}

func (f *FilterNodeFactory) Category() models.CategoryType {
	return models.CategoryTypeTransformer
}

func (f *FilterNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"items": map[string]any{
				"type":        "string",
				"description": "Template rendering to the array to filter",
				"default":     defaultItems,
			},
			"condition": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Template evaluated per item; the item is available as .item and its position as .index",
				"examples":    []string{`{{ eq .item.status "paid" }}`, `{{ gt .item.total 100.0 }}`},
			},
		},
		"required":             []string{"condition"},
		"additionalProperties": false,
	}
}
