package loop

import (
	"context"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
)

// LoopNodeFactory creates LoopNode instances.
type LoopNodeFactory struct{}

// NewLoopNodeFactory creates a new factory instance.
func NewLoopNodeFactory() protocol.NodeFactory {
	return &LoopNodeFactory{}
}

func (f *LoopNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewLoopNode(id, config)
}

func (f *LoopNodeFactory) ID() string {
	return "loop"
}

func (f *LoopNodeFactory) Name() string {
	return "Loop"
}

func (f *LoopNodeFactory) Description() string {
	return "Evaluates an expression for every item of an array, bounded by a maximum number of iterations"
}

func (f *LoopNodeFactory) Category() models.CategoryType {
	return models.CategoryTypeLogic
}

func (f *LoopNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"items": map[string]any{
				"type":        "string",
				"description": "Template rendering to the array to iterate",
				"default":     defaultItems,
			},
			"expression": map[string]any{
				"type":        "string",
				"description": "Template evaluated per item with .item and .index",
				"default":     defaultExpression,
				"examples":    []string{`{"sku": "{{ .item.sku }}", "position": {{ .index }}}`},
			},
			"max_iterations": map[string]any{
				"type":        "integer",
				"description": "Items beyond this limit are reported as truncated",
				"minimum":     1,
				"maximum":     MaxIterations,
				"default":     MaxIterations,
			},
		},
		"additionalProperties": false,
	}
}
