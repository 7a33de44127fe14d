// Package merge provides merge node factory for registry integration.
package merge

import (
	"context"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
)

type MergeNodeFactory struct{}

func (f *MergeNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewMergeNode(id, config)
}

func (f *MergeNodeFactory) ID() string {
	return "merge"
}

func (f *MergeNodeFactory) Name() string {
	return "Merge"
}

func (f *MergeNodeFactory) Description() string {
	return "Joins parallel branches, for example several integration calls, into one result"
}

func (f *MergeNodeFactory) Category() models.CategoryType {
	return models.CategoryTypeLogic
}

func (f *MergeNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"input_ports": map[string]any{
				"type":        "array",
				"description": "Ports the incoming branches connect to, in priority order",
				"items":       map[string]any{"type": "string", "minLength": 1},
				"minItems":    2,
				"uniqueItems": true,
			},
			"merge_mode": map[string]any{
				"type":        "string",
				"description": "all: every port must receive data; any: join the active branches; first: keep the highest priority active branch",
				"enum":        []string{MergeModeAll, MergeModeAny, MergeModeFirst},
				"default":     MergeModeAll,
			},
			"combine": map[string]any{
				"type":        "string",
				"description": "by_port keeps each branch under its port name; flatten merges the branch objects into one, higher priority ports winning on key clashes",
				"enum":        []string{CombineByPort, CombineFlatten},
				"default":     CombineByPort,
			},
		},
		"required":             []string{"input_ports"},
		"additionalProperties": false,
		"examples": []map[string]any{
			{
				"input_ports": []string{"customer", "orders"},
				"merge_mode":  MergeModeAll,
				"combine":     CombineFlatten,
			},
			{
				"input_ports": []string{"primary_api", "fallback_api"},
				"merge_mode":  MergeModeFirst,
			},
		},
	}
}

// NewMergeNodeFactory creates a new factory instance.
func NewMergeNodeFactory() protocol.NodeFactory {
	return &MergeNodeFactory{}
}
