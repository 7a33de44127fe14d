package delay

import (
	"context"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
)

// DelayNodeFactory creates DelayNode instances.
type DelayNodeFactory struct{}

// NewDelayNodeFactory creates a new factory instance.
func NewDelayNodeFactory() protocol.NodeFactory {
	return &DelayNodeFactory{}
}

func (f *DelayNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewDelayNode(id, config)
}

func (f *DelayNodeFactory) ID() string {
	return "delay"
}

func (f *DelayNodeFactory) Name() string {
	return "Delay"
}

func (f *DelayNodeFactory) Description() string {
	return "Waits for a fixed duration before passing its input on"
}

func (f *DelayNodeFactory) Category() models.CategoryType {
	return models.CategoryTypeLogic
}

func (f *DelayNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"duration_ms": map[string]any{
				"type":        "integer",
				"description": "Delay in milliseconds",
				"minimum":     0,
				"maximum":     MaxDuration.Milliseconds(),
			},
		},
		"required":             []string{"duration_ms"},
		"additionalProperties": false,
	}
}
