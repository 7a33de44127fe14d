package notify

import (
	"context"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
)

// NotifyNodeFactory creates NotifyNode instances.
type NotifyNodeFactory struct {
	deps protocol.Dependencies
}

// NewNotifyNodeFactory creates a new factory instance.
func NewNotifyNodeFactory(deps protocol.Dependencies) protocol.NodeFactory {
	return &NotifyNodeFactory{deps: deps}
}

func (f *NotifyNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewNotifyNode(id, config, f.deps)
}

func (f *NotifyNodeFactory) ID() string {
	return "notify"
}

func (f *NotifyNodeFactory) Name() string {
	return "Notify"
}

func (f *NotifyNodeFactory) Description() string {
	return "Publishes a notification to the dashboard stream and optionally posts it to a webhook"
}

func (f *NotifyNodeFactory) Category() models.CategoryType {
	return models.CategoryTypeAction
}

func (f *NotifyNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Notification text. Supports templating",
				"examples":    []string{"Order {{ .trigger.order_id }} failed: {{ .input.error }}"},
			},
			"subject": map[string]any{
				"type":        "string",
				"description": "Short title. Supports templating",
			},
			"channel": map[string]any{
				"type":        "string",
				"description": "Free-form channel name consumers can route on",
				"default":     defaultChannel,
			},
			"webhook_url": map[string]any{
				"type":        "string",
				"format":      "uri",
				"description": "URL the notification is posted to as JSON",
			},
			"payload": map[string]any{
				"type":        "object",
				"description": "Extra fields rendered against the run data",
			},
		},
		"required":             []string{"message"},
		"additionalProperties": false,
	}
}
