package webhook

import (
	"context"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
)

// WebhookNodeFactory creates WebhookNode instances.
type WebhookNodeFactory struct{}

// NewWebhookNodeFactory creates a new webhook node factory.
func NewWebhookNodeFactory() protocol.NodeFactory {
	return &WebhookNodeFactory{}
}

// Create creates a new WebhookNode instance.
func (f *WebhookNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewWebhookNode(id, config)
}

// ID returns the factory ID.
func (f *WebhookNodeFactory) ID() string {
	return "webhook"
}

// Name returns the factory name.
func (f *WebhookNodeFactory) Name() string {
	return "Webhook Trigger"
}

// Description returns the factory description.
func (f *WebhookNodeFactory) Description() string {
	return "Receives webhook events from external sources and starts workflow execution"
}

// Category returns the palette category.
func (f *WebhookNodeFactory) Category() models.CategoryType {
	return models.CategoryTypeConnector
}

// Schema returns the JSON schema for webhook node configuration.
func (f *WebhookNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method the webhook accepts",
				"enum":        []string{"POST", "PUT", "PATCH"},
				"default":     "POST",
			},
			"headers": map[string]any{
				"type":                 "object",
				"description":          "Header values every webhook request must carry, such as a shared secret",
				"additionalProperties": map[string]any{"type": "string"},
				"examples": []map[string]any{
					{"X-Webhook-Secret": "s3cr3t"},
				},
			},
		},
		"additionalProperties": false,
	}
}
