// Package log provides logging node factory for registry integration.
package log

import (
	"context"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
)

// LogNodeFactory creates LogNode instances.
type LogNodeFactory struct {
	deps protocol.Dependencies
}

// Create creates a new LogNode instance.
func (f *LogNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewLogNode(id, config, f.deps)
}

// ID returns the factory ID.
func (f *LogNodeFactory) ID() string {
	return "log"
}

// Name returns the factory name.
func (f *LogNodeFactory) Name() string {
	return "Log"
}

// Description returns the factory description.
func (f *LogNodeFactory) Description() string {
	return "Logs messages at different levels (debug, info, warn, error) with template support for dynamic content"
}

// Category returns the palette category.
func (f *LogNodeFactory) Category() models.CategoryType {
	return models.CategoryTypeAction
}

// Schema returns the JSON schema for Log node configuration.
func (f *LogNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message to log. Supports templating with execution context data.",
				"examples": []string{
					"Processing user: {{ .vars.user_name }}",
					"Run {{ .run.id }} of workflow {{ .run.workflow_id }} started",
					"API call result: {{ .nodes.api_call.status_code }}",
				},
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level for the message",
				"enum":        []string{"debug", "info", "warn", "error"},
				"default":     "info",
			},
		},
		"required": []string{"message"},
		"examples": []map[string]any{
			{
				"message": "API call failed: {{ .input.error }}",
				"level":   "error",
			},
			{
				"message": "Processing {{ len .trigger.items }} items",
				"level":   "debug",
			},
		},
	}
}

// NewLogNodeFactory creates a new factory instance.
func NewLogNodeFactory(deps protocol.Dependencies) protocol.NodeFactory {
	return &LogNodeFactory{deps: deps}
}
