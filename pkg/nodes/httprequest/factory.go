package httprequest

import (
	"context"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
)

// HTTPRequestNodeFactory creates HTTPRequestNode instances.
type HTTPRequestNodeFactory struct {
	deps protocol.Dependencies
}

// NewHTTPRequestNodeFactory creates a new HTTP request node factory.
func NewHTTPRequestNodeFactory(deps protocol.Dependencies) protocol.NodeFactory {
	return &HTTPRequestNodeFactory{deps: deps}
}

// Create creates a new HTTPRequestNode instance.
func (f *HTTPRequestNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewHTTPRequestNode(id, config, f.deps)
}

// ID returns the factory ID.
func (f *HTTPRequestNodeFactory) ID() string {
	return "http_request"
}

// Name returns the factory name.
func (f *HTTPRequestNodeFactory) Name() string {
	return "HTTP Request"
}

// Description returns the factory description.
func (f *HTTPRequestNodeFactory) Description() string {
	return "Calls an HTTP endpoint or a registered integration, with success and error output ports"
}

// Category returns the palette category.
func (f *HTTPRequestNodeFactory) Category() models.CategoryType {
	return models.CategoryTypeConnector
}

// Schema returns the JSON schema for HTTP request node configuration.
func (f *HTTPRequestNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"integration_id": map[string]any{
				"type":        "string",
				"description": "Registered integration to call. Its endpoint, auth, timeout, retry and rate limit apply",
			},
			"url": map[string]any{
				"type":        "string",
				"description": "HTTP URL to request when no integration is bound. Supports templating",
				"examples": []string{
					"https://api.example.com/users",
					"{{ .vars.api_host }}/orders/{{ .trigger.order_id }}",
				},
			},
			"path": map[string]any{
				"type":        "string",
				"description": "Path appended to the integration endpoint. Supports templating",
				"examples":    []string{"/orders/{{ .input.id }}"},
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method. Defaults to the integration method or GET",
				"enum":        []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD"},
			},
			"headers": map[string]any{
				"type":                 "object",
				"description":          "HTTP headers. Values support templating",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"body": map[string]any{
				"type":        []string{"string", "object", "array"},
				"description": "Request body. Strings are rendered as templates, objects are rendered field by field and sent as JSON",
			},
			"timeout": map[string]any{
				"type":        "number",
				"description": "Request timeout in seconds when no integration is bound",
				"default":     30,
				"minimum":     1,
				"maximum":     300,
			},
			"retries": map[string]any{
				"type":        "object",
				"description": "Retries after the first attempt when no integration is bound",
				"properties": map[string]any{
					"attempts": map[string]any{"type": "number", "minimum": 0, "maximum": 10},
					"delay":    map[string]any{"type": "number", "minimum": 0, "maximum": 30000},
				},
			},
		},
		"anyOf": []map[string]any{
			{"required": []string{"url"}},
			{"required": []string{"integration_id"}},
		},
	}
}
