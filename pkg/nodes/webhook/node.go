// Package webhook provides the entry node of workflows started by webhook calls.
package webhook

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
)

const (
	InputPortMain     = models.PortMain
	OutputPortSuccess = models.PortSuccess
	OutputPortError   = models.PortError

	// MetadataKey holds the request details the webhook handler stores in
	// the run metadata: method, headers and query.
	MetadataKey = "webhook"
)

// WebhookConfig defines the configuration for webhook nodes.
type WebhookConfig struct {
	Method  string
	Headers map[string]string
}

// WebhookNode forwards the trigger payload. Webhook requests must use the
// configured method and carry every configured header value; runs started
// from the API carry no request metadata and are not checked.
type WebhookNode struct {
	id     string
	config WebhookConfig
}

// NewWebhookNode creates a new webhook node.
func NewWebhookNode(id string, config map[string]any) (*WebhookNode, error) {
	webhookConfig := WebhookConfig{
		Method:  strings.ToUpper(protocol.StringConfig(config, "method", http.MethodPost)),
		Headers: protocol.StringMapConfig(config, "headers"),
	}

	switch webhookConfig.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return nil, fmt.Errorf("method must be one of: POST, PUT, PATCH, got %s", webhookConfig.Method)
	}

	return &WebhookNode{
		id:     id,
		config: webhookConfig,
	}, nil
}

// ID returns the node ID.
func (n *WebhookNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *WebhookNode) Type() string {
	return "webhook"
}

// Execute checks the request and emits the trigger payload.
func (n *WebhookNode) Execute(_ context.Context, executionCtx models.ExecutionContext, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	if request, ok := executionCtx.Metadata[MetadataKey].(map[string]any); ok {
		if err := n.check(request); err != nil {
			return protocol.ErrorOutput(n.id, err.Error()), nil
		}
	}

	payload := protocol.MainInput(inputs)
	if payload == nil {
		payload = executionCtx.Trigger
	}

	data := make(map[string]any, len(payload))
	for key, value := range payload {
		data[key] = value
	}

	return protocol.Output(n.id, OutputPortSuccess, data), nil
}

func (n *WebhookNode) check(request map[string]any) error {
	if method, _ := request["method"].(string); method != "" && !strings.EqualFold(method, n.config.Method) {
		return fmt.Errorf("webhook expects %s, got %s", n.config.Method, method)
	}

	headers := protocol.StringMapConfig(request, "headers")

	for name, want := range n.config.Headers {
		got := headerValue(headers, name)
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			return fmt.Errorf("header %s does not match", name)
		}
	}

	return nil
}

func headerValue(headers map[string]string, name string) string {
	for key, value := range headers {
		if strings.EqualFold(key, name) {
			return value
		}
	}

	return ""
}

// InputPorts returns the input ports for the node.
func (n *WebhookNode) InputPorts() []protocol.Port {
	return []protocol.Port{
		{Name: InputPortMain, Description: "Webhook payload delivered as the run trigger"},
	}
}

// OutputPorts returns the output ports for the node.
func (n *WebhookNode) OutputPorts() []protocol.Port {
	return []protocol.Port{
		{Name: OutputPortSuccess, Description: "The webhook payload"},
		{Name: OutputPortError, Description: "Rejected webhook request"},
	}
}
