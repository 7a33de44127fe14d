// Package notify provides the node that sends notifications from a workflow.
// A notification is published on the event bus and, when a webhook URL is
// configured, posted to it as JSON.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dukex/conduit/pkg/connector"
	"github.com/dukex/conduit/pkg/events"
	"github.com/dukex/conduit/pkg/idempotency"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
	"github.com/dukex/conduit/pkg/template"
)

const (
	OutputPortSuccess = models.PortSuccess
	OutputPortError   = models.PortError
	InputPortMain     = models.PortMain

	defaultChannel = "dashboard"
)

// NotifyNode sends one notification per run.
type NotifyNode struct {
	id         string
	channel    string
	subject    string
	message    string
	webhookURL string
	payload    any
	deps       protocol.Dependencies
}

// NewNotifyNode creates a new notify node.
func NewNotifyNode(id string, config map[string]any, deps protocol.Dependencies) (*NotifyNode, error) {
	message := protocol.StringConfig(config, "message", "")
	if message == "" {
		return nil, errors.New("missing required field 'message'")
	}

	node := &NotifyNode{
		id:         id,
		channel:    protocol.StringConfig(config, "channel", defaultChannel),
		subject:    protocol.StringConfig(config, "subject", ""),
		message:    message,
		webhookURL: protocol.StringConfig(config, "webhook_url", ""),
		payload:    config["payload"],
		deps:       deps,
	}

	if node.webhookURL != "" && deps.Connector == nil {
		return nil, errors.New("notify node with webhook_url requires a connector")
	}

	if node.webhookURL == "" && deps.Publisher == nil {
		return nil, errors.New("notify node requires an event publisher or a webhook_url")
	}

	return node, nil
}

// ID returns the node ID.
func (n *NotifyNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *NotifyNode) Type() string {
	return "notify"
}

// Execute renders the notification and delivers it once per run.
func (n *NotifyNode) Execute(ctx context.Context, executionCtx models.ExecutionContext, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	data := template.Data(&executionCtx, protocol.InputData(inputs))

	notification, err := n.render(executionCtx, data)
	if err != nil {
		return protocol.ErrorOutput(n.id, err.Error()), nil
	}

	var statusErr *connector.StatusError

	deliver := func() error {
		if n.deps.Publisher != nil {
			if err := n.deps.Publisher.Publish(ctx, executionCtx.WorkflowID, notification); err != nil {
				return fmt.Errorf("failed to publish notification: %w", err)
			}
		}

		if n.webhookURL == "" {
			return nil
		}

		err := n.post(ctx, executionCtx.IdempotencyKey(), notification)
		if errors.As(err, &statusErr) {
			return nil
		}

		return err
	}

	delivered := true
	if n.deps.Idempotency != nil {
		delivered, err = idempotency.Once(ctx, n.deps.Idempotency, executionCtx.IdempotencyKey(), n.ttl(), deliver)
	} else {
		err = deliver()
	}

	if err != nil {
		return nil, err
	}

	if statusErr != nil {
		output := protocol.ErrorOutput(n.id, statusErr.Error())
		output[OutputPortError].Data["status_code"] = statusErr.StatusCode

		return output, nil
	}

	return protocol.Output(n.id, OutputPortSuccess, map[string]any{
		"channel":         notification.Channel,
		"subject":         notification.Subject,
		"message":         notification.Message,
		"delivered":       delivered,
		"deduplicated":    !delivered,
		"notification_id": notification.ID,
	}), nil
}

func (n *NotifyNode) render(executionCtx models.ExecutionContext, data map[string]any) (*events.NotificationRequested, error) {
	subject, err := template.RenderString(n.subject, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render subject: %w", err)
	}

	message, err := template.RenderString(n.message, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render message: %w", err)
	}

	notification := &events.NotificationRequested{
		BaseEvent:  events.NewBaseEvent(events.NotificationRequestedEvent, executionCtx.WorkflowID, executionCtx.WorkflowVersion),
		RunID:      executionCtx.RunID,
		WorkflowID: executionCtx.WorkflowID,
		NodeID:     n.id,
		Channel:    n.channel,
		Subject:    subject,
		Message:    message,
	}

	if n.payload != nil {
		rendered, err := template.RenderValue(n.payload, data)
		if err != nil {
			return nil, fmt.Errorf("failed to render payload: %w", err)
		}

		payload, ok := rendered.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("payload must render to an object, got %T", rendered)
		}

		notification.Payload = payload
	}

	return notification, nil
}

func (n *NotifyNode) post(ctx context.Context, key string, notification *events.NotificationRequested) error {
	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	_, err = n.deps.Connector.Do(ctx, connector.Request{
		Integration: &models.Integration{
			Endpoint: n.webhookURL,
			Method:   http.MethodPost,
			Timeout:  10,
			Retry:    models.RetryPolicy{Attempts: 2},
		},
		Method:         http.MethodPost,
		Headers:        map[string]string{"Content-Type": "application/json"},
		Body:           body,
		IdempotencyKey: key,
	})

	return err
}

func (n *NotifyNode) ttl() time.Duration {
	if n.deps.IdempotencyTTL > 0 {
		return n.deps.IdempotencyTTL
	}

	return 24 * time.Hour
}

// InputPorts returns the input ports for the node.
func (n *NotifyNode) InputPorts() []protocol.Port {
	return []protocol.Port{
		{Name: InputPortMain, Description: "Data available to the notification templates"},
	}
}

// OutputPorts returns the output ports for the node.
func (n *NotifyNode) OutputPorts() []protocol.Port {
	return []protocol.Port{
		{Name: OutputPortSuccess, Description: "Delivered notification"},
		{Name: OutputPortError, Description: "Error information when the webhook rejects the notification"},
	}
}
