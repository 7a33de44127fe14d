package webhook

import (
	"context"
	"testing"

	"github.com/dukex/conduit/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookNode_Execute(t *testing.T) {
	t.Parallel()

	node, err := NewWebhookNode("hook", map[string]any{
		"headers": map[string]any{"X-Webhook-Secret": "s3cr3t"},
	})
	require.NoError(t, err)

	payload := map[string]models.NodeResult{
		models.PortMain: {Data: map[string]any{"order_id": "o-1"}},
	}

	tests := []struct {
		name     string
		metadata map[string]any
		port     string
	}{
		{
			name: "matching request",
			metadata: map[string]any{MetadataKey: map[string]any{
				"method":  "POST",
				"headers": map[string]any{"x-webhook-secret": "s3cr3t"},
			}},
			port: OutputPortSuccess,
		},
		{
			name: "wrong secret",
			metadata: map[string]any{MetadataKey: map[string]any{
				"method":  "POST",
				"headers": map[string]any{"X-Webhook-Secret": "guess"},
			}},
			port: OutputPortError,
		},
		{
			name: "wrong method",
			metadata: map[string]any{MetadataKey: map[string]any{
				"method":  "PUT",
				"headers": map[string]any{"X-Webhook-Secret": "s3cr3t"},
			}},
			port: OutputPortError,
		},
		{
			name: "manual run",
			port: OutputPortSuccess,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			results, err := node.Execute(context.Background(), models.ExecutionContext{Metadata: tt.metadata}, payload)
			require.NoError(t, err)
			require.Contains(t, results, tt.port)

			if tt.port == OutputPortSuccess {
				assert.Equal(t, "o-1", results[tt.port].Data["order_id"])
			}
		})
	}
}

func TestWebhookNode_Execute_FallsBackToTrigger(t *testing.T) {
	t.Parallel()

	node, err := NewWebhookNode("hook", map[string]any{})
	require.NoError(t, err)

	results, err := node.Execute(context.Background(), models.ExecutionContext{
		Trigger: map[string]any{"event": "push"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"event": "push"}, results[OutputPortSuccess].Data)
}

func TestNewWebhookNode_InvalidMethod(t *testing.T) {
	t.Parallel()

	_, err := NewWebhookNode("hook", map[string]any{"method": "GET"})
	require.Error(t, err)
}
