package mapper

import (
	"context"
	"testing"

	"github.com/dukex/conduit/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapperNode_Execute_Object(t *testing.T) {
	t.Parallel()

	node, err := NewMapperNode("map", map[string]any{
		"mappings": map[string]any{
			"customer": "{{ .input.user.name }}",
			"total":    "{{ .input.amount }}",
			"source":   "webhook",
			"meta":     map[string]any{"run": "{{ .run.id }}"},
		},
	})
	require.NoError(t, err)

	results, err := node.Execute(context.Background(), models.ExecutionContext{RunID: "run-1"}, map[string]models.NodeResult{
		models.PortMain: {Data: map[string]any{"user": map[string]any{"name": "Grace"}, "amount": 42}},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"customer": "Grace",
		"total":    42.0,
		"source":   "webhook",
		"meta":     map[string]any{"run": "run-1"},
	}, results[OutputPortSuccess].Data)
}

func TestMapperNode_Execute_Items(t *testing.T) {
	t.Parallel()

	node, err := NewMapperNode("map", map[string]any{
		"items":    "{{ json .trigger.orders }}",
		"mappings": map[string]any{"ref": "{{ .item.id }}-{{ .index }}"},
	})
	require.NoError(t, err)

	results, err := node.Execute(context.Background(), models.ExecutionContext{
		Trigger: map[string]any{"orders": []any{map[string]any{"id": "a"}, map[string]any{"id": "b"}}},
	}, nil)
	require.NoError(t, err)

	success := results[OutputPortSuccess]
	assert.Equal(t, 2, success.Data["count"])
	assert.Equal(t, []any{map[string]any{"ref": "a-0"}, map[string]any{"ref": "b-1"}}, success.Data["items"])
}

func TestNewMapperNode_RequiresMappings(t *testing.T) {
	t.Parallel()

	_, err := NewMapperNode("map", map[string]any{"mappings": map[string]any{}})
	require.Error(t, err)
}
