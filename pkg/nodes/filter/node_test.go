package filter

import (
	"context"
	"testing"

	"github.com/dukex/conduit/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterNode_Execute(t *testing.T) {
	t.Parallel()

	inputs := map[string]models.NodeResult{
		models.PortMain: {Data: map[string]any{
			"items": []any{
				map[string]any{"id": "a", "status": "paid"},
				map[string]any{"id": "b", "status": "pending"},
				map[string]any{"id": "c", "status": "paid"},
			},
		}},
	}

	node, err := NewFilterNode("paid", map[string]any{"condition": `{{ eq .item.status "paid" }}`})
	require.NoError(t, err)

	results, err := node.Execute(context.Background(), models.ExecutionContext{RunID: "run-1"}, inputs)
	require.NoError(t, err)

	success, ok := results[OutputPortSuccess]
	require.True(t, ok)
	assert.Equal(t, 2, success.Data["count"])
	assert.Equal(t, 1, success.Data["dropped"])

	kept, ok := success.Data["items"].([]any)
	require.True(t, ok)
	assert.Equal(t, "a", kept[0].(map[string]any)["id"])
	assert.Equal(t, "c", kept[1].(map[string]any)["id"])
}

func TestFilterNode_Execute_ItemsMustBeArray(t *testing.T) {
	t.Parallel()

	node, err := NewFilterNode("paid", map[string]any{
		"items":     "{{ .trigger.name }}",
		"condition": "true",
	})
	require.NoError(t, err)

	results, err := node.Execute(context.Background(), models.ExecutionContext{
		Trigger: map[string]any{"name": "not-a-list"},
	}, nil)
	require.NoError(t, err)
	assert.Contains(t, results, OutputPortError)
}

func TestFilterNode_Execute_MissingItemsIsEmpty(t *testing.T) {
	t.Parallel()

	node, err := NewFilterNode("paid", map[string]any{"condition": "true"})
	require.NoError(t, err)

	results, err := node.Execute(context.Background(), models.ExecutionContext{}, map[string]models.NodeResult{
		models.PortMain: {Data: map[string]any{}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, results[OutputPortSuccess].Data["count"])
}
