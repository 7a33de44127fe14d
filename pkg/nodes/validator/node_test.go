package validator

import (
	"context"
	"testing"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserValidator(t *testing.T, config map[string]any) *ValidatorNode {
	t.Helper()

	if config == nil {
		config = map[string]any{}
	}

	config["schema"] = map[string]any{
		"type":     "object",
		"required": []any{"email"},
		"properties": map[string]any{
			"email": map[string]any{"type": "string"},
		},
	}

	node, err := NewValidatorNode("check", config)
	require.NoError(t, err)

	return node
}

func TestValidatorNode_Execute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data map[string]any
		port string
	}{
		{name: "valid", data: map[string]any{"email": "a@example.com"}, port: OutputPortValid},
		{name: "missing field", data: map[string]any{"name": "Ada"}, port: OutputPortInvalid},
		{name: "wrong type", data: map[string]any{"email": 12}, port: OutputPortInvalid},
	}

	node := newUserValidator(t, nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			results, err := node.Execute(context.Background(), models.ExecutionContext{}, map[string]models.NodeResult{
				models.PortMain: {Data: tt.data},
			})
			require.NoError(t, err)
			require.Len(t, results, 1)
			require.Contains(t, results, tt.port)

			if tt.port == OutputPortInvalid {
				violations, ok := results[tt.port].Data["errors"].([]schema.Violation)
				require.True(t, ok)
				assert.NotEmpty(t, violations)
			}
		})
	}
}

func TestValidatorNode_Execute_Target(t *testing.T) {
	t.Parallel()

	node := newUserValidator(t, map[string]any{"target": "{{ json .trigger.user }}"})

	results, err := node.Execute(context.Background(), models.ExecutionContext{
		Trigger: map[string]any{"user": map[string]any{"email": "b@example.com"}},
	}, nil)
	require.NoError(t, err)
	assert.Contains(t, results, OutputPortValid)
}

func TestNewValidatorNode_InvalidSchema(t *testing.T) {
	t.Parallel()

	_, err := NewValidatorNode("check", map[string]any{"schema": map[string]any{"type": 5}})
	require.ErrorIs(t, err, schema.ErrInvalidSchema)

	_, err = NewValidatorNode("check", map[string]any{})
	require.Error(t, err)
}
