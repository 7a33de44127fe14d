package log

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/dukex/conduit/pkg/idempotency"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func newDeps(out *syncBuffer) protocol.Dependencies {
	return protocol.Dependencies{
		Logger:      slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug})),
		Idempotency: idempotency.NewMemoryStore(),
	}
}

func TestLogNode_Execute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config map[string]any
		want   string
		level  string
	}{
		{
			name:   "info",
			config: map[string]any{"message": "Processing user: {{ .vars.user_name }}", "level": "info"},
			want:   "Processing user: john_doe",
			level:  "INFO",
		},
		{
			name:   "error level",
			config: map[string]any{"message": "failed for {{ .trigger.id }}", "level": "error"},
			want:   "failed for t-1",
			level:  "ERROR",
		},
		{
			name:   "default level",
			config: map[string]any{"message": "plain message"},
			want:   "plain message",
			level:  "INFO",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out := &syncBuffer{}

			node, err := NewLogNode("test-log", tt.config, newDeps(out))
			require.NoError(t, err)

			results, err := node.Execute(context.Background(), models.ExecutionContext{
				RunID:     "run-1",
				NodeID:    "test-log",
				Variables: map[string]any{"user_name": "john_doe"},
				Trigger:   map[string]any{"id": "t-1"},
			}, nil)
			require.NoError(t, err)

			success, ok := results[OutputPortSuccess]
			require.True(t, ok)
			assert.Equal(t, string(models.NodeStatusSuccess), success.Status)
			assert.Equal(t, tt.want, success.Data["message"])
			assert.Equal(t, true, success.Data["logged"])

			assert.Contains(t, out.String(), "level="+tt.level)
			assert.Contains(t, out.String(), "run_id=run-1")
		})
	}
}

func TestLogNode_Execute_OncePerRun(t *testing.T) {
	t.Parallel()

	out := &syncBuffer{}

	node, err := NewLogNode("test-log", map[string]any{"message": "hello"}, newDeps(out))
	require.NoError(t, err)

	executionCtx := models.ExecutionContext{RunID: "run-1", NodeID: "test-log"}

	for range 3 {
		_, err := node.Execute(context.Background(), executionCtx, nil)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, strings.Count(out.String(), "msg=hello"))
}

func TestLogNode_Execute_TemplateError(t *testing.T) {
	t.Parallel()

	node, err := NewLogNode("test-log", map[string]any{"message": "{{ .broken"}, newDeps(&syncBuffer{}))
	require.NoError(t, err)

	results, err := node.Execute(context.Background(), models.ExecutionContext{}, nil)
	require.NoError(t, err)

	errorResult, ok := results[OutputPortError]
	require.True(t, ok)
	assert.Contains(t, errorResult.Data["error"], "failed to render log message template")
}

func TestNewLogNode_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewLogNode("test-log", map[string]any{}, protocol.Dependencies{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required field 'message'")

	_, err = NewLogNode("test-log", map[string]any{"message": "x", "level": "verbose"}, protocol.Dependencies{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid level")
}

func TestLogNodeFactory(t *testing.T) {
	t.Parallel()

	factory := NewLogNodeFactory(protocol.Dependencies{})

	assert.Equal(t, "log", factory.ID())
	assert.Equal(t, models.CategoryTypeAction, factory.Category())

	schema := factory.Schema()
	assert.Equal(t, []string{"message"}, schema["required"])

	node, err := factory.Create(context.Background(), "n1", map[string]any{"message": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "log", node.Type())
}
