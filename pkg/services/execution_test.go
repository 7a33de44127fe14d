package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/conduit/pkg/engine"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExecutions(t *testing.T, f *fixture) *Executions {
	t.Helper()

	runs := f.persistence.RunRepository()
	e := engine.New(slog.Default(), f.registry, engine.WithRunStore(runs))

	t.Cleanup(func() {
		_ = e.Shutdown(context.Background())
	})

	return NewExecutions(slog.Default(), f.workflows, e, runs)
}

func TestExecutions_Run(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()
	executions := newExecutions(t, f)

	created, err := f.workflows.Create(ctx, testutil.CreateTestWorkflowWithNodes(), "alice")
	require.NoError(t, err)

	run, err := executions.Run(ctx, created.ID, RunRequest{
		Trigger:     map[string]any{"order_id": "42"},
		TriggerType: engine.TriggerTypeManual,
	})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, run.Status)
	assert.Equal(t, int64(1), run.WorkflowVersion)
	require.NotNil(t, run.NodeTrace("action-1"))
	assert.Equal(t, models.NodeStatusSuccess, run.NodeTrace("action-1").Status)

	stored, err := executions.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, stored.ID)
	assert.True(t, stored.Sealed)

	listed, err := executions.List(ctx, created.ID, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	err = executions.Cancel(ctx, run.ID)
	require.ErrorIs(t, err, ErrRunFinished)
	assert.True(t, IsConflictError(err))

	missing := uuid.New().String()

	_, err = executions.Get(ctx, missing)
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.True(t, IsNotFound(executions.Cancel(ctx, missing)))
}

func TestExecutions_Trigger(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()
	executions := newExecutions(t, f)
	publishing := NewPublishing(f.workflows)

	workflow := testutil.CreateTestWorkflowWithNodes()
	workflow.TriggerSchema = map[string]any{
		"type":     "object",
		"required": []any{"order_id"},
		"properties": map[string]any{
			"order_id": map[string]any{"type": "string"},
		},
	}

	created, err := f.workflows.Create(ctx, workflow, "alice")
	require.NoError(t, err)

	_, err = executions.Trigger(ctx, created.ID, map[string]any{"order_id": "42"}, nil)
	require.ErrorIs(t, err, ErrWorkflowInactive)

	_, err = publishing.Activate(ctx, created.ID, 1, "alice")
	require.NoError(t, err)

	_, err = executions.Trigger(ctx, created.ID, map[string]any{"order_id": 42}, nil)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Contains(t, fieldCodes(t, err), "trigger.order_id")

	run, err := executions.Trigger(ctx, created.ID, map[string]any{"order_id": "42"}, map[string]any{
		"webhook": map[string]any{"method": "POST", "headers": map[string]any{}},
	})
	require.NoError(t, err)
	assert.Equal(t, engine.TriggerTypeWebhook, run.TriggerType)
	assert.Equal(t, int64(2), run.WorkflowVersion)

	require.Eventually(t, func() bool {
		stored, err := executions.Get(ctx, run.ID)

		return err == nil && stored.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	stored, err := executions.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, stored.Status)

	// version 1 is still a draft, even though the head is active
	_, err = executions.Run(ctx, created.ID, RunRequest{TriggerType: engine.TriggerTypeWebhook, Version: 1, Trigger: map[string]any{"order_id": "1"}})
	assert.ErrorIs(t, err, ErrWorkflowInactive)
}
