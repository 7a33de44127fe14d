package services

import (
	"testing"

	"github.com/dukex/conduit/pkg/events"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/testutil"
	"github.com/dukex/conduit/pkg/versioning"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersions_RollbackRestoresSnapshot(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()

	created, err := f.integrations.Create(ctx, testutil.CreateTestIntegration(), "alice")
	require.NoError(t, err)

	edit := *created
	edit.Timeout = 20

	_, err = f.integrations.Update(ctx, created.ID, 1, &edit, "bob", "slower upstream")
	require.NoError(t, err)

	changes, err := f.versions.Diff(ctx, models.EntityKindIntegration, created.ID, 1, 2)
	require.NoError(t, err)
	assert.Contains(t, changes, models.Change{Op: models.ChangeOpReplace, Path: "/timeout", From: float64(10), To: float64(20)})

	restored, err := f.versions.Rollback(ctx, models.EntityKindIntegration, created.ID, 1, 2, "carol")
	require.NoError(t, err)
	assert.Equal(t, int64(3), restored.Number)
	assert.Equal(t, int64(1), restored.RestoredOf)
	assert.Equal(t, "carol", restored.Author)

	changes, err = f.versions.Diff(ctx, models.EntityKindIntegration, created.ID, 3, 1)
	require.NoError(t, err)
	assert.Empty(t, changes)

	current, err := f.integrations.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, current.Timeout)
	assert.Equal(t, int64(3), current.Version)

	history, err := f.versions.History(ctx, models.EntityKindIntegration, created.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "slower upstream", history[1].Note)

	second, err := f.versions.Get(ctx, models.EntityKindIntegration, created.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, "bob", second.Author)

	assert.Contains(t, f.publisher.types(), events.IntegrationUpdatedEvent)
}

func TestVersions_Rollback_Errors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()

	created, err := f.workflows.Create(ctx, testutil.CreateTestWorkflowWithNodes(), "alice")
	require.NoError(t, err)

	tests := []struct {
		name     string
		kind     models.EntityKind
		id       string
		target   int64
		expected int64
		check    func(t *testing.T, err error)
	}{
		{
			name:     "stale head",
			kind:     models.EntityKindWorkflow,
			id:       created.ID,
			target:   1,
			expected: 4,
			check: func(t *testing.T, err error) {
				t.Helper()

				var conflict *versioning.ConflictError
				require.ErrorAs(t, err, &conflict)
				assert.Equal(t, int64(4), conflict.Expected)
				assert.Equal(t, int64(1), conflict.Current)
				assert.True(t, IsConflictError(err))
			},
		},
		{
			name:     "target past the head",
			kind:     models.EntityKindWorkflow,
			id:       created.ID,
			target:   7,
			expected: 1,
			check: func(t *testing.T, err error) {
				t.Helper()
				assert.ErrorIs(t, err, ErrVersionNotFound)
			},
		},
		{
			name:     "unknown kind",
			kind:     models.EntityKind("connector"),
			id:       created.ID,
			target:   1,
			expected: 1,
			check: func(t *testing.T, err error) {
				t.Helper()
				assert.ErrorIs(t, err, ErrInvalidKind)
				assert.True(t, IsValidationError(err))
			},
		},
		{
			name:     "unknown entity",
			kind:     models.EntityKindWorkflow,
			id:       "missing",
			target:   1,
			expected: 1,
			check: func(t *testing.T, err error) {
				t.Helper()
				assert.True(t, IsNotFound(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := f.versions.Rollback(ctx, tt.kind, tt.id, tt.target, tt.expected, "alice")
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestVersions_Diff_InvalidRange(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.versions.Diff(t.Context(), models.EntityKindWorkflow, "wf", 0, 1)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.versions.Get(t.Context(), models.EntityKindWorkflow, "wf", 1)
	assert.True(t, IsNotFound(err))
}
