package versioning

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
	"github.com/dukex/conduit/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type config struct {
	Name    string `json:"name"`
	Timeout int    `json:"timeout"`
	Version int64  `json:"version"`
}

func newStore(t *testing.T) *Store {
	t.Helper()

	return NewStore(file.NewVersionRepository(t.TempDir()), slog.Default())
}

func commitN(t *testing.T, store *Store, id string, n int) {
	t.Helper()

	for i := 1; i <= n; i++ {
		_, err := store.Commit(context.Background(), models.EntityKindIntegration, id, int64(i-1),
			config{Name: "api", Timeout: i, Version: int64(i)}, "alice", "")
		require.NoError(t, err)
	}
}

func TestStore_CommitAndHead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)

	commitN(t, store, "int-1", 3)

	head, err := store.Head(ctx, models.EntityKindIntegration, "int-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), head.Number)

	history, err := store.History(ctx, models.EntityKindIntegration, "int-1")
	require.NoError(t, err)
	require.Len(t, history, 3)

	for i, version := range history {
		assert.Equal(t, int64(i+1), version.Number)
	}
}

func TestStore_PriorSnapshotsAreImmutable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)

	commitN(t, store, "int-1", 1)

	before, err := store.Get(ctx, models.EntityKindIntegration, "int-1", 1)
	require.NoError(t, err)

	_, err = store.Commit(ctx, models.EntityKindIntegration, "int-1", 1, config{Name: "renamed", Timeout: 99}, "bob", "rename")
	require.NoError(t, err)

	after, err := store.Get(ctx, models.EntityKindIntegration, "int-1", 1)
	require.NoError(t, err)
	assert.JSONEq(t, string(before.Snapshot), string(after.Snapshot))
}

func TestStore_TwoWritersFromSameHead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)

	commitN(t, store, "int-1", 3)

	var (
		wg      sync.WaitGroup
		results = make([]error, 2)
	)

	for i := range 2 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, results[i] = store.Commit(ctx, models.EntityKindIntegration, "int-1", 3,
				config{Name: "writer", Timeout: 10 + i}, "writer", "")
		}()
	}

	wg.Wait()

	var conflicts, successes int

	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case persistence.IsConflict(err):
			conflicts++

			var conflict *ConflictError
			require.ErrorAs(t, err, &conflict)
			assert.Equal(t, int64(3), conflict.Expected)
			assert.Equal(t, int64(4), conflict.Current)
		}
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)

	head, err := store.Head(ctx, models.EntityKindIntegration, "int-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), head.Number)
}

func TestStore_RollbackIsForwardCommit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)

	commitN(t, store, "int-1", 3)

	restored, err := store.Rollback(ctx, models.EntityKindIntegration, "int-1", 1, 3, "carol")
	require.NoError(t, err)
	assert.Equal(t, int64(4), restored.Number)
	assert.Equal(t, int64(1), restored.RestoredOf)

	changes, err := store.Diff(ctx, models.EntityKindIntegration, "int-1", 1, 4)
	require.NoError(t, err)
	assert.Empty(t, changes)

	history, err := store.History(ctx, models.EntityKindIntegration, "int-1")
	require.NoError(t, err)
	assert.Len(t, history, 4)

	_, err = store.Rollback(ctx, models.EntityKindIntegration, "int-1", 2, 3, "stale")
	require.ErrorIs(t, err, persistence.ErrVersionConflict)
}

func TestStore_DeleteKeepsHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)

	commitN(t, store, "int-1", 2)

	err := store.Delete(ctx, models.EntityKindIntegration, "int-1", 1)
	require.ErrorIs(t, err, persistence.ErrVersionConflict)

	require.NoError(t, store.Delete(ctx, models.EntityKindIntegration, "int-1", 2))

	_, err = store.Head(ctx, models.EntityKindIntegration, "int-1")
	require.ErrorIs(t, err, persistence.ErrEntityDeleted)

	history, err := store.History(ctx, models.EntityKindIntegration, "int-1")
	require.NoError(t, err)
	assert.Len(t, history, 2)

	heads, err := store.Heads(ctx, models.EntityKindIntegration)
	require.NoError(t, err)
	assert.Empty(t, heads)
}

func TestDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		left  string
		right string
		want  []models.Change
	}{
		{
			name:  "identical",
			left:  `{"name":"a","timeout":5}`,
			right: `{"name":"a","timeout":5}`,
			want:  []models.Change{},
		},
		{
			name:  "volatile fields ignored",
			left:  `{"name":"a","version":1,"updated_at":"x"}`,
			right: `{"name":"a","version":7,"updated_at":"y"}`,
			want:  []models.Change{},
		},
		{
			name:  "replace add remove",
			left:  `{"name":"a","timeout":5,"old":true}`,
			right: `{"name":"b","timeout":5,"new":1}`,
			want: []models.Change{
				{Op: models.ChangeOpReplace, Path: "/name", From: "a", To: "b"},
				{Op: models.ChangeOpAdd, Path: "/new", To: float64(1)},
				{Op: models.ChangeOpRemove, Path: "/old", From: true},
			},
		},
		{
			name:  "nested object",
			left:  `{"auth":{"type":"bearer","token":"x"}}`,
			right: `{"auth":{"type":"bearer","token":"y"}}`,
			want:  []models.Change{{Op: models.ChangeOpReplace, Path: "/auth/token", From: "x", To: "y"}},
		},
		{
			name:  "nodes matched by id",
			left:  `{"nodes":[{"id":"a","name":"A"},{"id":"b","name":"B"}]}`,
			right: `{"nodes":[{"id":"b","name":"B2"},{"id":"c","name":"C"}]}`,
			want: []models.Change{
				{Op: models.ChangeOpRemove, Path: "/nodes/a", From: map[string]any{"id": "a", "name": "A"}},
				{Op: models.ChangeOpReplace, Path: "/nodes/b/name", From: "B", To: "B2"},
				{Op: models.ChangeOpAdd, Path: "/nodes/c", To: map[string]any{"id": "c", "name": "C"}},
			},
		},
		{
			name:  "plain arrays by index",
			left:  `{"tags":["x","y"]}`,
			right: `{"tags":["x"]}`,
			want:  []models.Change{{Op: models.ChangeOpRemove, Path: "/tags/1", From: "y"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			changes, err := Diff(json.RawMessage(tt.left), json.RawMessage(tt.right))
			require.NoError(t, err)
			assert.Equal(t, tt.want, changes)
		})
	}
}

func TestStore_HeadFollowsOtherWriters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := file.NewVersionRepository(t.TempDir())
	writer := NewStore(repo, slog.Default())
	reader := NewStore(repo, slog.Default())

	commitN(t, writer, "int-1", 1)

	head, err := reader.Head(ctx, models.EntityKindIntegration, "int-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), head.Number)

	_, err = writer.Commit(ctx, models.EntityKindIntegration, "int-1", 1, config{Name: "api", Timeout: 2}, "alice", "")
	require.NoError(t, err)

	head, err = reader.Head(ctx, models.EntityKindIntegration, "int-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), head.Number)

	_, err = reader.Commit(ctx, models.EntityKindIntegration, "int-1", 2, config{Name: "api", Timeout: 3}, "bob", "")
	require.NoError(t, err)

	require.NoError(t, writer.Delete(ctx, models.EntityKindIntegration, "int-1", 3))

	_, err = reader.Head(ctx, models.EntityKindIntegration, "int-1")
	assert.ErrorIs(t, err, persistence.ErrEntityDeleted)
}
