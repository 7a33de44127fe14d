package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVersion(id string, number int64) *models.Version {
	return &models.Version{
		EntityKind: models.EntityKindIntegration,
		EntityID:   id,
		Number:     number,
		Author:     "tester",
		CreatedAt:  time.Now().UTC(),
		Snapshot:   json.RawMessage(`{"name":"v` + string(rune('0'+number)) + `"}`),
	}
}

func TestVersionRepository_AppendAndRead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewPersistence("file://" + t.TempDir()).VersionRepository()

	require.NoError(t, repo.Append(ctx, newVersion("int-1", 1), 0))
	require.NoError(t, repo.Append(ctx, newVersion("int-1", 2), 1))

	head, err := repo.Head(ctx, models.EntityKindIntegration, "int-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), head.Head)
	assert.False(t, head.Deleted)

	version, err := repo.Get(ctx, models.EntityKindIntegration, "int-1", 1)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"v1"}`, string(version.Snapshot))

	versions, err := repo.List(ctx, models.EntityKindIntegration, "int-1")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, int64(1), versions[0].Number)
	assert.Equal(t, int64(2), versions[1].Number)
}

func TestVersionRepository_StaleHeadConflicts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewVersionRepository(t.TempDir())

	require.NoError(t, repo.Append(ctx, newVersion("int-1", 1), 0))

	err := repo.Append(ctx, newVersion("int-1", 1), 0)
	require.ErrorIs(t, err, persistence.ErrVersionConflict)

	err = repo.Append(ctx, newVersion("int-1", 3), 2)
	require.ErrorIs(t, err, persistence.ErrVersionConflict)
}

func TestVersionRepository_ConcurrentWritersOneWins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewVersionRepository(t.TempDir())

	for n := int64(1); n <= 3; n++ {
		require.NoError(t, repo.Append(ctx, newVersion("int-1", n), n-1))
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)

	for range 2 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := repo.Append(ctx, newVersion("int-1", 4), 3)

			mu.Lock()
			defer mu.Unlock()

			if err == nil {
				successes++
			} else if persistence.IsConflict(err) {
				conflicts++
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)
}

func TestVersionRepository_MarkDeleted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewVersionRepository(t.TempDir())

	require.NoError(t, repo.Append(ctx, newVersion("int-1", 1), 0))
	require.ErrorIs(t, repo.MarkDeleted(ctx, models.EntityKindIntegration, "int-1", 5), persistence.ErrVersionConflict)
	require.NoError(t, repo.MarkDeleted(ctx, models.EntityKindIntegration, "int-1", 1))

	heads, err := repo.ListHeads(ctx, models.EntityKindIntegration)
	require.NoError(t, err)
	assert.Empty(t, heads)

	err = repo.Append(ctx, newVersion("int-1", 2), 1)
	require.ErrorIs(t, err, persistence.ErrEntityDeleted)

	_, err = repo.Get(ctx, models.EntityKindIntegration, "int-1", 1)
	require.NoError(t, err)
}

func TestVersionRepository_NotFoundAndCorruption(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()
	repo := NewVersionRepository(root)

	_, err := repo.Head(ctx, models.EntityKindWorkflow, "missing")
	require.ErrorIs(t, err, persistence.ErrEntityNotFound)

	_, err = repo.Get(ctx, models.EntityKindWorkflow, "missing", 1)
	require.ErrorIs(t, err, persistence.ErrVersionNotFound)

	_, err = repo.Head(ctx, models.EntityKindWorkflow, "../escape")
	require.ErrorIs(t, err, persistence.ErrInvalidID)

	require.NoError(t, repo.Append(ctx, newVersion("int-1", 1), 0))

	path := filepath.Join(root, "versions", "integration", "int-1", "0000000001.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err = repo.Get(ctx, models.EntityKindIntegration, "int-1", 1)
	require.ErrorIs(t, err, persistence.ErrCorrupted)
}

func TestAlertRepository_SaveListFilter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewAlertRepository(t.TempDir())
	now := time.Now().UTC()

	require.NoError(t, repo.Save(ctx, &models.Alert{ID: "a1", IntegrationID: "i1", Status: models.AlertStatusActive, Severity: models.AlertSeverityHigh, LastSeen: now}, 0))
	require.NoError(t, repo.Save(ctx, &models.Alert{ID: "a2", IntegrationID: "i2", Status: models.AlertStatusResolved, Severity: models.AlertSeverityMedium, LastSeen: now.Add(time.Minute)}, 0))

	all, err := repo.List(ctx, persistence.AlertFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a2", all[0].ID)

	active, err := repo.List(ctx, persistence.AlertFilter{Status: models.AlertStatusActive})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a1", active[0].ID)

	_, err = repo.GetByID(ctx, "nope")
	require.ErrorIs(t, err, persistence.ErrAlertNotFound)
}

func TestAlertRepository_SaveComparesGeneration(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewAlertRepository(t.TempDir())

	alert := &models.Alert{ID: "a1", IntegrationID: "i1", Status: models.AlertStatusActive}
	require.NoError(t, repo.Save(ctx, alert, 0))
	assert.Equal(t, int64(1), alert.Generation)

	stale := *alert

	alert.Status = models.AlertStatusAcknowledged
	require.NoError(t, repo.Save(ctx, alert, 1))

	stale.Severity = models.AlertSeverityCritical
	require.ErrorIs(t, repo.Save(ctx, &stale, 1), persistence.ErrAlertConflict)
	require.ErrorIs(t, repo.Save(ctx, &models.Alert{ID: "a1"}, 0), persistence.ErrAlertConflict)

	stored, err := repo.GetByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusAcknowledged, stored.Status)
	assert.Equal(t, int64(2), stored.Generation)
}

func TestRunRepository_ListByWorkflow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewRunRepository(t.TempDir())
	now := time.Now().UTC()

	require.NoError(t, repo.Save(ctx, &models.ExecutionRun{ID: "r1", WorkflowID: "w1", StartedAt: now}))
	require.NoError(t, repo.Save(ctx, &models.ExecutionRun{ID: "r2", WorkflowID: "w1", StartedAt: now.Add(time.Second)}))
	require.NoError(t, repo.Save(ctx, &models.ExecutionRun{ID: "r3", WorkflowID: "w2", StartedAt: now}))

	runs, err := repo.ListByWorkflow(ctx, "w1", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r2", runs[0].ID)

	run, err := repo.GetByID(ctx, "r3")
	require.NoError(t, err)
	assert.Equal(t, "w2", run.WorkflowID)

	_, err = repo.GetByID(ctx, "missing")
	require.ErrorIs(t, err, persistence.ErrRunNotFound)
}
