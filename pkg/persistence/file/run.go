package file

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
)

// RunRepository handles execution run file operations.
type RunRepository struct {
	root string
}

// NewRunRepository creates a new run repository.
func NewRunRepository(root string) *RunRepository {
	return &RunRepository{root: root}
}

func (rr *RunRepository) dir() string {
	return filepath.Join(rr.root, "runs")
}

// Save creates or replaces a run.
func (rr *RunRepository) Save(_ context.Context, run *models.ExecutionRun) error {
	err := validateID(run.ID)
	if err != nil {
		return err
	}

	return writeJSON(filepath.Join(rr.dir(), run.ID+".json"), run)
}

// GetByID returns a run.
func (rr *RunRepository) GetByID(_ context.Context, id string) (*models.ExecutionRun, error) {
	err := validateID(id)
	if err != nil {
		return nil, err
	}

	var run models.ExecutionRun

	err = readJSON(filepath.Join(rr.dir(), id+".json"), &run)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrRunNotFound
		}

		return nil, err
	}

	return &run, nil
}

// ListByWorkflow returns the runs of a workflow, newest first.
func (rr *RunRepository) ListByWorkflow(_ context.Context, workflowID string, limit int) ([]*models.ExecutionRun, error) {
	runs := make([]*models.ExecutionRun, 0)

	err := readDir(rr.dir(), func(path string) error {
		var run models.ExecutionRun

		err := readJSON(path, &run)
		if err != nil {
			return err
		}

		if run.WorkflowID == workflowID {
			runs = append(runs, &run)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}

	return runs, nil
}
