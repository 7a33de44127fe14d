package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
)

// RunRepository handles execution run database operations.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

// Save upserts a run.
func (rr *RunRepository) Save(ctx context.Context, run *models.ExecutionRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	_, err = rr.db.ExecContext(ctx, `
		INSERT INTO execution_runs (id, workflow_id, status, data, started_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			data = EXCLUDED.data`,
		run.ID, run.WorkflowID, string(run.Status), string(data), run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	return nil
}

// GetByID returns a run.
func (rr *RunRepository) GetByID(ctx context.Context, id string) (*models.ExecutionRun, error) {
	var data []byte

	err := rr.db.QueryRowContext(ctx, `SELECT data FROM execution_runs WHERE id = $1`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrRunNotFound
		}

		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	return decodeRun(data)
}

// ListByWorkflow returns the runs of a workflow, newest first.
func (rr *RunRepository) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.ExecutionRun, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := rr.db.QueryContext(ctx, `
		SELECT data FROM execution_runs
		WHERE workflow_id = $1
		ORDER BY started_at DESC
		LIMIT $2`,
		workflowID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer closeRows(ctx, rr.logger, rows)

	runs := make([]*models.ExecutionRun, 0)

	for rows.Next() {
		var data []byte

		err := rows.Scan(&data)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		run, err := decodeRun(data)
		if err != nil {
			return nil, err
		}

		runs = append(runs, run)
	}

	return runs, rows.Err()
}

func decodeRun(data []byte) (*models.ExecutionRun, error) {
	var run models.ExecutionRun

	err := json.Unmarshal(data, &run)
	if err != nil {
		return nil, fmt.Errorf("%w: run: %v", persistence.ErrCorrupted, err)
	}

	return &run, nil
}
