package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
)

// AlertRepository handles alert-related database operations.
type AlertRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAlertRepository creates a new alert repository.
func NewAlertRepository(db *sql.DB, logger *slog.Logger) *AlertRepository {
	return &AlertRepository{db: db, logger: logger}
}

// Save upserts an alert. The update only applies while the stored
// generation is still expectedGeneration.
func (ar *AlertRepository) Save(ctx context.Context, alert *models.Alert, expectedGeneration int64) error {
	next := *alert
	next.Generation = expectedGeneration + 1

	data, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	result, err := ar.db.ExecContext(ctx, `
		INSERT INTO alerts (id, integration_id, severity, status, data, last_seen, generation)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			severity = EXCLUDED.severity,
			status = EXCLUDED.status,
			data = EXCLUDED.data,
			last_seen = EXCLUDED.last_seen,
			generation = EXCLUDED.generation
		WHERE alerts.generation = $8`,
		next.ID, next.IntegrationID, string(next.Severity), string(next.Status), string(data), next.LastSeen,
		next.Generation, expectedGeneration,
	)
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: %s, expected generation %d", persistence.ErrAlertConflict, alert.ID, expectedGeneration)
	}

	alert.Generation = next.Generation

	return nil
}

// GetByID returns an alert.
func (ar *AlertRepository) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	var data []byte

	err := ar.db.QueryRowContext(ctx, `SELECT data FROM alerts WHERE id = $1`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrAlertNotFound
		}

		return nil, fmt.Errorf("failed to query alert: %w", err)
	}

	return decodeAlert(data)
}

// List returns alerts matching filter, most recently seen first.
func (ar *AlertRepository) List(ctx context.Context, filter persistence.AlertFilter) ([]*models.Alert, error) {
	var (
		conditions []string
		args       []any
	)

	if filter.IntegrationID != "" {
		args = append(args, filter.IntegrationID)
		conditions = append(conditions, "integration_id = $"+strconv.Itoa(len(args)))
	}

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conditions = append(conditions, "status = $"+strconv.Itoa(len(args)))
	}

	if filter.Severity != "" {
		args = append(args, string(filter.Severity))
		conditions = append(conditions, "severity = $"+strconv.Itoa(len(args)))
	}

	query := "SELECT data FROM alerts"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY last_seen DESC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := ar.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}

	defer closeRows(ctx, ar.logger, rows)

	alerts := make([]*models.Alert, 0)

	for rows.Next() {
		var data []byte

		err := rows.Scan(&data)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}

		alert, err := decodeAlert(data)
		if err != nil {
			return nil, err
		}

		alerts = append(alerts, alert)
	}

	return alerts, rows.Err()
}

func decodeAlert(data []byte) (*models.Alert, error) {
	var alert models.Alert

	err := json.Unmarshal(data, &alert)
	if err != nil {
		return nil, fmt.Errorf("%w: alert: %v", persistence.ErrCorrupted, err)
	}

	return &alert, nil
}
