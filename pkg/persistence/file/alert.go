package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
)

// AlertRepository handles alert-related file operations.
type AlertRepository struct {
	root string
	mu   sync.Mutex
}

// NewAlertRepository creates a new alert repository.
func NewAlertRepository(root string) *AlertRepository {
	return &AlertRepository{root: root}
}

func (ar *AlertRepository) dir() string {
	return filepath.Join(ar.root, "alerts")
}

// Save creates or replaces an alert whose stored generation is expectedGeneration.
func (ar *AlertRepository) Save(_ context.Context, alert *models.Alert, expectedGeneration int64) error {
	err := validateID(alert.ID)
	if err != nil {
		return err
	}

	ar.mu.Lock()
	defer ar.mu.Unlock()

	path := filepath.Join(ar.dir(), alert.ID+".json")

	var stored models.Alert

	err = readJSON(path, &stored)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	if stored.Generation != expectedGeneration {
		return fmt.Errorf("%w: %s at generation %d, expected %d",
			persistence.ErrAlertConflict, alert.ID, stored.Generation, expectedGeneration)
	}

	next := *alert
	next.Generation = expectedGeneration + 1

	err = writeJSON(path, &next)
	if err != nil {
		return err
	}

	alert.Generation = next.Generation

	return nil
}

// GetByID returns an alert.
func (ar *AlertRepository) GetByID(_ context.Context, id string) (*models.Alert, error) {
	err := validateID(id)
	if err != nil {
		return nil, err
	}

	var alert models.Alert

	err = readJSON(filepath.Join(ar.dir(), id+".json"), &alert)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrAlertNotFound
		}

		return nil, err
	}

	return &alert, nil
}

// List returns alerts matching filter, most recently seen first.
func (ar *AlertRepository) List(_ context.Context, filter persistence.AlertFilter) ([]*models.Alert, error) {
	alerts := make([]*models.Alert, 0)

	err := readDir(ar.dir(), func(path string) error {
		var alert models.Alert

		err := readJSON(path, &alert)
		if err != nil {
			return err
		}

		if matchesAlert(&alert, filter) {
			alerts = append(alerts, &alert)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(alerts, func(i, j int) bool { return alerts[i].LastSeen.After(alerts[j].LastSeen) })

	if filter.Limit > 0 && len(alerts) > filter.Limit {
		alerts = alerts[:filter.Limit]
	}

	return alerts, nil
}

func matchesAlert(alert *models.Alert, filter persistence.AlertFilter) bool {
	if filter.IntegrationID != "" && alert.IntegrationID != filter.IntegrationID {
		return false
	}

	if filter.Status != "" && alert.Status != filter.Status {
		return false
	}

	if filter.Severity != "" && alert.Severity != filter.Severity {
		return false
	}

	return true
}
