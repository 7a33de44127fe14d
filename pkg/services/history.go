package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dukex/conduit/pkg/eventbus"
	"github.com/dukex/conduit/pkg/events"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/versioning"
)

// history commits snapshots to the version store and announces every commit
// on the bus.
type history struct {
	logger    *slog.Logger
	store     *versioning.Store
	publisher eventbus.EventPublisher
}

func (h *history) commit(
	ctx context.Context,
	kind models.EntityKind,
	entityID string,
	expectedHead int64,
	snapshot any,
	author, note string,
) (*models.Version, error) {
	version, err := h.store.Commit(ctx, kind, entityID, expectedHead, snapshot, author, note)
	if err != nil {
		return nil, err
	}

	h.committed(ctx, version)

	return version, nil
}

func (h *history) committed(ctx context.Context, version *models.Version) {
	h.publish(ctx, version.EntityID, &events.VersionCommitted{
		BaseEvent:  events.NewBaseEvent(events.VersionCommittedEvent, version.EntityID, version.Number),
		Kind:       version.EntityKind,
		Number:     version.Number,
		Author:     version.Author,
		Note:       version.Note,
		RestoredOf: version.RestoredOf,
	})
}

// publish sends event keyed by the entity. Delivery failures are logged, the
// committed version stays the source of truth.
func (h *history) publish(ctx context.Context, key string, event events.Event) {
	if h.publisher == nil {
		return
	}

	err := h.publisher.Publish(ctx, key, event)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "key", key, "error", err)
	}
}

func decodeIntegration(version *models.Version) (*models.Integration, error) {
	var integration models.Integration

	err := json.Unmarshal(version.Snapshot, &integration)
	if err != nil {
		return nil, fmt.Errorf("%w: integration %s version %d: %w", ErrStoreCorrupted, version.EntityID, version.Number, err)
	}

	integration.ID = version.EntityID
	integration.Version = version.Number

	return &integration, nil
}

func decodeWorkflow(version *models.Version) (*models.Workflow, error) {
	var workflow models.Workflow

	err := json.Unmarshal(version.Snapshot, &workflow)
	if err != nil {
		return nil, fmt.Errorf("%w: workflow %s version %d: %w", ErrStoreCorrupted, version.EntityID, version.Number, err)
	}

	workflow.ID = version.EntityID
	workflow.Version = version.Number

	return &workflow, nil
}

// conflict reports a stale expected version without touching the store.
func conflict(kind models.EntityKind, entityID string, expected, current int64) error {
	return &versioning.ConflictError{Kind: kind, EntityID: entityID, Expected: expected, Current: current}
}
