package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/conduit/pkg/eventbus"
	"github.com/dukex/conduit/pkg/events"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/versioning"
)

// Versions exposes the history of integrations and workflows.
type Versions struct {
	history
}

// NewVersions creates a new version history service.
func NewVersions(logger *slog.Logger, store *versioning.Store, publisher eventbus.EventPublisher) *Versions {
	return &Versions{
		history: history{
			logger:    logger.With("module", "versions"),
			store:     store,
			publisher: publisher,
		},
	}
}

func checkKind(kind models.EntityKind) error {
	if !kind.Valid() {
		return NewServiceError("Versions", "INVALID_KIND", fmt.Sprintf("invalid entity kind '%s'", kind), ErrInvalidKind)
	}

	return nil
}

// History returns every version of an entity, oldest first. Deleted
// entities keep their history.
func (v *Versions) History(ctx context.Context, kind models.EntityKind, id string) ([]*models.Version, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}

	return v.store.History(ctx, kind, id)
}

// Get returns version number of an entity.
func (v *Versions) Get(ctx context.Context, kind models.EntityKind, id string, number int64) (*models.Version, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}

	return v.store.Get(ctx, kind, id, number)
}

// Diff lists the field changes from version from to version to.
func (v *Versions) Diff(ctx context.Context, kind models.EntityKind, id string, from, to int64) ([]models.Change, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}

	if from <= 0 || to <= 0 {
		return nil, NewServiceError("Diff", "INVALID_RANGE", "from and to must be positive version numbers", ErrInvalidRequest)
	}

	return v.store.Diff(ctx, kind, id, from, to)
}

// Rollback copies version target forward as the new head. The head must
// still be expectedHead.
func (v *Versions) Rollback(
	ctx context.Context,
	kind models.EntityKind,
	id string,
	target, expectedHead int64,
	author string,
) (*models.Version, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}

	head, err := v.store.Head(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	if head.Number != expectedHead {
		return nil, conflict(kind, id, expectedHead, head.Number)
	}

	if target <= 0 || target > head.Number {
		return nil, fmt.Errorf("%w: %s %s has no version %d", ErrVersionNotFound, kind, id, target)
	}

	version, err := v.store.Rollback(ctx, kind, id, target, expectedHead, author)
	if err != nil {
		return nil, err
	}

	v.logger.InfoContext(ctx, "Rolled back", "kind", kind, "entity_id", id, "target", target, "version", version.Number)
	v.committed(ctx, version)
	v.announce(ctx, version, author)

	return version, nil
}

// announce publishes the saved event of the restored entity.
func (v *Versions) announce(ctx context.Context, version *models.Version, author string) {
	switch version.EntityKind {
	case models.EntityKindIntegration:
		integration, err := decodeIntegration(version)
		if err != nil {
			return
		}

		v.publish(ctx, version.EntityID, &events.IntegrationChanged{
			BaseEvent:   events.NewBaseEvent(events.IntegrationUpdatedEvent, version.EntityID, version.Number),
			Integration: integration.Redacted(),
			Author:      author,
		})
	case models.EntityKindWorkflow:
		workflow, err := decodeWorkflow(version)
		if err != nil {
			return
		}

		v.publish(ctx, version.EntityID, &events.WorkflowChanged{
			BaseEvent: events.NewBaseEvent(events.WorkflowSavedEvent, version.EntityID, version.Number),
			Workflow:  workflow,
			Author:    author,
		})
	}
}
