package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/conduit/pkg/eventbus"
	"github.com/dukex/conduit/pkg/events"
	"github.com/dukex/conduit/pkg/idempotency"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
)

const maxAlertSaveAttempts = 5

// Alerts persists the alerts raised by the health monitor and lets
// operators triage them.
type Alerts struct {
	logger    *slog.Logger
	repo      persistence.AlertRepository
	publisher eventbus.EventPublisher
	now       func() time.Time
}

// NewAlerts creates a new alert service.
func NewAlerts(logger *slog.Logger, repo persistence.AlertRepository, publisher eventbus.EventPublisher) *Alerts {
	return &Alerts{
		logger:    logger.With("module", "alerts"),
		repo:      repo,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe consumes alert events from the bus. Redelivered events are
// dropped through dedup.
func (a *Alerts) Subscribe(bus eventbus.EventSubscriber, dedup idempotency.Store) error {
	handler := eventbus.Deduplicate(dedup, "alerts", eventbus.DefaultDedupTTL, a.Handle)

	for _, eventType := range []events.EventType{
		events.AlertRaisedEvent,
		events.AlertEscalatedEvent,
		events.AlertResolvedEvent,
	} {
		err := bus.Handle(eventType, handler)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", eventType, err)
		}
	}

	return nil
}

// Handle stores the alert carried by an alert event. Events older than the
// stored revision are ignored, so out of order redeliveries cannot move an
// alert back.
func (a *Alerts) Handle(ctx context.Context, event events.Event) error {
	changed, ok := event.(*events.AlertChanged)
	if !ok {
		return nil
	}

	incoming := changed.Alert

	next, updated, err := a.update(ctx, incoming.ID, func(existing *models.Alert) (*models.Alert, error) {
		if existing != nil && existing.Revision >= incoming.Revision {
			return nil, nil
		}

		return merge(existing, &incoming), nil
	})
	if err != nil || !updated {
		return err
	}

	a.logger.InfoContext(ctx, "Alert stored",
		"alert_id", next.ID,
		"integration_id", next.IntegrationID,
		"event_type", changed.GetType(),
		"status", next.Status,
		"severity", next.Severity,
	)

	return nil
}

// update reads an alert, applies change and saves the result if nobody
// wrote the alert in between, retrying otherwise. A nil result from change
// leaves the alert untouched.
func (a *Alerts) update(
	ctx context.Context,
	id string,
	change func(existing *models.Alert) (*models.Alert, error),
) (*models.Alert, bool, error) {
	for range maxAlertSaveAttempts {
		existing, err := a.repo.GetByID(ctx, id)
		if err != nil {
			if !persistence.IsNotFound(err) {
				return nil, false, fmt.Errorf("failed to load alert %s: %w", id, err)
			}

			existing = nil
		}

		next, err := change(existing)
		if err != nil {
			return nil, false, err
		}

		if next == nil {
			return existing, false, nil
		}

		expected := int64(0)
		if existing != nil {
			expected = existing.Generation
		}

		err = a.repo.Save(ctx, next, expected)
		if errors.Is(err, persistence.ErrAlertConflict) {
			a.logger.DebugContext(ctx, "Alert changed concurrently, retrying", "alert_id", id)

			continue
		}

		if err != nil {
			return nil, false, fmt.Errorf("failed to save alert %s: %w", id, err)
		}

		return next, true, nil
	}

	return nil, false, fmt.Errorf("failed to save alert %s after %d attempts: %w", id, maxAlertSaveAttempts, persistence.ErrAlertConflict)
}

// merge applies a monitor update on top of the stored triage state. An
// acknowledgement survives escalation; a manually resolved alert reopens
// when the breach gets worse.
func merge(existing, incoming *models.Alert) *models.Alert {
	next := *incoming
	if existing == nil {
		return &next
	}

	next.FirstSeen = existing.FirstSeen
	next.AcknowledgedAt = existing.AcknowledgedAt
	next.AcknowledgedBy = existing.AcknowledgedBy

	switch {
	case incoming.Status == models.AlertStatusResolved && existing.Status == models.AlertStatusResolved:
		next.ResolvedAt = existing.ResolvedAt
		next.AutoResolved = existing.AutoResolved
		next.Message = existing.Message
	case incoming.Status == models.AlertStatusResolved:
	case existing.Status == models.AlertStatusAcknowledged:
		next.Status = models.AlertStatusAcknowledged
	}

	return &next
}

// Get returns an alert.
func (a *Alerts) Get(ctx context.Context, id string) (*models.Alert, error) {
	alert, err := a.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, ErrAlertNotFound)
	}

	return alert, nil
}

// ListAlertsRequest narrows an alert listing.
type ListAlertsRequest struct {
	IntegrationID string
	Status        models.AlertStatus
	Severity      models.AlertSeverity
	Limit         int
}

// List returns alerts most recently seen first.
func (a *Alerts) List(ctx context.Context, req ListAlertsRequest) ([]*models.Alert, error) {
	switch req.Status {
	case "", models.AlertStatusActive, models.AlertStatusAcknowledged, models.AlertStatusResolved:
	default:
		return nil, NewServiceError("ListAlerts", "INVALID_STATUS", fmt.Sprintf("invalid status '%s'", req.Status), ErrInvalidStatus)
	}

	switch req.Severity {
	case "", models.AlertSeverityCritical, models.AlertSeverityHigh, models.AlertSeverityMedium, models.AlertSeverityLow:
	default:
		return nil, NewServiceError("ListAlerts", "INVALID_SEVERITY", fmt.Sprintf("invalid severity '%s'", req.Severity), ErrInvalidRequest)
	}

	if req.Limit <= 0 || req.Limit > 500 {
		req.Limit = 100
	}

	alerts, err := a.repo.List(ctx, persistence.AlertFilter{
		IntegrationID: req.IntegrationID,
		Status:        req.Status,
		Severity:      req.Severity,
		Limit:         req.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}

	return alerts, nil
}

// Acknowledge marks an active alert as seen by an operator. Acknowledging
// twice is a no-op.
func (a *Alerts) Acknowledge(ctx context.Context, id, by string) (*models.Alert, error) {
	alert, updated, err := a.update(ctx, id, func(existing *models.Alert) (*models.Alert, error) {
		if existing == nil {
			return nil, fmt.Errorf("%w: %s", ErrAlertNotFound, id)
		}

		switch existing.Status {
		case models.AlertStatusResolved:
			return nil, fmt.Errorf("%w: %s", ErrAlertResolved, id)
		case models.AlertStatusAcknowledged:
			return nil, nil
		}

		now := a.now()
		next := *existing
		next.Status = models.AlertStatusAcknowledged
		next.AcknowledgedAt = &now
		next.AcknowledgedBy = by

		return &next, nil
	})
	if err != nil || !updated {
		return alert, err
	}

	a.logger.InfoContext(ctx, "Alert acknowledged", "alert_id", id, "by", by)
	a.publish(ctx, events.AlertAcknowledgedEvent, alert)

	return alert, nil
}

// Resolve closes an alert by hand. Resolving twice is a no-op.
func (a *Alerts) Resolve(ctx context.Context, id, by string) (*models.Alert, error) {
	alert, updated, err := a.update(ctx, id, func(existing *models.Alert) (*models.Alert, error) {
		if existing == nil {
			return nil, fmt.Errorf("%w: %s", ErrAlertNotFound, id)
		}

		if existing.Status == models.AlertStatusResolved {
			return nil, nil
		}

		now := a.now()
		next := *existing
		next.Status = models.AlertStatusResolved
		next.ResolvedAt = &now
		next.AutoResolved = false

		if next.AcknowledgedBy == "" {
			next.AcknowledgedBy = by
		}

		return &next, nil
	})
	if err != nil || !updated {
		return alert, err
	}

	a.logger.InfoContext(ctx, "Alert resolved", "alert_id", id, "by", by)
	a.publish(ctx, events.AlertResolvedEvent, alert)

	return alert, nil
}

// publish announces a manual change. The revision is left to the monitor,
// so the event is ignored by Handle.
func (a *Alerts) publish(ctx context.Context, eventType events.EventType, alert *models.Alert) {
	if a.publisher == nil {
		return
	}

	err := a.publisher.Publish(ctx, alert.IntegrationID, &events.AlertChanged{
		BaseEvent: events.NewBaseEvent(eventType, alert.IntegrationID, alert.Revision),
		Alert:     *alert,
	})
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to publish event", "event_type", eventType, "error", err)
	}
}
