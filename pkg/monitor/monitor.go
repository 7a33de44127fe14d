// Package monitor derives the health of integrations from observed samples.
// A single goroutine owns every rolling window; readers load immutable
// snapshots without locking. Leaving healthy raises one alert per breach,
// escalations update it and recovery resolves it.
package monitor

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dukex/conduit/pkg/eventbus"
	"github.com/dukex/conduit/pkg/events"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
	"github.com/google/uuid"
)

const defaultBuffer = 1024

// Observer is told about every new snapshot and every forgotten integration.
type Observer interface {
	HealthUpdated(snapshot models.HealthSnapshot)
	HealthForgotten(integrationID string)
}

type op struct {
	sample *models.Sample
	forget string
}

type index map[string]*tracker

type Monitor struct {
	logger       *slog.Logger
	config       Config
	publisher    eventbus.EventPublisher
	integrations protocol.IntegrationLookup
	observer     Observer
	now          func() time.Time

	ops  chan op
	done chan struct{}

	// trackers is replaced, never mutated, when integrations come and go.
	trackers atomic.Pointer[index]
}

type Option func(*Monitor)

func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(m *Monitor) { m.publisher = publisher }
}

// WithIntegrations lets alerts carry the endpoint of the integration.
func WithIntegrations(integrations protocol.IntegrationLookup) Option {
	return func(m *Monitor) { m.integrations = integrations }
}

func WithObserver(observer Observer) Option {
	return func(m *Monitor) { m.observer = observer }
}

func WithBuffer(size int) Option {
	return func(m *Monitor) { m.ops = make(chan op, size) }
}

func New(logger *slog.Logger, config Config, opts ...Option) *Monitor {
	m := &Monitor{
		logger: logger.With("module", "monitor"),
		config: config,
		now:    func() time.Time { return time.Now().UTC() },
		ops:    make(chan op, defaultBuffer),
		done:   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.trackers.Store(&index{})

	return m
}

// Record queues sample for the monitor goroutine. Samples recorded after Run
// returned are dropped.
func (m *Monitor) Record(sample models.Sample) {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = m.now()
	}

	select {
	case m.ops <- op{sample: &sample}:
	case <-m.done:
		m.logger.Debug("Dropping sample, monitor stopped", "integration_id", sample.IntegrationID)
	}
}

// Forget drops the window of a deleted integration and resolves its alert.
func (m *Monitor) Forget(integrationID string) {
	select {
	case m.ops <- op{forget: integrationID}:
	case <-m.done:
	}
}

// Run applies queued samples until ctx is done. It is the only writer of the
// rolling windows.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.InfoContext(ctx, "Health monitor started")

	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Health monitor stopped")

			return nil
		case o := <-m.ops:
			if o.sample != nil {
				m.apply(ctx, *o.sample)
			} else {
				m.forget(ctx, o.forget)
			}
		}
	}
}

// Snapshot returns the current health of an integration.
func (m *Monitor) Snapshot(integrationID string) (models.HealthSnapshot, bool) {
	t, ok := (*m.trackers.Load())[integrationID]
	if !ok {
		return models.HealthSnapshot{}, false
	}

	return *t.current.Load(), true
}

// Snapshots returns the current health of every observed integration, ordered by id.
func (m *Monitor) Snapshots() []models.HealthSnapshot {
	trackers := *m.trackers.Load()

	snapshots := make([]models.HealthSnapshot, 0, len(trackers))
	for _, t := range trackers {
		snapshots = append(snapshots, *t.current.Load())
	}

	slices.SortFunc(snapshots, func(a, b models.HealthSnapshot) int {
		return strings.Compare(a.IntegrationID, b.IntegrationID)
	})

	return snapshots
}

func (m *Monitor) tracker(integrationID string) *tracker {
	current := *m.trackers.Load()
	if t, ok := current[integrationID]; ok {
		return t
	}

	t := newTracker(integrationID, m.config.For(integrationID), m.now())

	next := make(index, len(current)+1)
	for id, existing := range current {
		next[id] = existing
	}

	next[integrationID] = t
	m.trackers.Store(&next)

	return t
}

func (m *Monitor) apply(ctx context.Context, sample models.Sample) {
	if sample.IntegrationID == "" {
		return
	}

	t := m.tracker(sample.IntegrationID)
	previous, s := t.observe(sample)

	m.alerting(ctx, t, previous, sample.Timestamp)

	snapshot := t.publish(s)

	if m.observer != nil {
		m.observer.HealthUpdated(snapshot)
	}

	if snapshot.State == previous {
		return
	}

	t.revision++

	m.logger.InfoContext(ctx, "Integration health changed",
		"integration_id", t.integrationID,
		"from", previous,
		"to", snapshot.State,
		"reason", snapshot.Reason,
	)

	m.publish(ctx, t.integrationID, &events.HealthChanged{
		BaseEvent: events.NewBaseEvent(events.HealthChangedEvent, t.integrationID, t.revision),
		Previous:  previous,
		Snapshot:  snapshot,
	})
}

// alerting keeps exactly one alert per breach: raised when leaving healthy,
// escalated when state or severity rises, resolved on recovery.
func (m *Monitor) alerting(ctx context.Context, t *tracker, previous models.HealthState, at time.Time) {
	severity := models.SeverityFor(t.state, t.outage())

	switch {
	case previous == models.HealthStateHealthy && t.state != models.HealthStateHealthy:
		t.alert = &models.Alert{
			ID:            uuid.New().String(),
			IntegrationID: t.integrationID,
			Endpoint:      m.endpoint(ctx, t.integrationID),
			Severity:      severity,
			Status:        models.AlertStatusActive,
			State:         t.state,
			Message:       t.reason,
			Revision:      1,
			FirstSeen:     at,
			LastSeen:      at,
		}

		m.logger.WarnContext(ctx, "Alert raised", "integration_id", t.integrationID, "alert_id", t.alert.ID, "severity", severity)
		m.publishAlert(ctx, events.AlertRaisedEvent, t.alert)
	case t.alert == nil:
	case t.state == models.HealthStateHealthy:
		alert := t.alert
		alert.Status = models.AlertStatusResolved
		alert.State = t.state
		alert.LastSeen = at
		alert.ResolvedAt = &at
		alert.AutoResolved = true
		alert.Revision++

		t.alert = nil

		m.logger.InfoContext(ctx, "Alert resolved", "integration_id", t.integrationID, "alert_id", alert.ID)
		m.publishAlert(ctx, events.AlertResolvedEvent, alert)
	case t.state.Rank() > t.alert.State.Rank() || severityRank(severity) > severityRank(t.alert.Severity):
		t.alert.State = t.state
		t.alert.Severity = severity
		t.alert.Message = t.reason
		t.alert.LastSeen = at
		t.alert.Revision++

		m.logger.WarnContext(ctx, "Alert escalated", "integration_id", t.integrationID, "alert_id", t.alert.ID, "severity", severity)
		m.publishAlert(ctx, events.AlertEscalatedEvent, t.alert)
	default:
		t.alert.LastSeen = at
	}
}

func (m *Monitor) forget(ctx context.Context, integrationID string) {
	current := *m.trackers.Load()

	t, ok := current[integrationID]
	if !ok {
		return
	}

	if t.alert != nil {
		at := m.now()
		alert := t.alert
		alert.Status = models.AlertStatusResolved
		alert.Message = "integration removed"
		alert.ResolvedAt = &at
		alert.AutoResolved = true
		alert.Revision++

		m.publishAlert(ctx, events.AlertResolvedEvent, alert)
	}

	next := make(index, len(current))
	for id, existing := range current {
		if id != integrationID {
			next[id] = existing
		}
	}

	m.trackers.Store(&next)

	if m.observer != nil {
		m.observer.HealthForgotten(integrationID)
	}

	m.logger.InfoContext(ctx, "Integration forgotten", "integration_id", integrationID)
}

func (m *Monitor) endpoint(ctx context.Context, integrationID string) string {
	if m.integrations == nil {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	integration, err := m.integrations.Get(ctx, integrationID)
	if err != nil {
		return ""
	}

	return integration.Endpoint
}

func (m *Monitor) publishAlert(ctx context.Context, eventType events.EventType, alert *models.Alert) {
	m.publish(ctx, alert.IntegrationID, &events.AlertChanged{
		BaseEvent: events.NewBaseEvent(eventType, alert.IntegrationID, alert.Revision),
		Alert:     *alert,
	})
}

func (m *Monitor) publish(ctx context.Context, key string, event events.Event) {
	if m.publisher == nil {
		return
	}

	err := m.publisher.Publish(ctx, key, event)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func severityRank(severity models.AlertSeverity) int {
	switch severity {
	case models.AlertSeverityCritical:
		return 3
	case models.AlertSeverityHigh:
		return 2
	case models.AlertSeverityMedium:
		return 1
	default:
		return 0
	}
}
