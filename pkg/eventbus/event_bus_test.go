package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/conduit/pkg/channels/gochannel"
	"github.com/dukex/conduit/pkg/events"
	"github.com/dukex/conduit/pkg/idempotency"
	"github.com/dukex/conduit/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryBus(t *testing.T) EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub, slog.Default())

	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func alertEvent(eventType events.EventType, alertID string, revision int64) *events.AlertChanged {
	return &events.AlertChanged{
		BaseEvent: events.NewBaseEvent(eventType, "int-1", revision),
		Alert:     models.Alert{ID: alertID, IntegrationID: "int-1", Revision: revision},
	}
}

func TestWatermillEventBus_PerEntityOrder(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newMemoryBus(t)

	var (
		mu       sync.Mutex
		received []events.EventType
		done     = make(chan struct{})
	)

	require.NoError(t, bus.HandleAll(func(_ context.Context, event events.Event) error {
		mu.Lock()
		defer mu.Unlock()

		received = append(received, event.GetType())
		if len(received) == 3 {
			close(done)
		}

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	for i, eventType := range []events.EventType{events.AlertRaisedEvent, events.AlertEscalatedEvent, events.AlertResolvedEvent} {
		require.NoError(t, bus.Publish(ctx, "int-1", alertEvent(eventType, "alert-1", int64(i+1))))
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("events were not delivered")
	}

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, []events.EventType{events.AlertRaisedEvent, events.AlertEscalatedEvent, events.AlertResolvedEvent}, received)
}

func TestWatermillEventBus_RedeliversOnFailure(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newMemoryBus(t)

	var (
		attempts atomic.Int32
		handled  = make(chan *events.AlertChanged, 1)
	)

	require.NoError(t, bus.Handle(events.AlertRaisedEvent, func(_ context.Context, event events.Event) error {
		if attempts.Add(1) == 1 {
			return errors.New("store unavailable")
		}

		alert, _ := event.(*events.AlertChanged)
		handled <- alert

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	require.NoError(t, bus.Publish(ctx, "int-1", alertEvent(events.AlertRaisedEvent, "alert-7", 1)))

	select {
	case alert := <-handled:
		assert.Equal(t, "alert-7", alert.Alert.ID)
		assert.GreaterOrEqual(t, attempts.Load(), int32(2))
	case <-time.After(5 * time.Second):
		t.Fatal("event was not redelivered")
	}
}

func TestRouter_HandleRejectsUnknownType(t *testing.T) {
	t.Parallel()

	r := newRouter()

	err := r.Handle("bogus.event", func(context.Context, events.Event) error { return nil })
	require.ErrorIs(t, err, ErrUnknownEventType)
}

func TestRouter_DispatchMalformed(t *testing.T) {
	t.Parallel()

	r := newRouter()
	require.NoError(t, r.HandleAll(func(context.Context, events.Event) error { return nil }))

	err := r.dispatch(context.Background(), events.AlertRaisedEvent, []byte("{not json"))
	require.ErrorIs(t, err, errMalformed)

	err = r.dispatch(context.Background(), "bogus.event", []byte("{}"))
	require.ErrorIs(t, err, errMalformed)
}

func TestDeduplicate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := idempotency.NewMemoryStore()

	var calls atomic.Int32

	failNext := atomic.Bool{}
	handler := Deduplicate(store, "alerts", time.Minute, func(context.Context, events.Event) error {
		calls.Add(1)

		if failNext.Swap(false) {
			return errors.New("boom")
		}

		return nil
	})

	raised := alertEvent(events.AlertRaisedEvent, "alert-1", 1)

	require.NoError(t, handler(ctx, raised))
	require.NoError(t, handler(ctx, raised))
	assert.Equal(t, int32(1), calls.Load(), "duplicate delivery is dropped")

	escalated := *raised
	escalated.Version = 2

	failNext.Store(true)
	require.Error(t, handler(ctx, &escalated))
	require.NoError(t, handler(ctx, &escalated), "failed delivery can be retried")
	assert.Equal(t, int32(3), calls.Load())

	other := Deduplicate(store, "stream", time.Minute, func(context.Context, events.Event) error {
		calls.Add(1)

		return nil
	})
	require.NoError(t, other(ctx, raised))
	assert.Equal(t, int32(4), calls.Load(), "keys are scoped per handler")
}

func TestEvents_New(t *testing.T) {
	t.Parallel()

	for _, eventType := range []events.EventType{
		events.IntegrationCreatedEvent, events.IntegrationUpdatedEvent, events.IntegrationDeletedEvent,
		events.IntegrationDeployedEvent, events.WorkflowSavedEvent, events.WorkflowDeletedEvent,
		events.VersionCommittedEvent, events.RunStartedEvent, events.RunFinishedEvent, events.NodeFinishedEvent,
		events.HealthChangedEvent, events.AlertRaisedEvent, events.AlertEscalatedEvent, events.AlertResolvedEvent,
		events.AlertAcknowledgedEvent, events.NotificationRequestedEvent,
	} {
		event, ok := events.New(eventType)
		assert.True(t, ok, eventType)
		assert.NotNil(t, event, eventType)
	}
}
