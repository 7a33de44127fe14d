package web_test

import (
	"log/slog"
	"testing"

	"github.com/dukex/conduit/pkg/events"
	"github.com/dukex/conduit/pkg/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func savedEvent(id string) events.Event {
	return &events.WorkflowChanged{BaseEvent: events.NewBaseEvent(events.WorkflowSavedEvent, id, 1)}
}

func TestBroadcaster_FiltersByType(t *testing.T) {
	t.Parallel()

	b := web.NewBroadcaster(slog.Default(), 4)
	defer b.Close()

	all, unsubscribeAll := b.Subscribe(nil)
	defer unsubscribeAll()

	alerts, unsubscribeAlerts := b.Subscribe([]events.EventType{events.AlertRaisedEvent})
	defer unsubscribeAlerts()

	require.NoError(t, b.Handle(t.Context(), savedEvent("wf-1")))

	select {
	case event := <-all:
		assert.Equal(t, events.WorkflowSavedEvent, event.GetType())
	default:
		t.Fatal("subscriber without filter should receive the event")
	}

	assert.Empty(t, alerts)
}

func TestBroadcaster_DropsForSlowClients(t *testing.T) {
	t.Parallel()

	b := web.NewBroadcaster(slog.Default(), 1)
	defer b.Close()

	ch, unsubscribe := b.Subscribe(nil)
	defer unsubscribe()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, b.Handle(t.Context(), savedEvent(id)))
	}

	assert.Len(t, ch, 1)
	assert.Equal(t, int64(2), b.Dropped())
	assert.Equal(t, "a", (<-ch).GetBase().EntityID)
}

func TestBroadcaster_UnsubscribeAndClose(t *testing.T) {
	t.Parallel()

	b := web.NewBroadcaster(slog.Default(), 0)

	ch, unsubscribe := b.Subscribe(nil)
	assert.Equal(t, 1, b.Subscribers())

	unsubscribe()
	unsubscribe()

	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, b.Subscribers())

	other, _ := b.Subscribe(nil)
	b.Close()
	b.Close()

	_, open = <-other
	assert.False(t, open)

	late, _ := b.Subscribe(nil)
	_, open = <-late
	assert.False(t, open)
	assert.NoError(t, b.Handle(t.Context(), savedEvent("wf")))
}
