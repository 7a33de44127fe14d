package web

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukex/conduit/pkg/events"
	"github.com/gofiber/fiber/v3"
)

const (
	defaultStreamBuffer = 64
	streamHeartbeat     = 15 * time.Second
)

type subscriber struct {
	events chan events.Event
	types  map[events.EventType]bool
}

// Broadcaster fans bus events out to the connected stream clients. A client
// that does not keep up loses events instead of slowing the bus down.
type Broadcaster struct {
	logger  *slog.Logger
	buffer  int
	dropped atomic.Int64

	mu          sync.RWMutex
	subscribers map[uint64]*subscriber
	next        uint64
	closed      bool
}

// NewBroadcaster creates a broadcaster whose clients buffer up to buffer events.
func NewBroadcaster(logger *slog.Logger, buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = defaultStreamBuffer
	}

	return &Broadcaster{
		logger:      logger.With("module", "stream"),
		buffer:      buffer,
		subscribers: make(map[uint64]*subscriber),
	}
}

// Handle delivers event to every subscriber interested in its type. It is
// registered on the bus with HandleAll.
func (b *Broadcaster) Handle(_ context.Context, event events.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if len(sub.types) > 0 && !sub.types[event.GetType()] {
			continue
		}

		select {
		case sub.events <- event:
		default:
			b.dropped.Add(1)
			b.logger.Debug("Dropped event for slow stream client", "event_type", event.GetType())
		}
	}

	return nil
}

// Subscribe registers a client. An empty types list receives every event.
// The returned function unsubscribes; the channel is closed by it or by Close.
func (b *Broadcaster) Subscribe(types []events.EventType) (<-chan events.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan events.Event, b.buffer)
	if b.closed {
		close(ch)

		return ch, func() {}
	}

	sub := &subscriber{events: ch, types: make(map[events.EventType]bool, len(types))}
	for _, t := range types {
		sub.types[t] = true
	}

	id := b.next
	b.next++
	b.subscribers[id] = sub

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			if _, ok := b.subscribers[id]; ok {
				delete(b.subscribers, id)
				close(ch)
			}
		})
	}
}

// Subscribers returns the number of connected clients.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subscribers)
}

// Dropped returns how many events were lost to slow clients.
func (b *Broadcaster) Dropped() int64 {
	return b.dropped.Load()
}

// Close disconnects every client.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true

	for id, sub := range b.subscribers {
		delete(b.subscribers, id)
		close(sub.events)
	}
}

// Stream pushes bus events to the client as Server-Sent Events. The
// optional types query parameter is a comma separated list of event types.
func (h *APIHandlers) Stream(c fiber.Ctx) error {
	if h.stream == nil {
		return notFound(c, "not_found", "Event stream is disabled")
	}

	var types []events.EventType

	for _, t := range strings.Split(c.Query("types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, events.EventType(t))
		}
	}

	ch, unsubscribe := h.stream.Subscribe(types)
	logger := h.logger

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()

		heartbeat := time.NewTicker(streamHeartbeat)
		defer heartbeat.Stop()

		if _, err := w.WriteString(": connected\n\n"); err != nil || w.Flush() != nil {
			return
		}

		for {
			select {
			case <-heartbeat.C:
				if _, err := w.WriteString(": ping\n\n"); err != nil || w.Flush() != nil {
					return
				}
			case event, ok := <-ch:
				if !ok {
					return
				}

				if err := writeEvent(w, event); err != nil {
					logger.Debug("Stream client gone", "error", err)

					return
				}
			}
		}
	})
}

// writeEvent writes one event in the text/event-stream format and flushes it.
func writeEvent(w *bufio.Writer, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	base := event.GetBase()

	if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", base.ID, base.Type, data); err != nil {
		return err
	}

	return w.Flush()
}
