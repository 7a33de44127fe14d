// Package eventbus delivers events between the registry, the engine, the
// health monitor and their consumers with at-least-once semantics.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dukex/conduit/pkg/events"
)

var (
	ErrUnknownEventType = errors.New("unknown event type")

	// errMalformed marks messages that can never be handled; they are
	// acknowledged and logged instead of redelivered.
	errMalformed = errors.New("malformed event")
)

type EventPublisher interface {
	// Publish sends event keyed by key. Events sharing a key are delivered in
	// publish order.
	Publish(ctx context.Context, key string, event events.Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	HandleAll(handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler processes one event. Returning an error causes redelivery.
type EventHandler func(ctx context.Context, event events.Event) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}

// router keeps the handlers of a bus and dispatches decoded events to them.
type router struct {
	mu       sync.RWMutex
	handlers map[events.EventType][]EventHandler
	all      []EventHandler
}

func newRouter() *router {
	return &router{handlers: make(map[events.EventType][]EventHandler)}
}

func (r *router) Handle(eventType events.EventType, handler EventHandler) error {
	if _, ok := events.New(eventType); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[eventType] = append(r.handlers[eventType], handler)

	return nil
}

func (r *router) HandleAll(handler EventHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.all = append(r.all, handler)

	return nil
}

func (r *router) subscribed(eventType events.EventType) []EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handlers := make([]EventHandler, 0, len(r.handlers[eventType])+len(r.all))
	handlers = append(handlers, r.handlers[eventType]...)
	handlers = append(handlers, r.all...)

	return handlers
}

// dispatch decodes payload and runs every subscribed handler.
func (r *router) dispatch(ctx context.Context, eventType events.EventType, payload []byte) error {
	handlers := r.subscribed(eventType)
	if len(handlers) == 0 {
		return nil
	}

	event, ok := events.New(eventType)
	if !ok {
		return fmt.Errorf("%w: %w: %s", errMalformed, ErrUnknownEventType, eventType)
	}

	err := json.Unmarshal(payload, event)
	if err != nil {
		return fmt.Errorf("%w: failed to decode %s: %w", errMalformed, eventType, err)
	}

	var errs []error

	for _, handler := range handlers {
		err := handler(ctx, event)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
