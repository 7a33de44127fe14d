package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/conduit/pkg/events"
)

type WatermillEventBus struct {
	*router

	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber, logger *slog.Logger) EventBus {
	return &WatermillEventBus{
		router:     newRouter(),
		publisher:  pub,
		subscriber: sub,
		logger:     logger,
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	base := event.GetBase()

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))
	msg.Metadata.Set(events.EventIDMetadataKey, base.ID)
	msg.Metadata.Set(events.EventVersionMetadataKey, strconv.FormatInt(base.Version, 10))
	msg.SetContext(ctx)

	return eb.publisher.Publish(events.Topic, msg)
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

			err := eb.dispatch(ctx, eventType, msg.Payload)

			switch {
			case err == nil:
				msg.Ack()
			case errors.Is(err, errMalformed):
				eb.logger.ErrorContext(ctx, "Dropping malformed event",
					"message_id", msg.UUID,
					"event_type", eventType,
					"error", err,
				)
				msg.Ack()
			default:
				eb.logger.WarnContext(ctx, "Event handler failed, requesting redelivery",
					"message_id", msg.UUID,
					"event_type", eventType,
					"key", msg.Metadata.Get(events.EventMetadataKey),
					"error", err,
				)
				msg.Nack()
			}
		}
	}()

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
