package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukex/conduit/pkg/events"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	natsStream        = "CONDUIT_EVENTS"
	natsSubjectPrefix = "conduit.events."
)

// NATSEventBus publishes events to a JetStream stream. A durable consumer
// with a single outstanding message keeps delivery ordered and redelivers
// anything that is not acknowledged.
type NATSEventBus struct {
	*router

	conn     *nats.Conn
	js       jetstream.JetStream
	consumer string
	logger   *slog.Logger
	consume  jetstream.ConsumeContext
}

// NewNATSEventBus creates the bus on top of an open connection. serviceName
// names the durable consumer, so every service receives every event once.
func NewNATSEventBus(ctx context.Context, conn *nats.Conn, serviceName string, logger *slog.Logger) (*NATSEventBus, error) {
	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream instance: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       natsStream,
		Subjects:   []string{natsSubjectPrefix + ">"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     7 * 24 * time.Hour,
		Duplicates: 10 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure stream %s: %w", natsStream, err)
	}

	return &NATSEventBus{
		router:   newRouter(),
		conn:     conn,
		js:       js,
		consumer: "cg-" + serviceName,
		logger:   logger,
	}, nil
}

func (eb *NATSEventBus) GenerateID() string {
	return uuid.New().String()
}

func (eb *NATSEventBus) Publish(ctx context.Context, key string, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	base := event.GetBase()

	msg := nats.NewMsg(natsSubjectPrefix + string(event.GetType()))
	msg.Data = payload
	msg.Header.Set(events.EventMetadataKey, key)
	msg.Header.Set(events.EventTypeMetadataKey, string(event.GetType()))
	msg.Header.Set(events.EventIDMetadataKey, base.ID)
	msg.Header.Set(events.EventVersionMetadataKey, strconv.FormatInt(base.Version, 10))

	_, err = eb.js.PublishMsg(ctx, msg, jetstream.WithMsgID(base.DedupKey()))
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.GetType(), err)
	}

	return nil
}

func (eb *NATSEventBus) Subscribe(ctx context.Context) error {
	consumer, err := eb.js.CreateOrUpdateConsumer(ctx, natsStream, jetstream.ConsumerConfig{
		Name:          eb.consumer,
		Durable:       eb.consumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		MaxAckPending: 1,
		AckWait:       30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer %s: %w", eb.consumer, err)
	}

	consume, err := consumer.Consume(func(msg jetstream.Msg) {
		eventType := events.EventType(msg.Headers().Get(events.EventTypeMetadataKey))

		err := eb.dispatch(ctx, eventType, msg.Data())

		switch {
		case err == nil:
			_ = msg.Ack()
		case errors.Is(err, errMalformed):
			eb.logger.ErrorContext(ctx, "Dropping malformed event", "event_type", eventType, "error", err)
			_ = msg.Term()
		default:
			eb.logger.WarnContext(ctx, "Event handler failed, requesting redelivery",
				"event_type", eventType,
				"key", msg.Headers().Get(events.EventMetadataKey),
				"error", err,
			)
			_ = msg.NakWithDelay(time.Second)
		}
	}, jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
		eb.logger.ErrorContext(ctx, "NATS consume error", "error", err)
	}))
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	eb.consume = consume

	go func() {
		<-ctx.Done()
		consume.Stop()
	}()

	return nil
}

func (eb *NATSEventBus) Close() error {
	if eb.consume != nil {
		eb.consume.Stop()
	}

	return eb.conn.Drain()
}
