package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/conduit/pkg/channels/gochannel"
	"github.com/dukex/conduit/pkg/channels/kafka"
	"github.com/dukex/conduit/pkg/channels/nats"
	"github.com/dukex/conduit/pkg/eventbus"
)

// EventBusConfig selects and configures the event bus backend.
type EventBusConfig struct {
	Provider    string
	ServiceName string
	Brokers     string
	NATSURL     string
}

// NewEventBus creates the bus for provider: memory, kafka or nats.
func NewEventBus(ctx context.Context, config EventBusConfig, logger *slog.Logger) (eventbus.EventBus, error) {
	watermillLogger := watermill.NewSlogLogger(logger)

	switch config.Provider {
	case "", "memory":
		pub, sub, err := gochannel.CreateChannel(watermillLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermillLogger, splitList(config.Brokers), config.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	case "nats":
		conn, err := nats.Connect(config.NATSURL, config.ServiceName, logger)
		if err != nil {
			return nil, err
		}

		bus, err := eventbus.NewNATSEventBus(ctx, conn, config.ServiceName, logger)
		if err != nil {
			conn.Close()

			return nil, err
		}

		return bus, nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", config.Provider)
	}
}

func splitList(value string) []string {
	var items []string

	for item := range strings.SplitSeq(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}

	return items
}
