package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/dukex/conduit/pkg/cmd"
	"github.com/dukex/conduit/pkg/connector"
	"github.com/dukex/conduit/pkg/engine"
	"github.com/dukex/conduit/pkg/log"
	"github.com/dukex/conduit/pkg/monitor"
	"github.com/dukex/conduit/pkg/otelhelper"
	"github.com/urfave/cli/v3"
)

const serviceName = "conduit-api"

func RunAPICommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start api",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for persistence (postgres://... or a directory)",
				Value:   "./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (memory, kafka, nats)",
				Value:   "memory",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				Sources: cli.EnvVars("NATS_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the idempotency store; in-memory when empty",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.DurationFlag{
				Name:    "probe-interval",
				Usage:   "Interval between health probes of active integrations; 0 disables probing",
				Value:   time.Minute,
				Sources: cli.EnvVars("PROBE_INTERVAL"),
			},
			&cli.StringFlag{
				Name:    "monitor-config",
				Usage:   "YAML file with health thresholds",
				Sources: cli.EnvVars("MONITOR_CONFIG"),
			},
			&cli.IntFlag{
				Name:    "max-parallelism",
				Usage:   "Maximum nodes of one run executing at the same time",
				Value:   engine.DefaultMaxParallelism,
				Sources: cli.EnvVars("MAX_PARALLELISM"),
			},
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("api")

			logger.InfoContext(ctx, "Initializing Conduit API")

			deps := Dependencies{
				Logger:        logger,
				Connector:     connector.New(logger, &http.Client{}),
				ProbeInterval: command.Duration("probe-interval"),
				Engine:        engine.Config{MaxParallelism: command.Int("max-parallelism")},
				OnCorruption: func(err error) {
					logger.Error("Version store is corrupted, stopping", "error", err)
					os.Exit(2)
				},
			}

			monitorConfig, err := monitor.LoadConfig(command.String("monitor-config"))
			if err != nil {
				return err
			}

			deps.MonitorConfig = monitorConfig

			if command.Bool("otel-enabled") {
				tracer, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
				if err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}

				defer func() {
					if err := shutdown(context.Background()); err != nil {
						logger.Error("Failed to shutdown tracer provider", "error", err)
					}
				}()

				deps.Tracer = tracer
			}

			deps.Persistence, err = cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := deps.Persistence.Close(context.Background()); err != nil {
					logger.Error("Failed to close persistence", "error", err)
				}
			}()

			deps.Bus, err = cmd.NewEventBus(ctx, cmd.EventBusConfig{
				Provider:    command.String("event-bus"),
				ServiceName: serviceName,
				Brokers:     command.String("kafka-brokers"),
				NATSURL:     command.String("nats-url"),
			}, logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := deps.Bus.Close(); err != nil {
					logger.Error("Failed to close event bus", "error", err)
				}
			}()

			store, release, err := cmd.NewIdempotencyStore(ctx, logger, command.String("redis-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := release(); err != nil {
					logger.Error("Failed to close idempotency store", "error", err)
				}
			}()

			deps.Idempotency = store

			api, err := NewAPI(deps)
			if err != nil {
				return err
			}

			return api.Start(ctx, command.Int("port"))
		},
	}
}
