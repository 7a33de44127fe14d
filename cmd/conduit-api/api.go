// Package main provides the Conduit API server implementation.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukex/conduit/pkg/cmd"
	"github.com/dukex/conduit/pkg/connector"
	"github.com/dukex/conduit/pkg/engine"
	"github.com/dukex/conduit/pkg/eventbus"
	"github.com/dukex/conduit/pkg/idempotency"
	"github.com/dukex/conduit/pkg/metrics"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/monitor"
	"github.com/dukex/conduit/pkg/persistence"
	"github.com/dukex/conduit/pkg/protocol"
	"github.com/dukex/conduit/pkg/registry"
	"github.com/dukex/conduit/pkg/services"
	"github.com/dukex/conduit/pkg/versioning"
	"github.com/dukex/conduit/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Dependencies are the infrastructure pieces the API is assembled from.
type Dependencies struct {
	Logger        *slog.Logger
	Persistence   persistence.Persistence
	Bus           eventbus.EventBus
	Idempotency   idempotency.Store
	Connector     *connector.Client
	MonitorConfig monitor.Config
	Tracer        trace.Tracer
	Engine        engine.Config
	ProbeInterval time.Duration
	OnCorruption  func(error)
}

// integrationLookup adapts a function to protocol.IntegrationLookup.
type integrationLookup func(ctx context.Context, id string) (*models.Integration, error)

func (f integrationLookup) Get(ctx context.Context, id string) (*models.Integration, error) {
	return f(ctx, id)
}

type API struct {
	logger   *slog.Logger
	bus      eventbus.EventBus
	registry *registry.Registry
	monitor  *monitor.Monitor
	prober   *monitor.Prober
	engine   *engine.Engine
	stream   *web.Broadcaster
	handlers *web.APIHandlers
	services web.Services
}

// NewAPI wires services, engine, monitor and bus consumers together.
func NewAPI(deps Dependencies) (*API, error) {
	log := deps.Logger
	metricsCollector := metrics.New()
	store := versioning.NewStore(deps.Persistence.VersionRepository(), log)

	var integrations *services.Integrations

	healthMonitor := monitor.New(log, deps.MonitorConfig,
		monitor.WithPublisher(deps.Bus),
		monitor.WithObserver(metricsCollector),
		monitor.WithIntegrations(integrationLookup(func(ctx context.Context, id string) (*models.Integration, error) {
			return integrations.Get(ctx, id)
		})),
	)

	integrations = services.NewIntegrations(log, store, deps.Bus,
		services.WithConnector(deps.Connector),
		services.WithSamples(healthMonitor),
		services.WithHealth(healthMonitor),
	)

	nodes := cmd.NewRegistry(log, protocol.Dependencies{
		Logger:       log,
		Connector:    deps.Connector,
		Idempotency:  deps.Idempotency,
		Integrations: integrations,
		Samples:      healthMonitor,
		Publisher:    deps.Bus,
	})

	engineOptions := []engine.Option{
		engine.WithRunStore(deps.Persistence.RunRepository()),
		engine.WithPublisher(deps.Bus),
		engine.WithObserver(metricsCollector),
		engine.WithConfig(deps.Engine),
	}
	if deps.Tracer != nil {
		engineOptions = append(engineOptions, engine.WithTracer(deps.Tracer))
	}

	runEngine := engine.New(log, nodes, engineOptions...)

	workflows := services.NewWorkflow(log, deps.Persistence, store, nodes, deps.Bus)
	alerts := services.NewAlerts(log, deps.Persistence.AlertRepository(), deps.Bus)

	svc := web.Services{
		Integrations: integrations,
		Workflows:    workflows,
		Publishing:   services.NewPublishing(workflows),
		Nodes:        services.NewNode(workflows),
		Versions:     services.NewVersions(log, store, deps.Bus),
		Executions:   services.NewExecutions(log, workflows, runEngine, deps.Persistence.RunRepository()),
		Alerts:       alerts,
	}

	err := alerts.Subscribe(deps.Bus, deps.Idempotency)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe alerts: %w", err)
	}

	stream := web.NewBroadcaster(log, 0)

	err = deps.Bus.HandleAll(stream.Handle)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe event stream: %w", err)
	}

	handlerOptions := []web.Option{
		web.WithHealth(healthMonitor),
		web.WithStream(stream),
		web.WithMetrics(metricsCollector.Handler()),
	}
	if deps.OnCorruption != nil {
		handlerOptions = append(handlerOptions, web.WithCorruptionHandler(deps.OnCorruption))
	}

	api := &API{
		logger:   log,
		bus:      deps.Bus,
		registry: nodes,
		monitor:  healthMonitor,
		engine:   runEngine,
		stream:   stream,
		services: svc,
		handlers: web.NewAPIHandlers(
			log,
			svc,
			validator.New(validator.WithRequiredStructEnabled()),
			nodes,
			handlerOptions...,
		),
	}

	if deps.ProbeInterval > 0 {
		api.prober = monitor.NewProber(log, deps.Connector, integrations, healthMonitor, deps.ProbeInterval)
	}

	return api, nil
}

func (a *API) App() *fiber.App {
	app := fiber.New()
	app.Use(recoverer.New())
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.LivenessEndpoint, healthcheck.New())
	app.Get(healthcheck.ReadinessEndpoint, healthcheck.New(healthcheck.Config{
		Probe: a.handlers.Ready,
	}))

	a.handlers.Mount(app)

	return app
}

// Start runs the monitor, the prober and the bus consumers, then serves
// HTTP until ctx is cancelled.
func (a *API) Start(ctx context.Context, port int) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.monitor.Run(ctx)
	})

	err := a.bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	if a.prober != nil {
		err = a.prober.Start(ctx)
		if err != nil {
			return fmt.Errorf("failed to start prober: %w", err)
		}
	}

	app := a.App()

	g.Go(func() error {
		a.logger.InfoContext(ctx, "Conduit API listening", "port", port)

		return app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{
			DisableStartupMessage: true,
			GracefulContext:       ctx,
			ShutdownTimeout:       shutdownTimeout,
		})
	})

	err = g.Wait()

	a.shutdown()

	return err
}

func (a *API) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.stream.Close()

	if a.prober != nil {
		err := a.prober.Stop(ctx)
		if err != nil {
			a.logger.ErrorContext(ctx, "Failed to stop prober", "error", err)
		}
	}

	err := a.engine.Shutdown(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to drain running workflows", "error", err)
	}
}
