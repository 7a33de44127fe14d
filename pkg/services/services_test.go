package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/dukex/conduit/pkg/events"
	"github.com/dukex/conduit/pkg/idempotency"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence/file"
	"github.com/dukex/conduit/pkg/protocol"
	"github.com/dukex/conduit/pkg/registry"
	"github.com/dukex/conduit/pkg/versioning"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *recordingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()

	types := make([]events.EventType, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.GetType())
	}

	return types
}

type healthStub struct {
	mu        sync.Mutex
	states    map[string]models.HealthState
	forgotten []string
	samples   []models.Sample
}

func (h *healthStub) Snapshot(id string) (models.HealthSnapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	state, ok := h.states[id]

	return models.HealthSnapshot{IntegrationID: id, State: state}, ok
}

func (h *healthStub) Forget(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.forgotten = append(h.forgotten, id)
}

func (h *healthStub) Record(sample models.Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.samples = append(h.samples, sample)
}

type fixture struct {
	persistence  *file.Persistence
	store        *versioning.Store
	publisher    *recordingPublisher
	registry     *registry.Registry
	integrations *Integrations
	workflows    *Workflow
	versions     *Versions
}

func newFixture(t *testing.T, opts ...IntegrationsOption) *fixture {
	t.Helper()

	logger := slog.Default()
	p := file.NewPersistence(t.TempDir())
	store := versioning.NewStore(p.VersionRepository(), logger)
	publisher := &recordingPublisher{}

	r := registry.NewRegistry(logger)
	r.RegisterDefaultNodes(protocol.Dependencies{
		Logger:      logger,
		Idempotency: idempotency.NewMemoryStore(),
	})

	return &fixture{
		persistence:  p,
		store:        store,
		publisher:    publisher,
		registry:     r,
		integrations: NewIntegrations(logger, store, publisher, opts...),
		workflows:    NewWorkflow(logger, p, store, r, publisher),
		versions:     NewVersions(logger, store, publisher),
	}
}

func fieldCodes(t *testing.T, err error) map[string]string {
	t.Helper()

	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected a validation error, got %v", err)

	codes := make(map[string]string, len(verr.Fields))
	for _, field := range verr.Fields {
		codes[field.Field] = field.Code
	}

	return codes
}
