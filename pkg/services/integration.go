package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dukex/conduit/pkg/connector"
	"github.com/dukex/conduit/pkg/eventbus"
	"github.com/dukex/conduit/pkg/events"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
	"github.com/dukex/conduit/pkg/versioning"
	"github.com/google/uuid"
)

const testExcerptLimit = 2048

// HealthTracker exposes the derived health of integrations.
type HealthTracker interface {
	Snapshot(integrationID string) (models.HealthSnapshot, bool)
	Forget(integrationID string)
}

// Integrations is the integration registry. Every change is committed as a
// new immutable version; nothing is mutated in place.
type Integrations struct {
	history

	connector *connector.Client
	samples   protocol.SampleRecorder
	health    HealthTracker
	now       func() time.Time
}

type IntegrationsOption func(*Integrations)

// WithConnector enables Test.
func WithConnector(client *connector.Client) IntegrationsOption {
	return func(s *Integrations) { s.connector = client }
}

// WithSamples receives the samples of test calls.
func WithSamples(recorder protocol.SampleRecorder) IntegrationsOption {
	return func(s *Integrations) { s.samples = recorder }
}

// WithHealth enables health filtering and forgets deleted integrations.
func WithHealth(health HealthTracker) IntegrationsOption {
	return func(s *Integrations) { s.health = health }
}

// NewIntegrations creates a new integration registry.
func NewIntegrations(
	logger *slog.Logger,
	store *versioning.Store,
	publisher eventbus.EventPublisher,
	opts ...IntegrationsOption,
) *Integrations {
	s := &Integrations{
		history: history{
			logger:    logger.With("module", "integrations"),
			store:     store,
			publisher: publisher,
		},
		now: func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// normalize fills defaults the dashboard leaves out.
func normalize(integration *models.Integration) {
	integration.Name = strings.TrimSpace(integration.Name)
	integration.Endpoint = strings.TrimSpace(integration.Endpoint)
	integration.Method = strings.ToUpper(strings.TrimSpace(integration.Method))

	if integration.Method == "" {
		integration.Method = "GET"
	}

	if integration.Auth.Type == "" {
		integration.Auth.Type = models.AuthTypeNone
	}

	if integration.Timeout == 0 {
		integration.Timeout = 30
	}

	if integration.Environment == "" {
		integration.Environment = models.EnvironmentDevelopment
	}

	if integration.Status == "" {
		integration.Status = models.IntegrationStatusActive
	}

	if integration.RateLimit.Enabled && integration.RateLimit.Window == "" {
		integration.RateLimit.Window = "minute"
	}
}

// Create validates integration and commits it as version 1.
func (s *Integrations) Create(ctx context.Context, integration *models.Integration, author string) (*models.Integration, error) {
	if integration == nil {
		return nil, fmt.Errorf("integration cannot be nil: %w", ErrInvalidRequest)
	}

	next := *integration
	normalize(&next)

	if next.ID == "" {
		next.ID = uuid.New().String()
	}

	now := s.now()
	next.Version = 1
	next.CreatedAt = now
	next.UpdatedAt = now
	next.CreatedBy = author
	next.UpdatedBy = author

	err := validateIntegration("Create", &next)
	if err != nil {
		return nil, err
	}

	_, err = s.commit(ctx, models.EntityKindIntegration, next.ID, 0, &next, author, "Created")
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Integration created", "integration_id", next.ID, "name", next.Name)
	s.announce(ctx, events.IntegrationCreatedEvent, &next, author)

	return &next, nil
}

// Get returns the current version of an integration.
func (s *Integrations) Get(ctx context.Context, id string) (*models.Integration, error) {
	head, err := s.store.Head(ctx, models.EntityKindIntegration, id)
	if err != nil {
		return nil, notFound(err, ErrIntegrationNotFound)
	}

	return decodeIntegration(head)
}

// Update commits update as version expectedVersion+1. A writer whose
// expectedVersion is no longer the head gets ErrVersionConflict and nothing
// is stored.
func (s *Integrations) Update(
	ctx context.Context,
	id string,
	expectedVersion int64,
	update *models.Integration,
	author, note string,
) (*models.Integration, error) {
	if update == nil {
		return nil, fmt.Errorf("integration cannot be nil: %w", ErrInvalidRequest)
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *update
	normalize(&next)

	return s.replace(ctx, "Update", current, &next, expectedVersion, author, note, events.IntegrationUpdatedEvent)
}

func (s *Integrations) replace(
	ctx context.Context,
	op string,
	current, next *models.Integration,
	expectedVersion int64,
	author, note string,
	eventType events.EventType,
) (*models.Integration, error) {
	if expectedVersion != current.Version {
		return nil, conflict(models.EntityKindIntegration, current.ID, expectedVersion, current.Version)
	}

	next.KeepSecrets(current)
	next.ID = current.ID
	next.Version = expectedVersion + 1
	next.CreatedAt = current.CreatedAt
	next.CreatedBy = current.CreatedBy
	next.UpdatedAt = s.now()
	next.UpdatedBy = author

	err := validateIntegration(op, next)
	if err != nil {
		return nil, err
	}

	_, err = s.commit(ctx, models.EntityKindIntegration, next.ID, expectedVersion, next, author, note)
	if err != nil {
		return nil, err
	}

	s.announce(ctx, eventType, next, author)

	return next, nil
}

// Delete tombstones an integration. Its history stays readable. An
// expectedVersion of 0 deletes whatever the head is.
func (s *Integrations) Delete(ctx context.Context, id string, expectedVersion int64, author string) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if expectedVersion == 0 {
		expectedVersion = current.Version
	}

	err = s.store.Delete(ctx, models.EntityKindIntegration, id, expectedVersion)
	if err != nil {
		return err
	}

	if s.health != nil {
		s.health.Forget(id)
	}

	s.logger.InfoContext(ctx, "Integration deleted", "integration_id", id, "author", author)
	s.announce(ctx, events.IntegrationDeletedEvent, current, author)

	return nil
}

// ListIntegrationsRequest contains options for listing integrations.
type ListIntegrationsRequest struct {
	// Pagination
	Limit  int
	Offset int

	// Filtering
	Status      models.IntegrationStatus
	Health      models.HealthState
	Environment models.Environment
	Tag         string
	Search      string

	// Sorting
	SortBy    string
	SortOrder string
}

// ListIntegrationsResponse contains the result of listing integrations.
type ListIntegrationsResponse struct {
	Integrations []*models.Integration `json:"integrations"`
	TotalCount   int64                 `json:"total_count"`
	HasNextPage  bool                  `json:"has_next_page"`
}

// List retrieves integrations with filtering, sorting, and pagination.
func (s *Integrations) List(ctx context.Context, req ListIntegrationsRequest) (*ListIntegrationsResponse, error) {
	err := validateListRequest("ListIntegrations", &req.Limit, &req.Offset, &req.SortBy, &req.SortOrder)
	if err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	if req.Status != "" && !slices.Contains(integrationStatuses, req.Status) {
		return nil, NewServiceError("ListIntegrations", "INVALID_STATUS", fmt.Sprintf("invalid status '%s'", req.Status), ErrInvalidStatus)
	}

	all, err := s.all(ctx)
	if err != nil {
		return nil, err
	}

	search := strings.ToLower(strings.TrimSpace(req.Search))

	matched := make([]*models.Integration, 0, len(all))

	for _, integration := range all {
		switch {
		case req.Status != "" && integration.Status != req.Status:
		case req.Environment != "" && integration.Environment != req.Environment:
		case req.Tag != "" && !integration.HasTag(req.Tag):
		case req.Health != "" && s.HealthOf(integration.ID).State != req.Health:
		case search != "" && !matchesSearch(integration, search):
		default:
			matched = append(matched, integration)
		}
	}

	slices.SortStableFunc(matched, func(a, b *models.Integration) int {
		var c int

		switch req.SortBy {
		case "name":
			c = cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		case "updated_at":
			c = a.UpdatedAt.Compare(b.UpdatedAt)
		default:
			c = a.CreatedAt.Compare(b.CreatedAt)
		}

		if req.SortOrder == "desc" {
			return -c
		}

		return c
	})

	page, hasNext := paginate(matched, req.Offset, req.Limit)

	return &ListIntegrationsResponse{
		Integrations: page,
		TotalCount:   int64(len(matched)),
		HasNextPage:  hasNext,
	}, nil
}

var integrationStatuses = []models.IntegrationStatus{
	models.IntegrationStatusActive,
	models.IntegrationStatusInactive,
	models.IntegrationStatusError,
	models.IntegrationStatusTesting,
}

func matchesSearch(integration *models.Integration, search string) bool {
	return strings.Contains(strings.ToLower(integration.Name), search) ||
		strings.Contains(strings.ToLower(integration.Description), search) ||
		strings.Contains(strings.ToLower(integration.Endpoint), search)
}

// ListActive returns every integration whose status is active.
func (s *Integrations) ListActive(ctx context.Context) ([]*models.Integration, error) {
	all, err := s.all(ctx)
	if err != nil {
		return nil, err
	}

	return slices.DeleteFunc(all, func(integration *models.Integration) bool {
		return integration.Status != models.IntegrationStatusActive
	}), nil
}

func (s *Integrations) all(ctx context.Context) ([]*models.Integration, error) {
	heads, err := s.store.Heads(ctx, models.EntityKindIntegration)
	if err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}

	integrations := make([]*models.Integration, 0, len(heads))

	for _, head := range heads {
		integration, err := decodeIntegration(head)
		if err != nil {
			return nil, err
		}

		integrations = append(integrations, integration)
	}

	return integrations, nil
}

// HealthOf returns the current health of an integration. Integrations
// without samples are healthy.
func (s *Integrations) HealthOf(id string) models.HealthSnapshot {
	if s.health != nil {
		if snapshot, ok := s.health.Snapshot(id); ok {
			return snapshot
		}
	}

	return models.HealthSnapshot{IntegrationID: id, State: models.HealthStateHealthy}
}

// BulkStatusResult reports the outcome of BulkSetStatus per integration.
type BulkStatusResult struct {
	Updated   []string          `json:"updated"`
	Unchanged []string          `json:"unchanged"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// BulkSetStatus moves every listed integration to status, each as its own
// version. Failures do not stop the remaining integrations.
func (s *Integrations) BulkSetStatus(
	ctx context.Context,
	ids []string,
	status models.IntegrationStatus,
	author string,
) (*BulkStatusResult, error) {
	if !slices.Contains(integrationStatuses, status) {
		return nil, NewServiceError("BulkSetStatus", "INVALID_STATUS", fmt.Sprintf("invalid status '%s'", status), ErrInvalidStatus)
	}

	if len(ids) == 0 {
		return nil, NewServiceError("BulkSetStatus", "EMPTY_IDS", "at least one integration id is required", ErrInvalidRequest)
	}

	result := &BulkStatusResult{
		Updated:   make([]string, 0, len(ids)),
		Unchanged: make([]string, 0),
		Failed:    make(map[string]string),
	}

	for _, id := range ids {
		current, err := s.Get(ctx, id)
		if err != nil {
			result.Failed[id] = err.Error()

			continue
		}

		if current.Status == status {
			result.Unchanged = append(result.Unchanged, id)

			continue
		}

		next := *current
		next.Status = status

		_, err = s.replace(ctx, "BulkSetStatus", current, &next, current.Version, author, "Status set to "+string(status), events.IntegrationUpdatedEvent)
		if err != nil {
			result.Failed[id] = err.Error()

			continue
		}

		result.Updated = append(result.Updated, id)
	}

	return result, nil
}

// TestResult is the outcome of a single test call.
type TestResult struct {
	IntegrationID string `json:"integration_id"`
	Version       int64  `json:"version"`
	Success       bool   `json:"success"`
	StatusCode    int    `json:"status_code,omitempty"`
	LatencyMs     int64  `json:"latency_ms"`
	Attempts      int    `json:"attempts"`
	Body          string `json:"body,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Test calls the integration once through the connector, with its auth,
// timeout, retry and rate limit, and records the outcome as a test sample.
func (s *Integrations) Test(ctx context.Context, id string) (*TestResult, error) {
	if s.connector == nil {
		return nil, errors.New("integration testing is not configured")
	}

	integration, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	result, callErr := s.connector.Do(ctx, connector.Request{Integration: integration})
	sample := connector.Sample(id, models.SampleSourceTest, result, callErr)

	if s.samples != nil {
		s.samples.Record(sample)
	}

	out := &TestResult{
		IntegrationID: id,
		Version:       integration.Version,
		Success:       callErr == nil,
		StatusCode:    sample.StatusCode,
		LatencyMs:     sample.LatencyMs,
		Body:          result.Excerpt(testExcerptLimit),
	}

	if result != nil {
		out.Attempts = result.Attempts
	}

	if callErr != nil {
		out.Error = callErr.Error()
	}

	s.logger.InfoContext(ctx, "Integration tested", "integration_id", id, "success", out.Success, "status_code", out.StatusCode)

	return out, nil
}

// Deploy commits a version targeting environment and announces the deployment.
func (s *Integrations) Deploy(
	ctx context.Context,
	id string,
	expectedVersion int64,
	environment models.Environment,
	author, note string,
) (*models.Integration, error) {
	if !slices.Contains([]models.Environment{
		models.EnvironmentDevelopment,
		models.EnvironmentStaging,
		models.EnvironmentProduction,
	}, environment) {
		verr := &ValidationError{Op: "Deploy"}
		verr.add("environment", CodeInvalidValue, "must be one of: development staging production")

		return nil, verr
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if note == "" {
		note = "Deployed to " + string(environment)
	}

	next := *current
	next.Environment = environment

	return s.replace(ctx, "Deploy", current, &next, expectedVersion, author, note, events.IntegrationDeployedEvent)
}

func (s *Integrations) announce(ctx context.Context, eventType events.EventType, integration *models.Integration, author string) {
	s.publish(ctx, integration.ID, &events.IntegrationChanged{
		BaseEvent:   events.NewBaseEvent(eventType, integration.ID, integration.Version),
		Integration: integration.Redacted(),
		Author:      author,
	})
}
