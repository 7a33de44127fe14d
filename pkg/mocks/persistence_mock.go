package mocks

import (
	"context"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockVersionRepository is a mock implementation of persistence.VersionRepository interface.
type MockVersionRepository struct {
	mock.Mock
}

var _ persistence.VersionRepository = (*MockVersionRepository)(nil)

func (m *MockVersionRepository) Append(ctx context.Context, version *models.Version, expectedHead int64) error {
	args := m.Called(ctx, version, expectedHead)

	return args.Error(0)
}

func (m *MockVersionRepository) Head(ctx context.Context, kind models.EntityKind, entityID string) (*persistence.EntityHead, error) {
	args := m.Called(ctx, kind, entityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*persistence.EntityHead), args.Error(1)
}

func (m *MockVersionRepository) Get(ctx context.Context, kind models.EntityKind, entityID string, number int64) (*models.Version, error) {
	args := m.Called(ctx, kind, entityID, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Version), args.Error(1)
}

func (m *MockVersionRepository) List(ctx context.Context, kind models.EntityKind, entityID string) ([]*models.Version, error) {
	args := m.Called(ctx, kind, entityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Version), args.Error(1)
}

func (m *MockVersionRepository) ListHeads(ctx context.Context, kind models.EntityKind) ([]*persistence.EntityHead, error) {
	args := m.Called(ctx, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*persistence.EntityHead), args.Error(1)
}

func (m *MockVersionRepository) MarkDeleted(ctx context.Context, kind models.EntityKind, entityID string, expectedHead int64) error {
	args := m.Called(ctx, kind, entityID, expectedHead)

	return args.Error(0)
}

// MockAlertRepository is a mock implementation of persistence.AlertRepository interface.
type MockAlertRepository struct {
	mock.Mock
}

var _ persistence.AlertRepository = (*MockAlertRepository)(nil)

func (m *MockAlertRepository) Save(ctx context.Context, alert *models.Alert, expectedGeneration int64) error {
	args := m.Called(ctx, alert, expectedGeneration)

	return args.Error(0)
}

func (m *MockAlertRepository) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Alert), args.Error(1)
}

func (m *MockAlertRepository) List(ctx context.Context, filter persistence.AlertFilter) ([]*models.Alert, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Alert), args.Error(1)
}

// MockRunRepository is a mock implementation of persistence.RunRepository interface.
type MockRunRepository struct {
	mock.Mock
}

var _ persistence.RunRepository = (*MockRunRepository)(nil)

func (m *MockRunRepository) Save(ctx context.Context, run *models.ExecutionRun) error {
	args := m.Called(ctx, run)

	return args.Error(0)
}

func (m *MockRunRepository) GetByID(ctx context.Context, id string) (*models.ExecutionRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ExecutionRun), args.Error(1)
}

func (m *MockRunRepository) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.ExecutionRun, error) {
	args := m.Called(ctx, workflowID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ExecutionRun), args.Error(1)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	Versions *MockVersionRepository
	Alerts   *MockAlertRepository
	Runs     *MockRunRepository
}

var _ persistence.Persistence = (*MockPersistence)(nil)

// NewMockPersistence creates a mock persistence with mock repositories.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		Versions: &MockVersionRepository{},
		Alerts:   &MockAlertRepository{},
		Runs:     &MockRunRepository{},
	}
}

func (m *MockPersistence) VersionRepository() persistence.VersionRepository {
	return m.Versions
}

func (m *MockPersistence) AlertRepository() persistence.AlertRepository {
	return m.Alerts
}

func (m *MockPersistence) RunRepository() persistence.RunRepository {
	return m.Runs
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
