package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dukex/conduit/pkg/engine"
	"github.com/dukex/conduit/pkg/events"
	"github.com/dukex/conduit/pkg/idempotency"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
	"github.com/dukex/conduit/pkg/persistence/file"
	"github.com/dukex/conduit/pkg/protocol"
	"github.com/dukex/conduit/pkg/registry"
	"github.com/dukex/conduit/pkg/services"
	"github.com/dukex/conduit/pkg/testutil"
	"github.com/dukex/conduit/pkg/versioning"
	"github.com/dukex/conduit/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHealth struct {
	mu      sync.Mutex
	samples []models.Sample
}

func (f *fakeHealth) Record(sample models.Sample) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.samples = append(f.samples, sample)
}

func (f *fakeHealth) Snapshot(id string) (models.HealthSnapshot, bool) {
	return models.HealthSnapshot{}, false
}

func (f *fakeHealth) Snapshots() []models.HealthSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	snapshots := make([]models.HealthSnapshot, 0, len(f.samples))
	for _, sample := range f.samples {
		snapshots = append(snapshots, models.HealthSnapshot{IntegrationID: sample.IntegrationID, State: models.HealthStateHealthy})
	}

	return snapshots
}

func (f *fakeHealth) Forget(string) {}

func (f *fakeHealth) recorded() []models.Sample {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]models.Sample(nil), f.samples...)
}

type testApp struct {
	app      *fiber.App
	services web.Services
	health   *fakeHealth
	stream   *web.Broadcaster
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()

	return newTestApp(t, file.NewPersistence(t.TempDir()))
}

func newTestApp(t *testing.T, persistence persistence.Persistence) *testApp {
	t.Helper()

	logger := slog.Default()
	store := versioning.NewStore(persistence.VersionRepository(), logger)

	registryInstance := registry.NewRegistry(logger)
	registryInstance.RegisterDefaultNodes(protocol.Dependencies{Logger: logger, Idempotency: idempotency.NewMemoryStore()})

	health := &fakeHealth{}
	workflows := services.NewWorkflow(logger, persistence, store, registryInstance, nil)

	runEngine := engine.New(logger, registryInstance, engine.WithRunStore(persistence.RunRepository()))
	t.Cleanup(func() { _ = runEngine.Shutdown(context.Background()) })

	svc := web.Services{
		Integrations: services.NewIntegrations(logger, store, nil, services.WithHealth(health)),
		Workflows:    workflows,
		Publishing:   services.NewPublishing(workflows),
		Nodes:        services.NewNode(workflows),
		Versions:     services.NewVersions(logger, store, nil),
		Executions:   services.NewExecutions(logger, workflows, runEngine, persistence.RunRepository()),
		Alerts:       services.NewAlerts(logger, persistence.AlertRepository(), nil),
	}

	stream := web.NewBroadcaster(logger, 8)
	t.Cleanup(stream.Close)

	handlers := web.NewAPIHandlers(
		logger,
		svc,
		validator.New(validator.WithRequiredStructEnabled()),
		registryInstance,
		web.WithHealth(health),
		web.WithStream(stream),
	)

	app := fiber.New()
	handlers.Mount(app)

	return &testApp{app: app, services: svc, health: health, stream: stream}
}

func (a *testApp) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)

		reader = bytes.NewBuffer(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := a.app.Test(req, fiber.TestConfig{Timeout: 5 * time.Second})
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, data
}

type problemBody struct {
	Type           string                `json:"type"`
	Status         int                   `json:"status"`
	Detail         string                `json:"detail"`
	Errors         []services.FieldError `json:"errors"`
	CurrentVersion int64                 `json:"current_version"`
}

func decodeJSON[T any](t *testing.T, data []byte) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(data, &out), string(data))

	return out
}

func ifMatch(version string) map[string]string {
	return map[string]string{"If-Match": version}
}

func TestAPIHandlers_IntegrationLifecycle(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)

	resp, body := a.do(t, http.MethodPost, "/integrations", web.IntegrationRequest{Integration: *testutil.CreateTestIntegration()}, map[string]string{web.ActorHeader: "alice"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	assert.Equal(t, `"1"`, resp.Header.Get("ETag"))

	created := decodeJSON[models.Integration](t, body)
	assert.Equal(t, "alice", created.CreatedBy)

	update := web.IntegrationRequest{Integration: created}
	update.Timeout = 20

	resp, _ = a.do(t, http.MethodPatch, "/integrations/"+created.ID, update, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = a.do(t, http.MethodPatch, "/integrations/"+created.ID, update, ifMatch(`"1"`))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, int64(2), decodeJSON[models.Integration](t, body).Version)

	// a second writer still holding version 1
	update.Timeout = 30
	resp, body = a.do(t, http.MethodPatch, "/integrations/"+created.ID, update, ifMatch(`W/"1"`))
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	problem := decodeJSON[problemBody](t, body)
	assert.Equal(t, "version_conflict", problem.Type)
	assert.Equal(t, int64(2), problem.CurrentVersion)

	update.ExpectedVersion = 2
	resp, _ = a.do(t, http.MethodPatch, "/integrations/"+created.ID, update, ifMatch("1"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = a.do(t, http.MethodGet, "/integrations/"+created.ID, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `"2"`, resp.Header.Get("ETag"))

	fetched := decodeJSON[struct {
		Integration models.Integration    `json:"integration"`
		Health      models.HealthSnapshot `json:"health"`
	}](t, body)
	assert.Equal(t, 20, fetched.Integration.Timeout)
	assert.Equal(t, models.HealthStateHealthy, fetched.Health.State)

	resp, body = a.do(t, http.MethodGet, "/integrations?tag=orders", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, decodeJSON[map[string]any](t, body)["total_count"])

	resp, body = a.do(t, http.MethodPost, "/integrations/"+created.ID+"/deploy", web.DeployRequest{Environment: models.EnvironmentProduction, ExpectedVersion: 2}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, models.EnvironmentProduction, decodeJSON[models.Integration](t, body).Environment)

	resp, _ = a.do(t, http.MethodDelete, "/integrations/"+created.ID, nil, ifMatch("3"))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = a.do(t, http.MethodGet, "/integrations/"+created.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "integration_not_found", decodeJSON[problemBody](t, body).Type)

	// history survives the delete
	resp, body = a.do(t, http.MethodGet, "/integrations/"+created.ID+"/versions", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeJSON[map[string][]models.Version](t, body)["versions"], 3)
}

func TestAPIHandlers_CreateIntegration_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		body   any
		status int
		field  string
		code   string
	}{
		{
			name: "malformed endpoint",
			body: web.IntegrationRequest{Integration: *testutil.CreateTestIntegration(func(i *models.Integration) {
				i.Endpoint = "ftp://example.com"
			})},
			status: http.StatusBadRequest,
			field:  "endpoint",
			code:   services.CodeMalformedURL,
		},
		{
			name: "bearer without token",
			body: web.IntegrationRequest{Integration: *testutil.CreateTestIntegration(func(i *models.Integration) {
				i.Auth.Token = ""
			})},
			status: http.StatusBadRequest,
			field:  "auth.token",
			code:   services.CodeAuthIncomplete,
		},
		{
			name:   "invalid JSON",
			body:   "invalid-json",
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := setupTestApp(t)

			resp, body := a.do(t, http.MethodPost, "/integrations", tt.body, nil)
			require.Equal(t, tt.status, resp.StatusCode, string(body))

			problem := decodeJSON[problemBody](t, body)
			assert.Equal(t, "validation_error", problem.Type)

			if tt.field != "" {
				assert.Contains(t, problem.Errors, services.FieldError{
					Field:   tt.field,
					Code:    tt.code,
					Message: findMessage(problem.Errors, tt.field),
				})
			}
		})
	}
}

func findMessage(fields []services.FieldError, field string) string {
	for _, f := range fields {
		if f.Field == field {
			return f.Message
		}
	}

	return ""
}

func TestAPIHandlers_MasksCredentials(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)

	integration := testutil.CreateTestIntegration(func(i *models.Integration) {
		i.Auth = models.Auth{Type: models.AuthTypeBearer, Token: "tok-live-1"}
		i.Headers = map[string]string{"Authorization": "Bearer hdr-live-1", "Accept": "application/json"}
	})

	resp, body := a.do(t, http.MethodPost, "/integrations", web.IntegrationRequest{Integration: *integration}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	assert.NotContains(t, string(body), "live-1")

	created := decodeJSON[models.Integration](t, body)
	assert.Equal(t, models.RedactedSecret, created.Auth.Token)
	assert.Equal(t, models.RedactedSecret, created.Headers["Authorization"])
	assert.Equal(t, "application/json", created.Headers["Accept"])

	// sending the masked values back keeps the stored credentials
	update := web.IntegrationRequest{Integration: created, ExpectedVersion: 1}
	update.Timeout = 20

	resp, body = a.do(t, http.MethodPatch, "/integrations/"+created.ID, update, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	stored, err := a.services.Integrations.Get(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "tok-live-1", stored.Auth.Token)
	assert.Equal(t, "Bearer hdr-live-1", stored.Headers["Authorization"])

	rotate := web.IntegrationRequest{Integration: created, ExpectedVersion: 2}
	rotate.Auth.Token = "tok-live-2"

	resp, body = a.do(t, http.MethodPatch, "/integrations/"+created.ID, rotate, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.NotContains(t, string(body), "live-2")

	for _, path := range []string{
		"/integrations",
		"/integrations/" + created.ID,
		"/integrations/" + created.ID + "/versions",
		"/integrations/" + created.ID + "/versions/1",
		"/integrations/" + created.ID + "/diff?from=2&to=3",
	} {
		resp, body = a.do(t, http.MethodGet, path, nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.NotContains(t, string(body), "live-", path)
	}

	resp, body = a.do(t, http.MethodGet, "/integrations/"+created.ID+"/diff?from=2&to=3", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"/auth/token"`)

	resp, body = a.do(t, http.MethodPost, "/integrations/"+created.ID+"/rollback", web.RollbackRequest{Target: 1, ExpectedVersion: 3}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	assert.NotContains(t, string(body), "live-")

	stored, err = a.services.Integrations.Get(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "tok-live-1", stored.Auth.Token)
}

func TestAPIHandlers_BulkStatus(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)

	created, err := a.services.Integrations.Create(t.Context(), testutil.CreateTestIntegration(), "alice")
	require.NoError(t, err)

	resp, body := a.do(t, http.MethodPost, "/integrations/bulk-status", web.BulkStatusRequest{
		IDs:    []string{created.ID, "missing"},
		Status: models.IntegrationStatusInactive,
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	result := decodeJSON[services.BulkStatusResult](t, body)
	assert.Equal(t, []string{created.ID}, result.Updated)
	assert.Contains(t, result.Failed, "missing")

	resp, body = a.do(t, http.MethodPost, "/integrations/bulk-status", web.BulkStatusRequest{
		IDs:    []string{created.ID},
		Status: models.IntegrationStatusError,
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, []string{created.ID}, decodeJSON[services.BulkStatusResult](t, body).Updated)

	resp, body = a.do(t, http.MethodGet, "/integrations?status=error", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), created.ID)

	resp, _ = a.do(t, http.MethodPost, "/integrations/bulk-status", web.BulkStatusRequest{Status: "archived"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_VersionsDiffAndRollback(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)
	ctx := t.Context()

	created, err := a.services.Integrations.Create(ctx, testutil.CreateTestIntegration(), "alice")
	require.NoError(t, err)

	edit := *created
	edit.Timeout = 20

	_, err = a.services.Integrations.Update(ctx, created.ID, 1, &edit, "bob", "")
	require.NoError(t, err)

	resp, body := a.do(t, http.MethodGet, "/integrations/"+created.ID+"/diff?from=1&to=2", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	diff := decodeJSON[struct {
		Changes []models.Change `json:"changes"`
	}](t, body)
	assert.Contains(t, diff.Changes, models.Change{Op: models.ChangeOpReplace, Path: "/timeout", From: float64(10), To: float64(20)})

	resp, _ = a.do(t, http.MethodPost, "/integrations/"+created.ID+"/rollback", web.RollbackRequest{Target: 1, ExpectedVersion: 1}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = a.do(t, http.MethodPost, "/integrations/"+created.ID+"/rollback", web.RollbackRequest{Target: 1, ExpectedVersion: 2}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	restored := decodeJSON[models.Version](t, body)
	assert.Equal(t, int64(3), restored.Number)
	assert.Equal(t, int64(1), restored.RestoredOf)

	resp, body = a.do(t, http.MethodGet, "/integrations/"+created.ID+"/diff?from=3&to=1", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeJSON[struct {
		Changes []models.Change `json:"changes"`
	}](t, body).Changes)

	resp, body = a.do(t, http.MethodGet, "/integrations/"+created.ID+"/versions/9", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "version_not_found", decodeJSON[problemBody](t, body).Type)

	resp, _ = a.do(t, http.MethodGet, "/integrations/"+created.ID+"/versions/zero", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_WorkflowAndWebhook(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)

	workflow := testutil.CreateTestWorkflowWithNodes()
	workflow.Nodes[0].Config = map[string]any{
		"method":  "POST",
		"headers": map[string]any{"X-Signature": "s3cret"},
	}

	resp, body := a.do(t, http.MethodPost, "/workflows", web.WorkflowRequest{Workflow: *workflow}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	created := decodeJSON[models.Workflow](t, body)

	resp, body = a.do(t, http.MethodPost, "/hooks/"+created.ID, map[string]any{"order_id": "42"}, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode, string(body))

	resp, body = a.do(t, http.MethodPost, "/workflows/"+created.ID+"/activate", web.VersionRequest{ExpectedVersion: 1}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, models.WorkflowStatusActive, decodeJSON[models.Workflow](t, body).Status)

	resp, body = a.do(t, http.MethodPost, "/hooks/"+created.ID, map[string]any{"order_id": "42"}, map[string]string{"X-Signature": "s3cret"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	accepted := decodeJSON[map[string]any](t, body)
	runID, _ := accepted["run_id"].(string)
	require.NotEmpty(t, runID)

	var run models.ExecutionRun

	require.Eventually(t, func() bool {
		resp, body := a.do(t, http.MethodGet, "/runs/"+runID, nil, nil)
		if resp.StatusCode != http.StatusOK {
			return false
		}

		run = decodeJSON[models.ExecutionRun](t, body)

		return run.Status.Terminal()
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, models.RunStatusSuccess, run.Status)
	assert.Equal(t, engine.TriggerTypeWebhook, run.TriggerType)

	// wrong signature: the webhook node rejects the request inside the run
	resp, body = a.do(t, http.MethodPost, "/hooks/"+created.ID, map[string]any{}, map[string]string{"X-Signature": "nope"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	resp, _ = a.do(t, http.MethodPost, "/hooks/"+created.ID, "[1,2]", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = a.do(t, http.MethodPost, "/hooks/missing", map[string]any{}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = a.do(t, http.MethodGet, "/workflows/"+created.ID+"/runs", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, decodeJSON[map[string][]models.ExecutionRun](t, body)["runs"])

	resp, _ = a.do(t, http.MethodPost, "/runs/"+runID+"/cancel", nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPIHandlers_CreateWorkflow_NullEntries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{
			name:  "null node",
			body:  `{"name":"broken","nodes":[null],"connections":[]}`,
			field: "nodes[0]",
		},
		{
			name:  "null connection",
			body:  `{"name":"broken","nodes":[{"id":"a","type":"log","name":"a","config":{"message":"hi"}}],"connections":[null]}`,
			field: "connections",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := setupTestApp(t)

			resp, body := a.do(t, http.MethodPost, "/workflows", tt.body, nil)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))

			problem := decodeJSON[problemBody](t, body)
			assert.NotEmpty(t, findMessage(problem.Errors, tt.field), "no error for %s in %v", tt.field, problem.Errors)
		})
	}
}

func TestAPIHandlers_RunWorkflow(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)

	created, err := a.services.Workflows.Create(t.Context(), testutil.CreateTestWorkflowWithNodes(), "alice")
	require.NoError(t, err)

	resp, body := a.do(t, http.MethodPost, "/workflows/"+created.ID+"/runs", web.RunWorkflowRequest{Trigger: map[string]any{"a": 1}}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	run := decodeJSON[models.ExecutionRun](t, body)
	assert.Equal(t, models.RunStatusSuccess, run.Status)
	assert.Len(t, run.Trace, 2)

	resp, _ = a.do(t, http.MethodPost, "/workflows/"+created.ID+"/runs", web.RunWorkflowRequest{Version: 5}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_WorkflowNodes(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)

	created, err := a.services.Workflows.Create(t.Context(), testutil.CreateTestWorkflowWithNodes(), "alice")
	require.NoError(t, err)

	resp, body := a.do(t, http.MethodPost, "/workflows/"+created.ID+"/nodes", web.CreateNodeRequest{
		Type:     "log",
		Name:     "Audit",
		Config:   map[string]any{"message": "audit"},
		Position: &models.Position{X: 10, Y: 20},
	}, ifMatch("1"))
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	change := decodeJSON[web.NodeChangeResponse](t, body)
	assert.Equal(t, int64(2), change.WorkflowVersion)
	require.NotNil(t, change.Node)

	resp, _ = a.do(t, http.MethodGet, "/workflows/"+created.ID+"/nodes/"+change.Node.ID, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = a.do(t, http.MethodPatch, "/workflows/"+created.ID+"/nodes/"+change.Node.ID, web.UpdateNodeRequest{
		Name:            "Audit",
		Config:          map[string]any{"level": "info"},
		ExpectedVersion: 2,
	}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	problem := decodeJSON[problemBody](t, body)
	require.NotEmpty(t, problem.Errors)
	assert.Contains(t, problem.Errors[0].Field, ".config")

	resp, _ = a.do(t, http.MethodDelete, "/workflows/"+created.ID+"/nodes/"+change.Node.ID, web.VersionRequest{ExpectedVersion: 2}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = a.do(t, http.MethodGet, "/workflows/"+created.ID+"/nodes/"+change.Node.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "node_not_found", decodeJSON[problemBody](t, body).Type)
}

func TestAPIHandlers_Alerts(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)

	err := a.services.Alerts.Handle(t.Context(), &events.AlertChanged{
		BaseEvent: events.NewBaseEvent(events.AlertRaisedEvent, "orders", 1),
		Alert: models.Alert{
			ID:            "alert-1",
			IntegrationID: "orders",
			Severity:      models.AlertSeverityHigh,
			Status:        models.AlertStatusActive,
			State:         models.HealthStateError,
			Revision:      1,
			LastSeen:      time.Now().UTC(),
		},
	})
	require.NoError(t, err)

	resp, body := a.do(t, http.MethodGet, "/alerts?severity=high", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeJSON[map[string][]models.Alert](t, body)["alerts"], 1)

	resp, body = a.do(t, http.MethodPost, "/alerts/alert-1/acknowledge", nil, map[string]string{web.ActorHeader: "oncall"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "oncall", decodeJSON[models.Alert](t, body).AcknowledgedBy)

	resp, body = a.do(t, http.MethodPost, "/alerts/alert-1/resolve", web.AlertActionRequest{By: "lead"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, models.AlertStatusResolved, decodeJSON[models.Alert](t, body).Status)

	resp, _ = a.do(t, http.MethodPost, "/alerts/alert-1/acknowledge", nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = a.do(t, http.MethodGet, "/alerts?status=snoozed", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_HealthSamples(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)

	created, err := a.services.Integrations.Create(t.Context(), testutil.CreateTestIntegration(), "alice")
	require.NoError(t, err)

	resp, body := a.do(t, http.MethodPost, "/health/samples", web.SamplesRequest{Samples: []models.Sample{
		{IntegrationID: created.ID, LatencyMs: 120, StatusCode: 200},
		{IntegrationID: created.ID, LatencyMs: 0, Error: "timeout"},
	}}, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	recorded := a.health.recorded()
	require.Len(t, recorded, 2)
	assert.Equal(t, models.SampleSourceExternal, recorded[0].Source)
	assert.False(t, recorded[0].Timestamp.IsZero())

	resp, _ = a.do(t, http.MethodPost, "/health/samples", web.SamplesRequest{Samples: []models.Sample{{IntegrationID: "missing"}}}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = a.do(t, http.MethodPost, "/health/samples", web.SamplesRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = a.do(t, http.MethodGet, "/health/integrations", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeJSON[map[string][]models.HealthSnapshot](t, body)["integrations"], 2)

	resp, body = a.do(t, http.MethodGet, "/health/integrations/"+created.ID, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.HealthStateHealthy, decodeJSON[models.HealthSnapshot](t, body).State)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)

	resp, body := a.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", decodeJSON[map[string]any](t, body)["status"])

	resp, body = a.do(t, http.MethodGet, "/nodes", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, decodeJSON[map[string][]web.NodeTypeResponse](t, body)["nodes"])
}

func TestAPIHandlers_Stream(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)

	type result struct {
		resp *http.Response
		body []byte
	}

	done := make(chan result, 1)

	go func() {
		req := httptest.NewRequest(http.MethodGet, "/stream?types=alert.raised", nil)

		resp, err := a.app.Test(req, fiber.TestConfig{Timeout: 5 * time.Second})
		if err != nil {
			done <- result{}

			return
		}

		defer func() { _ = resp.Body.Close() }()

		body, _ := io.ReadAll(resp.Body)
		done <- result{resp: resp, body: body}
	}()

	require.Eventually(t, func() bool { return a.stream.Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)

	raised := &events.AlertChanged{
		BaseEvent: events.NewBaseEvent(events.AlertRaisedEvent, "orders", 1),
		Alert:     models.Alert{ID: "alert-1", IntegrationID: "orders"},
	}

	require.NoError(t, a.stream.Handle(t.Context(), &events.WorkflowChanged{BaseEvent: events.NewBaseEvent(events.WorkflowSavedEvent, "wf", 1)}))
	require.NoError(t, a.stream.Handle(t.Context(), raised))
	a.stream.Close()

	out := <-done
	require.NotNil(t, out.resp)
	assert.Equal(t, "text/event-stream", out.resp.Header.Get("Content-Type"))
	assert.Contains(t, string(out.body), "event: alert.raised\n")
	assert.Contains(t, string(out.body), "id: "+raised.ID+"\n")
	assert.NotContains(t, string(out.body), "workflow.saved")
}
