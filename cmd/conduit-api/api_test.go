package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/conduit/pkg/cmd"
	"github.com/dukex/conduit/pkg/connector"
	"github.com/dukex/conduit/pkg/events"
	"github.com/dukex/conduit/pkg/idempotency"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/monitor"
	"github.com/dukex/conduit/pkg/persistence/file"
	"github.com/dukex/conduit/pkg/testutil"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestAPI(t *testing.T) (*API, *fiber.App) {
	t.Helper()

	logger := slog.Default()

	bus, err := cmd.NewEventBus(t.Context(), cmd.EventBusConfig{Provider: "memory", ServiceName: "test"}, logger)
	require.NoError(t, err)

	t.Cleanup(func() { _ = bus.Close() })

	api, err := NewAPI(Dependencies{
		Logger:        logger,
		Persistence:   file.NewPersistence(t.TempDir()),
		Bus:           bus,
		Idempotency:   idempotency.NewMemoryStore(),
		Connector:     connector.New(logger, nil),
		MonitorConfig: monitor.DefaultConfig(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() { _ = api.monitor.Run(ctx) }()

	require.NoError(t, bus.Subscribe(ctx))

	t.Cleanup(func() {
		api.shutdown()
	})

	return api, api.App()
}

func doRequest(t *testing.T, app *fiber.App, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

func TestAPI_Endpoints(t *testing.T) {
	t.Parallel()

	_, app := setupTestAPI(t)

	tests := []struct {
		path     string
		status   int
		contains string
	}{
		{path: "/", status: http.StatusOK, contains: "Conduit API"},
		{path: "/livez", status: http.StatusOK, contains: "OK"},
		{path: "/readyz", status: http.StatusOK, contains: "OK"},
		{path: "/health", status: http.StatusOK, contains: "healthy"},
		{path: "/metrics", status: http.StatusOK, contains: "conduit_"},
		{path: "/integrations", status: http.StatusOK, contains: `"total_count":0`},
		{path: "/workflows", status: http.StatusOK, contains: `"total_count":0`},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			status, body := doRequest(t, app, http.MethodGet, tt.path, nil)

			assert.Equal(t, tt.status, status)
			assert.Contains(t, string(body), tt.contains)
		})
	}
}

func TestAPI_BusReachesStream(t *testing.T) {
	t.Parallel()

	api, app := setupTestAPI(t)

	ch, unsubscribe := api.stream.Subscribe([]events.EventType{events.IntegrationCreatedEvent})
	defer unsubscribe()

	status, body := doRequest(t, app, http.MethodPost, "/integrations", testutil.CreateTestIntegration())
	require.Equal(t, http.StatusCreated, status, string(body))

	var created models.Integration
	require.NoError(t, json.Unmarshal(body, &created))

	select {
	case event := <-ch:
		assert.Equal(t, created.ID, event.GetBase().EntityID)

		changed, ok := event.(*events.IntegrationChanged)
		require.True(t, ok)
		assert.Equal(t, models.RedactedSecret, changed.Integration.Auth.Token)
	case <-time.After(5 * time.Second):
		t.Fatal("integration.created never reached the stream")
	}
}

func TestAPI_BusPersistsAlerts(t *testing.T) {
	t.Parallel()

	api, app := setupTestAPI(t)

	alert := models.Alert{
		ID:            "c5f6c3a4-4a43-4a53-9a0e-0d2b8c1b2a11",
		IntegrationID: "orders",
		Severity:      models.AlertSeverityMedium,
		Status:        models.AlertStatusActive,
		State:         models.HealthStateWarning,
		Revision:      1,
		LastSeen:      time.Now().UTC(),
	}

	err := api.bus.Publish(t.Context(), alert.IntegrationID, &events.AlertChanged{
		BaseEvent: events.NewBaseEvent(events.AlertRaisedEvent, alert.IntegrationID, alert.Revision),
		Alert:     alert,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, _ := doRequest(t, app, http.MethodGet, "/alerts/"+alert.ID, nil)

		return status == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	status, body := doRequest(t, app, http.MethodGet, "/alerts?integration_id=orders", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), alert.ID)
}

func TestAPI_RunWorkflowRecordsMetrics(t *testing.T) {
	t.Parallel()

	_, app := setupTestAPI(t)

	status, body := doRequest(t, app, http.MethodPost, "/workflows", testutil.CreateTestWorkflowWithNodes())
	require.Equal(t, http.StatusCreated, status, string(body))

	var created models.Workflow
	require.NoError(t, json.Unmarshal(body, &created))

	status, body = doRequest(t, app, http.MethodPost, "/workflows/"+created.ID+"/runs", map[string]any{"trigger": map[string]any{"id": 1}})
	require.Equal(t, http.StatusOK, status, string(body))

	_, body = doRequest(t, app, http.MethodGet, "/metrics", nil)
	assert.Contains(t, string(body), `conduit_runs_finished_total{status="success"} 1`)
}

func TestAPI_RecoversFromHandlerPanics(t *testing.T) {
	t.Parallel()

	_, app := setupTestAPI(t)

	app.Get("/explode", func(fiber.Ctx) error {
		panic("handler bug")
	})

	status, _ := doRequest(t, app, http.MethodGet, "/explode", nil)
	assert.Equal(t, http.StatusInternalServerError, status)

	status, body := doRequest(t, app, http.MethodPost, "/workflows", map[string]any{
		"name":  "broken",
		"nodes": []any{nil},
	})
	assert.Equal(t, http.StatusBadRequest, status, string(body))

	status, _ = doRequest(t, app, http.MethodGet, "/livez", nil)
	assert.Equal(t, http.StatusOK, status)
}
