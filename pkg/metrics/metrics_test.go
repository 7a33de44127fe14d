package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/conduit/pkg/engine"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/monitor"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ engine.Observer  = (*Metrics)(nil)
	_ monitor.Observer = (*Metrics)(nil)
)

func TestMetrics_Runs(t *testing.T) {
	t.Parallel()

	m := New()

	m.NodeFinished("http_request", models.NodeStatusSuccess, 120*time.Millisecond)
	m.NodeFinished("http_request", models.NodeStatusError, time.Second)
	m.NodeFinished("log", models.NodeStatusSkipped, 0)
	m.RunFinished(models.RunStatusError, 2*time.Second)

	assert.InDelta(t, 1, testutil.ToFloat64(m.nodesFinished.WithLabelValues("http_request", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.nodesFinished.WithLabelValues("http_request", "error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.nodesFinished.WithLabelValues("log", "skipped")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.runsFinished.WithLabelValues("error")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.nodeDuration))
}

func TestMetrics_Health(t *testing.T) {
	t.Parallel()

	m := New()

	m.HealthUpdated(models.HealthSnapshot{IntegrationID: "int-1", State: models.HealthStateWarning, ErrorRate: 0.2, P95Ms: 900})
	m.HealthUpdated(models.HealthSnapshot{IntegrationID: "int-1", State: models.HealthStateError, ErrorRate: 0.3, P95Ms: 950, ThroughputPerMinute: 12})

	assert.InDelta(t, 2, testutil.ToFloat64(m.healthState.WithLabelValues("int-1")), 0)
	assert.InDelta(t, 0.3, testutil.ToFloat64(m.healthErrorRate.WithLabelValues("int-1")), 0.0001)
	assert.InDelta(t, 950, testutil.ToFloat64(m.healthP95.WithLabelValues("int-1")), 0)
	assert.InDelta(t, 12, testutil.ToFloat64(m.throughput.WithLabelValues("int-1")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.samples.WithLabelValues("int-1")), 0)

	m.HealthForgotten("int-1")
	assert.Equal(t, 0, testutil.CollectAndCount(m.healthState))
	assert.Equal(t, 0, testutil.CollectAndCount(m.throughput))
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()

	m := New()
	m.RunFinished(models.RunStatusSuccess, time.Second)

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL) //nolint:noctx // test server
	require.NoError(t, err)

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `conduit_runs_finished_total{status="success"} 1`)
}
