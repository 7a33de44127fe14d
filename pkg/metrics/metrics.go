// Package metrics exposes run, node and integration health metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/dukex/conduit/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "conduit"

// Metrics collects engine and monitor metrics on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	runsFinished  *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	nodesFinished *prometheus.CounterVec
	nodeDuration  *prometheus.HistogramVec

	healthState     *prometheus.GaugeVec
	healthErrorRate *prometheus.GaugeVec
	healthP95       *prometheus.GaugeVec
	throughput      *prometheus.GaugeVec
	samples         *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_finished_total",
			Help:      "Workflow runs finished, by status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of workflow runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"status"}),
		nodesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_finished_total",
			Help:      "Node executions finished, by node type and status.",
		}, []string{"node_type", "status"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Duration of node executions, retries included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"node_type"}),
		healthState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "integration_health_state",
			Help:      "Health of an integration: 0 healthy, 1 warning, 2 error.",
		}, []string{"integration_id"}),
		healthErrorRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "integration_error_rate",
			Help:      "Error rate over the rolling window.",
		}, []string{"integration_id"}),
		healthP95: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "integration_latency_p95_milliseconds",
			Help:      "95th percentile latency over the rolling window.",
		}, []string{"integration_id"}),
		throughput: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "integration_throughput_per_minute",
			Help:      "Samples per minute across the rolling window.",
		}, []string{"integration_id"}),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "integration_samples_total",
			Help:      "Samples applied to the health monitor.",
		}, []string{"integration_id"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.runsFinished,
		m.runDuration,
		m.nodesFinished,
		m.nodeDuration,
		m.healthState,
		m.healthErrorRate,
		m.healthP95,
		m.throughput,
		m.samples,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) NodeFinished(nodeType string, status models.NodeStatus, duration time.Duration) {
	m.nodesFinished.WithLabelValues(nodeType, string(status)).Inc()

	if status != models.NodeStatusSkipped {
		m.nodeDuration.WithLabelValues(nodeType).Observe(duration.Seconds())
	}
}

func (m *Metrics) RunFinished(status models.RunStatus, duration time.Duration) {
	m.runsFinished.WithLabelValues(string(status)).Inc()
	m.runDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
}

func (m *Metrics) HealthUpdated(snapshot models.HealthSnapshot) {
	id := snapshot.IntegrationID

	m.healthState.WithLabelValues(id).Set(float64(snapshot.State.Rank()))
	m.healthErrorRate.WithLabelValues(id).Set(snapshot.ErrorRate)
	m.healthP95.WithLabelValues(id).Set(float64(snapshot.P95Ms))
	m.throughput.WithLabelValues(id).Set(snapshot.ThroughputPerMinute)
	m.samples.WithLabelValues(id).Inc()
}

func (m *Metrics) HealthForgotten(integrationID string) {
	m.healthState.DeleteLabelValues(integrationID)
	m.healthErrorRate.DeleteLabelValues(integrationID)
	m.healthP95.DeleteLabelValues(integrationID)
	m.throughput.DeleteLabelValues(integrationID)
	m.samples.DeleteLabelValues(integrationID)
}
