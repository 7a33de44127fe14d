package monitor

import (
	"fmt"
	"math"
	"slices"
	"sync/atomic"
	"time"

	"github.com/dukex/conduit/pkg/models"
)

// tracker holds the rolling window and state of one integration. Only the
// monitor goroutine touches its fields; readers load current.
type tracker struct {
	integrationID string
	thresholds    Thresholds

	window []models.Sample
	next   int
	filled int

	state     models.HealthState
	reason    string
	failures  int
	clean     int
	revision  int64
	alert     *models.Alert
	lastAt    time.Time
	changedAt time.Time

	current atomic.Pointer[models.HealthSnapshot]
}

type stats struct {
	samples    int
	errorRate  float64
	p50        int64
	p95        int64
	throughput float64
}

func newTracker(integrationID string, thresholds Thresholds, now time.Time) *tracker {
	t := &tracker{
		integrationID: integrationID,
		thresholds:    thresholds,
		window:        make([]models.Sample, thresholds.WindowSize),
		state:         models.HealthStateHealthy,
		changedAt:     now,
	}

	t.publish(stats{})

	return t
}

func (t *tracker) add(sample models.Sample) {
	t.window[t.next] = sample
	t.next = (t.next + 1) % len(t.window)
	t.filled = min(t.filled+1, len(t.window))
	t.lastAt = sample.Timestamp

	if sample.Failed() {
		t.failures++
	} else {
		t.failures = 0
	}

	if t.isClean(sample) {
		t.clean++
	} else {
		t.clean = 0
	}
}

func (t *tracker) isClean(sample models.Sample) bool {
	return !sample.Failed() && sample.LatencyMs < t.thresholds.WarningLatencyMs
}

// reset empties the window so a recovered integration is judged on new
// samples only.
func (t *tracker) reset() {
	clear(t.window)
	t.next = 0
	t.filled = 0
}

// stats derives the error rate over the window and nearest-rank latency
// percentiles over the successful samples in it.
func (t *tracker) stats() stats {
	s := stats{samples: t.filled}
	if t.filled == 0 {
		return s
	}

	errors := 0
	latencies := make([]int64, 0, t.filled)

	for _, sample := range t.window[:t.filled] {
		if sample.Failed() {
			errors++

			continue
		}

		latencies = append(latencies, sample.LatencyMs)
	}

	s.errorRate = float64(errors) / float64(t.filled)

	slices.Sort(latencies)

	s.p50 = percentile(latencies, 50)
	s.p95 = percentile(latencies, 95)
	s.throughput = t.throughput()

	return s
}

// throughput is the number of samples per minute between the oldest and the
// newest sample in the window. Fewer than two samples, or samples sharing a
// timestamp, give 0.
func (t *tracker) throughput() float64 {
	if t.filled < 2 {
		return 0
	}

	oldest := t.window[0]
	if t.filled == len(t.window) {
		oldest = t.window[t.next]
	}

	newest := t.window[(t.next-1+len(t.window))%len(t.window)]

	span := newest.Timestamp.Sub(oldest.Timestamp)
	if span <= 0 {
		return 0
	}

	return float64(t.filled-1) / span.Minutes()
}

func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}

	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	rank = max(rank, 1)

	return sorted[rank-1]
}

// target is the state the window calls for, ignoring recovery.
func (t *tracker) target(s stats) (models.HealthState, string) {
	th := t.thresholds

	if th.ConsecutiveFailures > 0 && t.failures >= th.ConsecutiveFailures {
		return models.HealthStateError, fmt.Sprintf("%d consecutive failures", t.failures)
	}

	if s.samples < th.MinSamples {
		return models.HealthStateHealthy, ""
	}

	switch {
	case s.errorRate >= th.ErrorErrorRate:
		return models.HealthStateError, fmt.Sprintf("error rate %.1f%% over %d samples", s.errorRate*100, s.samples)
	case s.p95 >= th.ErrorLatencyMs:
		return models.HealthStateError, fmt.Sprintf("p95 latency %dms", s.p95)
	case s.errorRate >= th.WarningErrorRate:
		return models.HealthStateWarning, fmt.Sprintf("error rate %.1f%% over %d samples", s.errorRate*100, s.samples)
	case s.p95 >= th.WarningLatencyMs:
		return models.HealthStateWarning, fmt.Sprintf("p95 latency %dms", s.p95)
	}

	return models.HealthStateHealthy, ""
}

// observe adds sample and moves the state machine. Within a breach the
// state only escalates; it returns to healthy after RecoverySamples clean
// samples in a row.
func (t *tracker) observe(sample models.Sample) (previous models.HealthState, s stats) {
	previous = t.state

	t.add(sample)

	if t.state != models.HealthStateHealthy && t.clean >= t.thresholds.RecoverySamples {
		t.state = models.HealthStateHealthy
		t.reason = fmt.Sprintf("recovered after %d clean samples", t.clean)
		t.changedAt = sample.Timestamp

		t.reset()

		return previous, t.stats()
	}

	s = t.stats()

	state, reason := t.target(s)
	if state.Rank() > t.state.Rank() {
		t.state = state
		t.reason = reason
		t.changedAt = sample.Timestamp
	}

	return previous, s
}

func (t *tracker) outage() bool {
	return t.thresholds.ConsecutiveFailures > 0 && t.failures >= t.thresholds.ConsecutiveFailures
}

func (t *tracker) publish(s stats) models.HealthSnapshot {
	snapshot := models.HealthSnapshot{
		IntegrationID:        t.integrationID,
		State:                t.state,
		Reason:               t.reason,
		Samples:              s.samples,
		ErrorRate:            s.errorRate,
		P50Ms:                s.p50,
		P95Ms:                s.p95,
		ThroughputPerMinute:  s.throughput,
		ConsecutiveFailures:  t.failures,
		ConsecutiveSuccesses: t.clean,
		LastSampleAt:         t.lastAt,
		ChangedAt:            t.changedAt,
	}

	if t.alert != nil {
		snapshot.AlertID = t.alert.ID
	}

	t.current.Store(&snapshot)

	return snapshot
}
