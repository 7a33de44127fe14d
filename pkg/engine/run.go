package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukex/conduit/pkg/events"
	"github.com/dukex/conduit/pkg/graph"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/otelhelper"
	"github.com/dukex/conduit/pkg/protocol"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"
)

// execution is the state of one run. The scheduler goroutine owns the
// scheduling state; mu guards run and results, which node goroutines read.
type execution struct {
	engine   *Engine
	workflow *models.Workflow
	graph    *graph.Graph
	nodes    map[string]protocol.Node
	metadata map[string]any
	logger   *slog.Logger

	mu       sync.Mutex
	run      *models.ExecutionRun
	results  map[string]map[string]models.NodeResult
	sequence int

	cancelled atomic.Bool
}

type outcome struct {
	nodeID     string
	results    map[string]models.NodeResult
	err        error
	attempts   int
	startedAt  time.Time
	finishedAt time.Time
}

func (x *execution) execute(ctx context.Context) {
	defer x.engine.release(x.run.ID)

	ctx, span := otelhelper.StartSpan(ctx, x.engine.tracer, "engine.run",
		attribute.String(otelhelper.RunIDKey, x.run.ID),
		attribute.String(otelhelper.WorkflowIDKey, x.workflow.ID),
		attribute.Int64(otelhelper.WorkflowVersionKey, x.workflow.Version),
	)
	defer span.End()

	x.logger.InfoContext(ctx, "Run started", "nodes", len(x.nodes), "trigger_type", x.run.TriggerType)
	x.save(ctx)
	x.publish(ctx, &events.RunStarted{
		BaseEvent:   events.NewBaseEvent(events.RunStartedEvent, x.run.ID, x.workflow.Version),
		RunID:       x.run.ID,
		WorkflowID:  x.workflow.ID,
		TriggerType: x.run.TriggerType,
		Trigger:     x.run.Trigger,
	})

	parallelism := x.engine.config.MaxParallelism
	if x.workflow.MaxParallelism > 0 {
		parallelism = x.workflow.MaxParallelism
	}

	sem := semaphore.NewWeighted(int64(parallelism))
	outcomes := make(chan outcome, len(x.nodes))

	waiting := make(map[string]int, len(x.nodes))
	for _, id := range x.graph.NodeIDs() {
		waiting[id] = len(x.graph.Upstream(id))
	}

	ready := x.graph.Entries()
	inflight := 0
	stopped := false
	aborted := ""

	for {
		for !stopped && len(ready) > 0 {
			if x.stopRequested(ctx) {
				stopped = true

				break
			}

			id := ready[0]

			inputs, active := x.inputs(id)
			if !active {
				ready = ready[1:]

				x.skip(ctx, id, "no active input")
				ready = x.unblock(id, waiting, ready)

				continue
			}

			if !sem.TryAcquire(1) {
				break
			}

			ready = ready[1:]
			inflight++

			x.markRunning(id)

			go func() {
				out := x.runNode(ctx, id, inputs)

				sem.Release(1)

				outcomes <- out
			}()
		}

		if inflight == 0 {
			break
		}

		out := <-outcomes
		inflight--

		if failed, message := x.finish(ctx, out); failed && x.workflow.EffectiveFailurePolicy() == models.FailurePolicyAbortAll && aborted == "" {
			aborted = fmt.Sprintf("node %s failed: %s", out.nodeID, message)
			stopped = true
		}

		ready = x.unblock(out.nodeID, waiting, ready)

		if x.stopRequested(ctx) {
			stopped = true
		}
	}

	interrupted := 0

	for _, id := range x.graph.TopologicalOrder() {
		if !x.status(id).Terminal() {
			x.skip(ctx, id, "run stopped")

			interrupted++
		}
	}

	status, message := x.outcome(aborted, interrupted)
	otelhelper.SetStatus(span, string(status), status == models.RunStatusError, message)

	x.seal(ctx, status, message)
}

func (x *execution) stopRequested(ctx context.Context) bool {
	return x.cancelled.Load() || ctx.Err() != nil
}

// unblock marks id terminal for its downstream nodes and appends the ones
// whose upstream nodes are now all terminal.
func (x *execution) unblock(id string, waiting map[string]int, ready []string) []string {
	for _, next := range x.graph.Downstream(id) {
		waiting[next]--
		if waiting[next] == 0 {
			ready = append(ready, next)
		}
	}

	return ready
}

// inputs collects the data of every active incoming connection keyed by
// target port. Entry nodes receive the trigger on the main port. When
// several connections target one port, the first declared one wins.
func (x *execution) inputs(id string) (map[string]models.NodeResult, bool) {
	incoming := x.graph.Incoming(id)
	if len(incoming) == 0 {
		return map[string]models.NodeResult{
			models.PortMain: {
				NodeID:    "trigger",
				Port:      models.PortMain,
				Data:      x.run.Trigger,
				Status:    string(models.NodeStatusSuccess),
				Timestamp: x.run.StartedAt,
			},
		}, true
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	inputs := make(map[string]models.NodeResult, len(incoming))

	for _, conn := range incoming {
		result, ok := x.delivered(conn)
		if !ok {
			continue
		}

		_, port, _ := models.ParsePortID(conn.TargetPort)
		if _, taken := inputs[port]; !taken {
			inputs[port] = result
		}
	}

	return inputs, len(inputs) > 0
}

// delivered returns the data a connection carries, if it is active. Callers
// hold mu.
func (x *execution) delivered(conn *models.Connection) (models.NodeResult, bool) {
	source, port, _ := models.ParsePortID(conn.SourcePort)

	trace := x.run.NodeTrace(source)
	if trace == nil {
		return models.NodeResult{}, false
	}

	switch trace.Status {
	case models.NodeStatusSuccess:
		result, ok := x.results[source][port]

		return result, ok
	case models.NodeStatusError:
		result := x.results[source][models.PortError]

		switch x.workflow.EffectiveFailurePolicy() {
		case models.FailurePolicyPropagate:
			return result, true
		case models.FailurePolicyAbortBranch:
			return result, port == models.PortError
		}
	}

	return models.NodeResult{}, false
}

// handled reports whether a failed node has an active outgoing connection.
func (x *execution) handled(id string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, conn := range x.graph.Outgoing(id) {
		if _, ok := x.delivered(conn); ok {
			return true
		}
	}

	return false
}

func (x *execution) status(id string) models.NodeStatus {
	x.mu.Lock()
	defer x.mu.Unlock()

	return x.run.NodeTrace(id).Status
}

func (x *execution) markRunning(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	now := time.Now().UTC()

	_ = x.run.UpdateNode(id, func(trace *models.NodeTrace) {
		trace.Status = models.NodeStatusRunning
		trace.StartedAt = &now
	})
}

// executionContext builds what a node attempt sees. Earlier results are
// copied so later nodes cannot race with the template data.
func (x *execution) executionContext(id string, attempt int) models.ExecutionContext {
	x.mu.Lock()
	defer x.mu.Unlock()

	nodeResults := make(map[string]models.NodeResult, len(x.results))
	for nodeID, results := range x.results {
		if result, ok := primary(results); ok {
			nodeResults[nodeID] = result
		}
	}

	return models.ExecutionContext{
		RunID:           x.run.ID,
		WorkflowID:      x.workflow.ID,
		WorkflowVersion: x.workflow.Version,
		NodeID:          id,
		Attempt:         attempt,
		Trigger:         x.run.Trigger,
		Variables:       x.workflow.Variables,
		NodeResults:     nodeResults,
		Metadata:        x.metadata,
	}
}

// primary picks the result templates see as .nodes.<id>: the error result
// of a failed node, otherwise the first port by name.
func primary(results map[string]models.NodeResult) (models.NodeResult, bool) {
	if result, ok := results[models.PortError]; ok {
		return result, true
	}

	ports := make([]string, 0, len(results))
	for port := range results {
		ports = append(ports, port)
	}

	if len(ports) == 0 {
		return models.NodeResult{}, false
	}

	sort.Strings(ports)

	return results[ports[0]], true
}

// finish records the outcome of a node and reports whether it failed.
func (x *execution) finish(ctx context.Context, out outcome) (bool, string) {
	status := models.NodeStatusSuccess
	results := out.results
	message := ""

	if out.err != nil {
		message = out.err.Error()
		results = protocol.ErrorOutput(out.nodeID, message)
	} else if result, ok := results[models.PortError]; ok {
		message = errorMessage(result)
		results[models.PortError] = withError(result, message)
	}

	if message != "" {
		status = models.NodeStatusError
	}

	ports := make([]string, 0, len(results))
	output := make(map[string]any, len(results))

	for port, result := range results {
		ports = append(ports, port)
		output[port] = result.Data
	}

	slices.Sort(ports)

	x.mu.Lock()
	x.results[out.nodeID] = results
	x.sequence++
	sequence := x.sequence

	_ = x.run.UpdateNode(out.nodeID, func(trace *models.NodeTrace) {
		trace.Status = status
		trace.Attempts = out.attempts
		trace.Sequence = sequence
		trace.Ports = ports
		trace.Output = output
		trace.Error = message
		trace.StartedAt = &out.startedAt
		trace.FinishedAt = &out.finishedAt
		trace.DurationMs = out.finishedAt.Sub(out.startedAt).Milliseconds()
	})
	x.mu.Unlock()

	duration := out.finishedAt.Sub(out.startedAt)
	nodeType := x.graph.Node(out.nodeID).Type

	if status == models.NodeStatusError {
		x.logger.WarnContext(ctx, "Node failed", "node_id", out.nodeID, "node_type", nodeType, "attempts", out.attempts, "error", message)
	} else {
		x.logger.DebugContext(ctx, "Node finished", "node_id", out.nodeID, "node_type", nodeType, "ports", ports, "duration", duration)
	}

	x.nodeFinished(ctx, out.nodeID, status, ports, message, duration)

	return status == models.NodeStatusError, message
}

// skip marks id skipped. The caller unblocks its downstream nodes.
func (x *execution) skip(ctx context.Context, id, reason string) {
	x.mu.Lock()
	x.sequence++
	sequence := x.sequence

	_ = x.run.UpdateNode(id, func(trace *models.NodeTrace) {
		trace.Status = models.NodeStatusSkipped
		trace.Sequence = sequence
	})
	x.mu.Unlock()

	x.logger.DebugContext(ctx, "Node skipped", "node_id", id, "reason", reason)
	x.nodeFinished(ctx, id, models.NodeStatusSkipped, nil, "", 0)
}

func (x *execution) nodeFinished(ctx context.Context, id string, status models.NodeStatus, ports []string, message string, duration time.Duration) {
	nodeType := x.graph.Node(id).Type

	if x.engine.observer != nil {
		x.engine.observer.NodeFinished(nodeType, status, duration)
	}

	x.publish(ctx, &events.NodeFinished{
		BaseEvent:  events.NewBaseEvent(events.NodeFinishedEvent, x.run.ID, x.workflow.Version),
		RunID:      x.run.ID,
		WorkflowID: x.workflow.ID,
		NodeID:     id,
		NodeType:   nodeType,
		Status:     status,
		Ports:      ports,
		Error:      message,
		DurationMs: duration.Milliseconds(),
	})
}

// outcome decides the final status. A failure is fatal to the run unless it
// flowed into an active outgoing connection that handles it.
func (x *execution) outcome(aborted string, interrupted int) (models.RunStatus, string) {
	if aborted != "" {
		return models.RunStatusError, aborted
	}

	if interrupted > 0 {
		return models.RunStatusCancelled, "run cancelled"
	}

	var failures []string

	for _, id := range x.graph.TopologicalOrder() {
		if x.status(id) != models.NodeStatusError || x.handled(id) {
			continue
		}

		x.mu.Lock()
		failures = append(failures, fmt.Sprintf("node %s failed: %s", id, x.run.NodeTrace(id).Error))
		x.mu.Unlock()
	}

	if len(failures) > 0 {
		return models.RunStatusError, strings.Join(failures, "; ")
	}

	return models.RunStatusSuccess, ""
}

func (x *execution) seal(ctx context.Context, status models.RunStatus, message string) {
	x.mu.Lock()
	err := x.run.Seal(status, message, time.Now().UTC())
	run := x.run.Clone()

	nodesRun := 0
	for _, trace := range run.Trace {
		if trace.Status == models.NodeStatusSuccess || trace.Status == models.NodeStatusError {
			nodesRun++
		}
	}
	x.mu.Unlock()

	if err != nil {
		x.logger.ErrorContext(ctx, "Failed to seal run", "error", err)

		return
	}

	x.logger.InfoContext(ctx, "Run finished", "status", status, "duration_ms", run.DurationMs, "error", message)

	if x.engine.observer != nil {
		x.engine.observer.RunFinished(status, time.Duration(run.DurationMs)*time.Millisecond)
	}

	x.save(ctx)
	x.publish(ctx, &events.RunFinished{
		BaseEvent:  events.NewBaseEvent(events.RunFinishedEvent, run.ID, x.workflow.Version),
		RunID:      run.ID,
		WorkflowID: run.WorkflowID,
		Status:     status,
		Error:      message,
		DurationMs: run.DurationMs,
		NodesRun:   nodesRun,
	})
}

func (x *execution) snapshot() *models.ExecutionRun {
	x.mu.Lock()
	defer x.mu.Unlock()

	return x.run.Clone()
}

func (x *execution) save(ctx context.Context) {
	if x.engine.runs == nil {
		return
	}

	err := x.engine.runs.Save(ctx, x.snapshot())
	if err != nil {
		x.logger.ErrorContext(ctx, "Failed to save run", "error", err)
	}
}

func (x *execution) publish(ctx context.Context, event events.Event) {
	if x.engine.publisher == nil {
		return
	}

	err := x.engine.publisher.Publish(ctx, x.run.ID, event)
	if err != nil {
		x.logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func errorMessage(result models.NodeResult) string {
	if result.Error != "" {
		return result.Error
	}

	if message, ok := result.Data["error"].(string); ok && message != "" {
		return message
	}

	return "node reported an error"
}

func withError(result models.NodeResult, message string) models.NodeResult {
	result.Port = models.PortError
	result.Status = string(models.NodeStatusError)
	result.Error = message

	return result
}
