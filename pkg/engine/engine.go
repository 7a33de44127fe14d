// Package engine runs workflow graphs. A run executes nodes in dependency
// order, at most MaxParallelism at a time, and records a trace entry for
// every node. Nodes with several upstream nodes wait for all of them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/conduit/pkg/eventbus"
	"github.com/dukex/conduit/pkg/graph"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/otelhelper"
	"github.com/dukex/conduit/pkg/protocol"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrInvalidWorkflow = errors.New("invalid workflow")
	ErrRunNotActive    = errors.New("run is not active")
	ErrNodeTimeout     = errors.New("node timed out")
	ErrEngineStopped   = errors.New("engine is shut down")
)

const (
	DefaultNodeTimeout    = 30 * time.Second
	DefaultMaxParallelism = 4

	TriggerTypeManual  = "manual"
	TriggerTypeWebhook = "webhook"
)

// NodeFactory instantiates the nodes of a workflow.
type NodeFactory interface {
	CreateNode(ctx context.Context, nodeType, id string, config map[string]any) (protocol.Node, error)
}

// RunStore persists runs when they start and when they are sealed.
type RunStore interface {
	Save(ctx context.Context, run *models.ExecutionRun) error
}

// Observer is told about finished nodes and runs.
type Observer interface {
	NodeFinished(nodeType string, status models.NodeStatus, duration time.Duration)
	RunFinished(status models.RunStatus, duration time.Duration)
}

type Config struct {
	NodeTimeout          time.Duration
	MaxParallelism       int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
}

func (c Config) withDefaults() Config {
	if c.NodeTimeout <= 0 {
		c.NodeTimeout = DefaultNodeTimeout
	}

	if c.MaxParallelism <= 0 {
		c.MaxParallelism = DefaultMaxParallelism
	}

	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = 200 * time.Millisecond
	}

	if c.RetryMaxInterval <= 0 {
		c.RetryMaxInterval = 5 * time.Second
	}

	return c
}

// RunOptions describe how a run was started.
type RunOptions struct {
	RunID       string
	TriggerType string
	Metadata    map[string]any
}

type Engine struct {
	logger    *slog.Logger
	nodes     NodeFactory
	runs      RunStore
	publisher eventbus.EventPublisher
	tracer    trace.Tracer
	observer  Observer
	config    Config

	mu      sync.Mutex
	active  map[string]*execution
	stopped bool
	// wg counts prepared runs, sync and async. It is only incremented under
	// mu while the engine is not stopped.
	wg sync.WaitGroup
}

type Option func(*Engine)

func WithRunStore(runs RunStore) Option {
	return func(e *Engine) { e.runs = runs }
}

func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(e *Engine) { e.publisher = publisher }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

func WithObserver(observer Observer) Option {
	return func(e *Engine) { e.observer = observer }
}

func WithConfig(config Config) Option {
	return func(e *Engine) { e.config = config }
}

func New(logger *slog.Logger, nodes NodeFactory, opts ...Option) *Engine {
	e := &Engine{
		logger: logger.With("module", "engine"),
		nodes:  nodes,
		tracer: otelhelper.NoopTracer("conduit-engine"),
		active: make(map[string]*execution),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.config = e.config.withDefaults()

	return e
}

// Run executes workflow and returns the sealed run.
func (e *Engine) Run(ctx context.Context, workflow *models.Workflow, trigger map[string]any, opts RunOptions) (*models.ExecutionRun, error) {
	x, err := e.prepare(ctx, workflow, trigger, opts)
	if err != nil {
		return nil, err
	}

	defer e.wg.Done()

	x.execute(ctx)

	return x.snapshot(), nil
}

// Start executes workflow in the background and returns the run as it
// was when scheduling began. The run outlives ctx; use Cancel to stop it.
func (e *Engine) Start(ctx context.Context, workflow *models.Workflow, trigger map[string]any, opts RunOptions) (*models.ExecutionRun, error) {
	x, err := e.prepare(ctx, workflow, trigger, opts)
	if err != nil {
		return nil, err
	}

	snapshot := x.snapshot()

	go func() {
		defer e.wg.Done()

		x.execute(context.WithoutCancel(ctx))
	}()

	return snapshot, nil
}

// Cancel stops scheduling new nodes of an active run. Nodes already running
// complete; the rest are skipped and the run ends as cancelled.
func (e *Engine) Cancel(runID string) error {
	e.mu.Lock()
	x, ok := e.active[runID]
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotActive, runID)
	}

	x.cancelled.Store(true)
	x.logger.Info("Run cancellation requested")

	return nil
}

// Get returns a copy of an active run.
func (e *Engine) Get(runID string) (*models.ExecutionRun, bool) {
	e.mu.Lock()
	x, ok := e.active[runID]
	e.mu.Unlock()

	if !ok {
		return nil, false
	}

	return x.snapshot(), true
}

// Shutdown refuses new runs, cancels every active run and waits for them
// to be sealed.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.stopped = true
	for _, x := range e.active {
		x.cancelled.Store(true)
	}
	e.mu.Unlock()

	done := make(chan struct{})

	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) prepare(ctx context.Context, workflow *models.Workflow, trigger map[string]any, opts RunOptions) (*execution, error) {
	g, err := graph.Build(workflow)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidWorkflow, err)
	}

	nodes := make(map[string]protocol.Node, len(workflow.Nodes))

	for _, wn := range workflow.Nodes {
		node, err := e.nodes.CreateNode(ctx, wn.Type, wn.ID, wn.Config)
		if err != nil {
			return nil, fmt.Errorf("%w: node %s: %w", ErrInvalidWorkflow, wn.ID, err)
		}

		nodes[wn.ID] = node
	}

	if opts.RunID == "" {
		opts.RunID = uuid.New().String()
	}

	if opts.TriggerType == "" {
		opts.TriggerType = TriggerTypeManual
	}

	if trigger == nil {
		trigger = map[string]any{}
	}

	run := &models.ExecutionRun{
		ID:              opts.RunID,
		WorkflowID:      workflow.ID,
		WorkflowVersion: workflow.Version,
		TriggerType:     opts.TriggerType,
		Trigger:         trigger,
		Status:          models.RunStatusRunning,
		StartedAt:       time.Now().UTC(),
	}

	for _, id := range g.TopologicalOrder() {
		run.Trace = append(run.Trace, &models.NodeTrace{
			NodeID: id,
			Type:   g.Node(id).Type,
			Status: models.NodeStatusPending,
		})
	}

	x := &execution{
		engine:   e,
		workflow: workflow,
		graph:    g,
		nodes:    nodes,
		metadata: opts.Metadata,
		logger:   e.logger.With("run_id", run.ID, "workflow_id", workflow.ID),
		run:      run,
		results:  make(map[string]map[string]models.NodeResult, len(nodes)),
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return nil, ErrEngineStopped
	}

	e.active[run.ID] = x
	e.wg.Add(1)

	return x, nil
}

func (e *Engine) release(runID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.active, runID)
}
