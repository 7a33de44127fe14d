package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/conduit/pkg/engine"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
	"github.com/dukex/conduit/pkg/schema"
)

// RunRequest describes how to start a workflow run.
type RunRequest struct {
	Trigger     map[string]any
	TriggerType string
	Metadata    map[string]any
	// Version pins the workflow version; 0 runs the head.
	Version int64
	// Async returns as soon as the run is scheduled.
	Async bool
}

// Executions starts, inspects and cancels workflow runs.
type Executions struct {
	logger    *slog.Logger
	workflows *Workflow
	engine    *engine.Engine
	runs      persistence.RunRepository
}

// NewExecutions creates a new execution service.
func NewExecutions(logger *slog.Logger, workflows *Workflow, engine *engine.Engine, runs persistence.RunRepository) *Executions {
	return &Executions{
		logger:    logger.With("module", "executions"),
		workflows: workflows,
		engine:    engine,
		runs:      runs,
	}
}

// Run executes a workflow version with a trigger payload. The payload must
// match the workflow trigger_schema when one is set.
func (e *Executions) Run(ctx context.Context, workflowID string, req RunRequest) (*models.ExecutionRun, error) {
	var (
		workflow *models.Workflow
		err      error
	)

	if req.Version > 0 {
		workflow, err = e.workflows.FetchVersion(ctx, workflowID, req.Version)
	} else {
		workflow, err = e.workflows.FetchByID(ctx, workflowID)
	}

	if err != nil {
		return nil, err
	}

	if req.TriggerType == engine.TriggerTypeWebhook && workflow.Status != models.WorkflowStatusActive {
		return nil, fmt.Errorf("%w: %s is %s", ErrWorkflowInactive, workflowID, workflow.Status)
	}

	if req.Trigger == nil {
		req.Trigger = map[string]any{}
	}

	if workflow.TriggerSchema != nil {
		err = schema.Validate(workflow.TriggerSchema, req.Trigger)
		if err != nil {
			return nil, payloadErrors("Run", err)
		}
	}

	opts := engine.RunOptions{TriggerType: req.TriggerType, Metadata: req.Metadata}

	var run *models.ExecutionRun

	if req.Async {
		run, err = e.engine.Start(ctx, workflow, req.Trigger, opts)
	} else {
		run, err = e.engine.Run(ctx, workflow, req.Trigger, opts)
	}

	if err != nil {
		if errors.Is(err, engine.ErrInvalidWorkflow) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}

		return nil, fmt.Errorf("failed to run workflow %s: %w", workflowID, err)
	}

	e.logger.InfoContext(ctx, "Run started",
		"run_id", run.ID,
		"workflow_id", workflowID,
		"version", workflow.Version,
		"trigger_type", run.TriggerType,
	)

	return run, nil
}

// Trigger starts an asynchronous webhook run of an active workflow.
func (e *Executions) Trigger(ctx context.Context, workflowID string, payload, metadata map[string]any) (*models.ExecutionRun, error) {
	return e.Run(ctx, workflowID, RunRequest{
		Trigger:     payload,
		TriggerType: engine.TriggerTypeWebhook,
		Metadata:    metadata,
		Async:       true,
	})
}

// Get returns a run, live while it is active and from storage afterwards.
func (e *Executions) Get(ctx context.Context, runID string) (*models.ExecutionRun, error) {
	if run, ok := e.engine.Get(runID); ok {
		return run, nil
	}

	run, err := e.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, notFound(err, ErrRunNotFound)
	}

	return run, nil
}

// List returns the most recent runs of a workflow.
func (e *Executions) List(ctx context.Context, workflowID string, limit int) ([]*models.ExecutionRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	runs, err := e.runs.ListByWorkflow(ctx, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	return runs, nil
}

// Cancel stops an active run between node boundaries.
func (e *Executions) Cancel(ctx context.Context, runID string) error {
	err := e.engine.Cancel(runID)
	if err == nil {
		return nil
	}

	if !errors.Is(err, engine.ErrRunNotActive) {
		return err
	}

	_, getErr := e.runs.GetByID(ctx, runID)
	if getErr != nil {
		return notFound(getErr, ErrRunNotFound)
	}

	return fmt.Errorf("%w: %s", ErrRunFinished, runID)
}
