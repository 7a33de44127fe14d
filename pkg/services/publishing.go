package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/conduit/pkg/graph"
	"github.com/dukex/conduit/pkg/models"
)

// Publishing validation errors (400 Bad Request).
var (
	ErrWorkflowNameRequired = errors.New("workflow name is required")
	ErrNodesRequired        = errors.New("workflow must have at least one node")
	ErrTriggerNodeRequired  = errors.New("workflow must start with a webhook node")
)

const webhookNodeType = "webhook"

// Publishing moves workflows in and out of the active status. Only active
// workflows accept webhook triggers.
type Publishing struct {
	workflows *Workflow
}

// NewPublishing creates a new workflow publishing service.
func NewPublishing(workflows *Workflow) *Publishing {
	return &Publishing{workflows: workflows}
}

// Activate validates the workflow can serve webhook triggers and commits it
// with the active status.
func (p *Publishing) Activate(ctx context.Context, workflowID string, expectedVersion int64, author string) (*models.Workflow, error) {
	current, err := p.workflows.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if err := p.validateForPublishing(current); err != nil {
		return nil, NewServiceError("Activate", "NOT_PUBLISHABLE", err.Error(), errors.Join(ErrInvalidRequest, err))
	}

	return p.setStatus(ctx, current, expectedVersion, models.WorkflowStatusActive, author)
}

// Deactivate commits the workflow with the inactive status.
func (p *Publishing) Deactivate(ctx context.Context, workflowID string, expectedVersion int64, author string) (*models.Workflow, error) {
	current, err := p.workflows.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	return p.setStatus(ctx, current, expectedVersion, models.WorkflowStatusInactive, author)
}

func (p *Publishing) setStatus(
	ctx context.Context,
	current *models.Workflow,
	expectedVersion int64,
	status models.WorkflowStatus,
	author string,
) (*models.Workflow, error) {
	if current.Status == status && expectedVersion == current.Version {
		return current, nil
	}

	next := *current
	next.Status = status

	return p.workflows.replace(ctx, "SetStatus", current, &next, expectedVersion, author, "Status set to "+string(status))
}

// validateForPublishing ensures a workflow is ready to accept webhook triggers.
func (p *Publishing) validateForPublishing(workflow *models.Workflow) error {
	if workflow.Name == "" {
		return ErrWorkflowNameRequired
	}

	if len(workflow.Nodes) == 0 {
		return ErrNodesRequired
	}

	g, err := graph.Build(workflow)
	if err != nil {
		return fmt.Errorf("invalid graph: %w", err)
	}

	// Ensure there is at least one webhook entry node
	for _, id := range g.Entries() {
		if g.Node(id).Type == webhookNodeType {
			return nil
		}
	}

	return ErrTriggerNodeRequired
}
