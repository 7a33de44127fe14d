package services

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/dukex/conduit/pkg/models"
	"github.com/google/uuid"
)

// CreateNodeRequest represents the request to add a node to a workflow.
type CreateNodeRequest struct {
	Type      string
	Category  models.CategoryType
	Name      string
	Config    map[string]any
	Position  *models.Position
	TimeoutMs int
	Retry     *models.RetryPolicy
}

// UpdateNodeRequest represents the request to update an existing workflow node.
type UpdateNodeRequest struct {
	Name      string
	Config    map[string]any
	Position  *models.Position
	TimeoutMs int
	Retry     *models.RetryPolicy
}

// NodeChange is a node edit together with the workflow version it produced.
type NodeChange struct {
	Node     *models.WorkflowNode `json:"node,omitempty"`
	Workflow *models.Workflow     `json:"workflow"`
}

// Node edits single nodes of a workflow from the builder canvas. Every edit
// commits a new workflow version.
type Node struct {
	workflows *Workflow
}

// NewNode creates a new node service.
func NewNode(workflows *Workflow) *Node {
	return &Node{workflows: workflows}
}

// CreateNode adds a node to the workflow whose head is expectedVersion.
func (n *Node) CreateNode(
	ctx context.Context,
	workflowID string,
	expectedVersion int64,
	req *CreateNodeRequest,
	author string,
) (*NodeChange, error) {
	if req == nil {
		return nil, fmt.Errorf("node request cannot be nil: %w", ErrInvalidRequest)
	}

	current, err := n.workflows.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	node := &models.WorkflowNode{
		ID:        uuid.New().String(),
		Type:      req.Type,
		Category:  req.Category,
		Name:      req.Name,
		Config:    req.Config,
		TimeoutMs: req.TimeoutMs,
		Retry:     req.Retry,
	}

	// Initialize config if nil
	if node.Config == nil {
		node.Config = make(map[string]any)
	}

	next := *current
	next.Nodes = append(slices.Clone(current.Nodes), node)
	next.Layout = withPosition(current.Layout, node.ID, req.Position)

	saved, err := n.workflows.replace(ctx, "CreateNode", current, &next, expectedVersion, author, "Added node "+node.Name)
	if err != nil {
		return nil, err
	}

	return &NodeChange{Node: node, Workflow: saved}, nil
}

// GetNode retrieves a node of the current workflow version.
func (n *Node) GetNode(ctx context.Context, workflowID, nodeID string) (*models.WorkflowNode, error) {
	workflow, err := n.workflows.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	node := workflow.Node(nodeID)
	if node == nil {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}

	return node, nil
}

// UpdateNode replaces the editable fields of a node. Type and category are
// preserved.
func (n *Node) UpdateNode(
	ctx context.Context,
	workflowID, nodeID string,
	expectedVersion int64,
	req *UpdateNodeRequest,
	author string,
) (*NodeChange, error) {
	if req == nil {
		return nil, fmt.Errorf("node request cannot be nil: %w", ErrInvalidRequest)
	}

	current, err := n.workflows.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	existing := current.Node(nodeID)
	if existing == nil {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}

	updated := *existing
	updated.Name = req.Name
	updated.Config = req.Config
	updated.TimeoutMs = req.TimeoutMs
	updated.Retry = req.Retry

	// Initialize config if nil
	if updated.Config == nil {
		updated.Config = make(map[string]any)
	}

	next := *current
	next.Nodes = make([]*models.WorkflowNode, len(current.Nodes))

	for i, node := range current.Nodes {
		if node.ID == nodeID {
			next.Nodes[i] = &updated
		} else {
			next.Nodes[i] = node
		}
	}

	next.Layout = withPosition(current.Layout, nodeID, req.Position)

	saved, err := n.workflows.replace(ctx, "UpdateNode", current, &next, expectedVersion, author, "Updated node "+updated.Name)
	if err != nil {
		return nil, err
	}

	return &NodeChange{Node: &updated, Workflow: saved}, nil
}

// DeleteNode removes a node, every connection touching it and its layout entry.
func (n *Node) DeleteNode(
	ctx context.Context,
	workflowID, nodeID string,
	expectedVersion int64,
	author string,
) (*NodeChange, error) {
	current, err := n.workflows.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if current.Node(nodeID) == nil {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}

	next := *current
	next.Nodes = slices.DeleteFunc(slices.Clone(current.Nodes), func(node *models.WorkflowNode) bool {
		return node.ID == nodeID
	})
	next.Connections = slices.DeleteFunc(slices.Clone(current.Connections), func(conn *models.Connection) bool {
		return conn.SourceNodeID() == nodeID || conn.TargetNodeID() == nodeID
	})

	if current.Layout != nil {
		next.Layout = maps.Clone(current.Layout)
		delete(next.Layout, nodeID)
	}

	saved, err := n.workflows.replace(ctx, "DeleteNode", current, &next, expectedVersion, author, "Removed node "+nodeID)
	if err != nil {
		return nil, err
	}

	return &NodeChange{Workflow: saved}, nil
}

func withPosition(layout map[string]models.Position, nodeID string, position *models.Position) map[string]models.Position {
	if position == nil {
		return layout
	}

	next := maps.Clone(layout)
	if next == nil {
		next = make(map[string]models.Position)
	}

	next[nodeID] = *position

	return next
}
