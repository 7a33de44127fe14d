// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/dukex/conduit/pkg/models"
	"github.com/google/uuid"
)

// CreateTestNode creates a test WorkflowNode with default values that can be overridden.
func CreateTestNode(overrides ...func(*models.WorkflowNode)) *models.WorkflowNode {
	node := &models.WorkflowNode{
		ID:       uuid.New().String(),
		Type:     "log",
		Category: models.CategoryTypeAction,
		Name:     "Test Node",
		Config:   map[string]any{"message": "test", "level": "info"},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithWebhookNode configures the node as a webhook entry node.
func WithWebhookNode() func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Type = "webhook"
		n.Category = models.CategoryTypeConnector
		n.Name = "Webhook"
		n.Config = map[string]any{"method": "POST"}
	}
}

// WithConfig sets the node configuration.
func WithConfig(config map[string]any) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Config = config
	}
}

// WithName sets the node name.
func WithName(name string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Name = name
	}
}

// WithType sets the node type.
func WithType(nodeType string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Type = nodeType
	}
}

// WithID sets the node ID.
func WithID(id string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.ID = id
	}
}

// CreateTestWorkflow creates an empty draft workflow.
func CreateTestWorkflow() *models.Workflow {
	return &models.Workflow{
		Name:        "Test Workflow",
		Description: "A workflow for testing",
		Status:      models.WorkflowStatusDraft,
		Variables:   map[string]any{"env": "test"},
		Nodes:       []*models.WorkflowNode{},
		Connections: []*models.Connection{},
	}
}

// CreateTestWorkflowWithNodes creates a workflow where a webhook node feeds a log node.
func CreateTestWorkflowWithNodes() *models.Workflow {
	workflow := CreateTestWorkflow()

	webhookNode := CreateTestNode(WithWebhookNode(), WithID("webhook-1"))
	actionNode := CreateTestNode(WithID("action-1"), WithName("Log Action"))

	workflow.Nodes = []*models.WorkflowNode{webhookNode, actionNode}
	workflow.Connections = []*models.Connection{
		CreateTestConnection("webhook-1", "action-1"),
	}

	return workflow
}

// CreateTestConnection connects the success port of one node to the main port of another.
func CreateTestConnection(sourceNodeID, targetNodeID string) *models.Connection {
	return &models.Connection{
		ID:         uuid.New().String(),
		SourcePort: sourceNodeID + ":" + models.PortSuccess,
		TargetPort: targetNodeID + ":" + models.PortMain,
	}
}

// CreateTestIntegration creates a valid GET integration that can be overridden.
func CreateTestIntegration(overrides ...func(*models.Integration)) *models.Integration {
	integration := &models.Integration{
		Name:        "Orders API",
		Description: "Order lookup",
		Endpoint:    "https://api.example.com/orders",
		Method:      "GET",
		Auth:        models.Auth{Type: models.AuthTypeBearer, Token: "secret"},
		Timeout:     10,
		Retry:       models.RetryPolicy{Attempts: 2},
		Environment: models.EnvironmentDevelopment,
		Status:      models.IntegrationStatusActive,
		Tags:        []string{"orders"},
	}

	for _, override := range overrides {
		override(integration)
	}

	return integration
}
