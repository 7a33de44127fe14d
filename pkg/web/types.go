// Package web provides HTTP request and response types for the integration hub API.
package web

import (
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
)

// IntegrationRequest represents the request body for creating or updating an
// integration. ExpectedVersion is ignored on create.
type IntegrationRequest struct {
	models.Integration

	ExpectedVersion int64  `json:"expected_version,omitempty"`
	Note            string `json:"note,omitempty"`
}

// WorkflowRequest represents the request body for creating or replacing a workflow.
type WorkflowRequest struct {
	models.Workflow

	ExpectedVersion int64  `json:"expected_version,omitempty"`
	Note            string `json:"note,omitempty"`
}

// VersionRequest carries the compare-and-swap version of calls without a payload.
type VersionRequest struct {
	ExpectedVersion int64 `json:"expected_version" validate:"gte=0"`
}

// BulkStatusRequest represents the request body for moving many integrations
// to the same status.
type BulkStatusRequest struct {
	IDs    []string                 `json:"ids"    validate:"required,min=1,max=100,dive,required"`
	Status models.IntegrationStatus `json:"status" validate:"required,oneof=active inactive error testing"`
}

// DeployRequest represents the request body for deploying an integration.
type DeployRequest struct {
	Environment     models.Environment `json:"environment"      validate:"required,oneof=development staging production"`
	ExpectedVersion int64              `json:"expected_version" validate:"gte=0"`
	Note            string             `json:"note,omitempty"`
}

// RollbackRequest represents the request body for restoring a version.
type RollbackRequest struct {
	Target          int64 `json:"target"           validate:"required,gte=1"`
	ExpectedVersion int64 `json:"expected_version" validate:"gte=0"`
}

// RunWorkflowRequest represents the request body for starting a run from the API.
type RunWorkflowRequest struct {
	Trigger  map[string]any `json:"trigger"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Version  int64          `json:"version,omitempty" validate:"gte=0"`
	Async    bool           `json:"async"`
}

// AlertActionRequest represents the request body for acknowledging or
// resolving an alert.
type AlertActionRequest struct {
	By string `json:"by" validate:"omitempty,max=255"`
}

// CreateNodeRequest represents the request body for creating a new workflow node.
type CreateNodeRequest struct {
	Type            string              `json:"type"                 validate:"required"`
	Category        models.CategoryType `json:"category"             validate:"omitempty,oneof=connector transformer logic action"`
	Name            string              `json:"name"                 validate:"required,min=1"`
	Config          map[string]any      `json:"config"`
	Position        *models.Position    `json:"position,omitempty"`
	TimeoutMs       int                 `json:"timeout_ms,omitempty" validate:"gte=0"`
	Retry           *models.RetryPolicy `json:"retry,omitempty"`
	ExpectedVersion int64               `json:"expected_version"     validate:"gte=0"`
}

// UpdateNodeRequest represents the request body for updating an existing workflow node.
// Type and Category cannot be changed.
type UpdateNodeRequest struct {
	Name            string              `json:"name"                 validate:"required,min=1"`
	Config          map[string]any      `json:"config"`
	Position        *models.Position    `json:"position,omitempty"`
	TimeoutMs       int                 `json:"timeout_ms,omitempty" validate:"gte=0"`
	Retry           *models.RetryPolicy `json:"retry,omitempty"`
	ExpectedVersion int64               `json:"expected_version"     validate:"gte=0"`
}

// NodeChangeResponse is returned by node mutations: the node and the
// version of the workflow that now holds it.
type NodeChangeResponse struct {
	Node            *models.WorkflowNode `json:"node,omitempty"`
	WorkflowID      string               `json:"workflow_id"`
	WorkflowVersion int64                `json:"workflow_version"`
}

// NodeTypeResponse describes a registered node type.
type NodeTypeResponse struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Category    models.CategoryType `json:"category"`
	Schema      map[string]any      `json:"schema"`
}

// TransformNodeType transforms a node factory into its catalog entry.
func TransformNodeType(factory protocol.NodeFactory) NodeTypeResponse {
	return NodeTypeResponse{
		ID:          factory.ID(),
		Name:        factory.Name(),
		Description: factory.Description(),
		Category:    factory.Category(),
		Schema:      factory.Schema(),
	}
}
