package web

import (
	"context"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/services"
	"github.com/gofiber/fiber/v3"
)

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	// Parse query parameters
	req, err := parseListWorkflowsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	// Call service layer
	result, err := h.services.Workflows.ListWorkflows(c.Context(), *req)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	// Return structured response with pagination metadata
	return c.JSON(fiber.Map{
		"workflows":     result.Workflows,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
		"sorting": fiber.Map{
			"sort_by":    req.SortBy,
			"sort_order": req.SortOrder,
		},
	})
}

// parseListWorkflowsRequest parses query parameters for listing workflows.
func parseListWorkflowsRequest(c fiber.Ctx) (*services.ListWorkflowsRequest, error) {
	req := &services.ListWorkflowsRequest{
		Search:    c.Query("search"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	var err error

	// Parse pagination parameters
	req.Limit, err = queryInt(c, "limit")
	if err != nil {
		return nil, err
	}

	req.Offset, err = queryInt(c, "offset")
	if err != nil {
		return nil, err
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.WorkflowStatus(statusStr)
		req.Status = &status
	}

	return req, nil
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.services.Workflows.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return h.handleServiceError(c, err)
	}

	setETag(c, workflow.Version)

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req WorkflowRequest
	if err := decode(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.services.Workflows.Create(c.Context(), &req.Workflow, actor(c))
	if err != nil {
		return h.handleServiceError(c, err)
	}

	setETag(c, created.Version)

	return c.Status(fiber.StatusCreated).JSON(created)
}

// ValidateWorkflow checks a workflow definition without storing it.
func (h *APIHandlers) ValidateWorkflow(c fiber.Ctx) error {
	var req WorkflowRequest
	if err := decode(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	if req.Status == "" {
		req.Status = models.WorkflowStatusDraft
	}

	if err := h.services.Workflows.Validate(&req.Workflow); err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"valid": true})
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	var req WorkflowRequest
	if err := decode(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	version, err := requireVersion(c, req.ExpectedVersion)
	if err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.services.Workflows.Update(c.Context(), c.Params("id"), version, &req.Workflow, actor(c), req.Note)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	setETag(c, updated.Version)

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	var req VersionRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	version, err := expectedVersion(c, req.ExpectedVersion)
	if err != nil {
		return badRequest(c, err.Error())
	}

	err = h.services.Workflows.Delete(c.Context(), c.Params("id"), version, actor(c))
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ActivateWorkflow(c fiber.Ctx) error {
	return h.setWorkflowStatus(c, h.services.Publishing.Activate)
}

func (h *APIHandlers) DeactivateWorkflow(c fiber.Ctx) error {
	return h.setWorkflowStatus(c, h.services.Publishing.Deactivate)
}

type statusChange func(ctx context.Context, workflowID string, expectedVersion int64, author string) (*models.Workflow, error)

func (h *APIHandlers) setWorkflowStatus(c fiber.Ctx, change statusChange) error {
	var req VersionRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	version, err := requireVersion(c, req.ExpectedVersion)
	if err != nil {
		return badRequest(c, err.Error())
	}

	workflow, err := change(c.Context(), c.Params("id"), version, actor(c))
	if err != nil {
		return h.handleServiceError(c, err)
	}

	setETag(c, workflow.Version)

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflowNode(c fiber.Ctx) error {
	var req CreateNodeRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	version, err := requireVersion(c, req.ExpectedVersion)
	if err != nil {
		return badRequest(c, err.Error())
	}

	change, err := h.services.Nodes.CreateNode(c.Context(), c.Params("id"), version, &services.CreateNodeRequest{
		Type:      req.Type,
		Category:  req.Category,
		Name:      req.Name,
		Config:    req.Config,
		Position:  req.Position,
		TimeoutMs: req.TimeoutMs,
		Retry:     req.Retry,
	}, actor(c))
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(nodeChangeResponse(c, change))
}

func (h *APIHandlers) GetWorkflowNode(c fiber.Ctx) error {
	node, err := h.services.Nodes.GetNode(c.Context(), c.Params("id"), c.Params("nodeId"))
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(node)
}

func (h *APIHandlers) UpdateWorkflowNode(c fiber.Ctx) error {
	var req UpdateNodeRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	version, err := requireVersion(c, req.ExpectedVersion)
	if err != nil {
		return badRequest(c, err.Error())
	}

	change, err := h.services.Nodes.UpdateNode(c.Context(), c.Params("id"), c.Params("nodeId"), version, &services.UpdateNodeRequest{
		Name:      req.Name,
		Config:    req.Config,
		Position:  req.Position,
		TimeoutMs: req.TimeoutMs,
		Retry:     req.Retry,
	}, actor(c))
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(nodeChangeResponse(c, change))
}

func (h *APIHandlers) DeleteWorkflowNode(c fiber.Ctx) error {
	var req VersionRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	version, err := requireVersion(c, req.ExpectedVersion)
	if err != nil {
		return badRequest(c, err.Error())
	}

	change, err := h.services.Nodes.DeleteNode(c.Context(), c.Params("id"), c.Params("nodeId"), version, actor(c))
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(nodeChangeResponse(c, change))
}

func nodeChangeResponse(c fiber.Ctx, change *services.NodeChange) NodeChangeResponse {
	setETag(c, change.Workflow.Version)

	return NodeChangeResponse{
		Node:            change.Node,
		WorkflowID:      change.Workflow.ID,
		WorkflowVersion: change.Workflow.Version,
	}
}
