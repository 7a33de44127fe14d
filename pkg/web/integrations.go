package web

import (
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/services"
	"github.com/gofiber/fiber/v3"
)

func (h *APIHandlers) GetIntegrations(c fiber.Ctx) error {
	req, err := parseListIntegrationsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.services.Integrations.List(c.Context(), *req)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"integrations":  redactIntegrations(result.Integrations),
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
	})
}

// parseListIntegrationsRequest parses query parameters for listing integrations.
func parseListIntegrationsRequest(c fiber.Ctx) (*services.ListIntegrationsRequest, error) {
	req := &services.ListIntegrationsRequest{
		Status:      models.IntegrationStatus(c.Query("status")),
		Health:      models.HealthState(c.Query("health")),
		Environment: models.Environment(c.Query("environment")),
		Tag:         c.Query("tag"),
		Search:      c.Query("search"),
		SortBy:      c.Query("sort_by"),
		SortOrder:   c.Query("sort_order"),
	}

	var err error

	req.Limit, err = queryInt(c, "limit")
	if err != nil {
		return nil, err
	}

	req.Offset, err = queryInt(c, "offset")
	if err != nil {
		return nil, err
	}

	return req, nil
}

func (h *APIHandlers) GetIntegration(c fiber.Ctx) error {
	integration, err := h.services.Integrations.Get(c.Context(), c.Params("id"))
	if err != nil {
		return h.handleServiceError(c, err)
	}

	setETag(c, integration.Version)

	return c.JSON(fiber.Map{
		"integration": integration.Redacted(),
		"health":      h.services.Integrations.HealthOf(integration.ID),
	})
}

func (h *APIHandlers) CreateIntegration(c fiber.Ctx) error {
	var req IntegrationRequest
	if err := decode(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.services.Integrations.Create(c.Context(), &req.Integration, actor(c))
	if err != nil {
		return h.handleServiceError(c, err)
	}

	setETag(c, created.Version)

	return c.Status(fiber.StatusCreated).JSON(created.Redacted())
}

func (h *APIHandlers) UpdateIntegration(c fiber.Ctx) error {
	var req IntegrationRequest
	if err := decode(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	version, err := requireVersion(c, req.ExpectedVersion)
	if err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.services.Integrations.Update(c.Context(), c.Params("id"), version, &req.Integration, actor(c), req.Note)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	setETag(c, updated.Version)

	return c.JSON(updated.Redacted())
}

func (h *APIHandlers) DeleteIntegration(c fiber.Ctx) error {
	var req VersionRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	version, err := expectedVersion(c, req.ExpectedVersion)
	if err != nil {
		return badRequest(c, err.Error())
	}

	err = h.services.Integrations.Delete(c.Context(), c.Params("id"), version, actor(c))
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) BulkSetIntegrationStatus(c fiber.Ctx) error {
	var req BulkStatusRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.services.Integrations.BulkSetStatus(c.Context(), req.IDs, req.Status, actor(c))
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) TestIntegration(c fiber.Ctx) error {
	result, err := h.services.Integrations.Test(c.Context(), c.Params("id"))
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) DeployIntegration(c fiber.Ctx) error {
	var req DeployRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	version, err := requireVersion(c, req.ExpectedVersion)
	if err != nil {
		return badRequest(c, err.Error())
	}

	deployed, err := h.services.Integrations.Deploy(c.Context(), c.Params("id"), version, req.Environment, actor(c), req.Note)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	setETag(c, deployed.Version)

	return c.JSON(deployed.Redacted())
}

func redactIntegrations(integrations []*models.Integration) []*models.Integration {
	out := make([]*models.Integration, len(integrations))
	for i, integration := range integrations {
		out[i] = integration.Redacted()
	}

	return out
}
