package web

import (
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/services"
	"github.com/gofiber/fiber/v3"
)

func (h *APIHandlers) GetAlerts(c fiber.Ctx) error {
	limit, err := queryInt(c, "limit")
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	alerts, err := h.services.Alerts.List(c.Context(), services.ListAlertsRequest{
		IntegrationID: c.Query("integration_id"),
		Status:        models.AlertStatus(c.Query("status")),
		Severity:      models.AlertSeverity(c.Query("severity")),
		Limit:         limit,
	})
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"alerts": alerts})
}

func (h *APIHandlers) GetAlert(c fiber.Ctx) error {
	alert, err := h.services.Alerts.Get(c.Context(), c.Params("id"))
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(alert)
}

func (h *APIHandlers) AcknowledgeAlert(c fiber.Ctx) error {
	var req AlertActionRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	alert, err := h.services.Alerts.Acknowledge(c.Context(), c.Params("id"), alertActor(c, req))
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(alert)
}

func (h *APIHandlers) ResolveAlert(c fiber.Ctx) error {
	var req AlertActionRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	alert, err := h.services.Alerts.Resolve(c.Context(), c.Params("id"), alertActor(c, req))
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(alert)
}

func alertActor(c fiber.Ctx, req AlertActionRequest) string {
	if req.By != "" {
		return req.By
	}

	return actor(c)
}
