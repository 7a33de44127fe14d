package web

import (
	"github.com/dukex/conduit/pkg/engine"
	"github.com/dukex/conduit/pkg/services"
	"github.com/gofiber/fiber/v3"
)

func (h *APIHandlers) RunWorkflow(c fiber.Ctx) error {
	var req RunWorkflowRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	run, err := h.services.Executions.Run(c.Context(), c.Params("id"), services.RunRequest{
		Trigger:     req.Trigger,
		TriggerType: engine.TriggerTypeManual,
		Metadata:    req.Metadata,
		Version:     req.Version,
		Async:       req.Async,
	})
	if err != nil {
		return h.handleServiceError(c, err)
	}

	if req.Async {
		return c.Status(fiber.StatusAccepted).JSON(run)
	}

	return c.JSON(run)
}

func (h *APIHandlers) GetWorkflowRuns(c fiber.Ctx) error {
	limit, err := queryInt(c, "limit")
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	runs, err := h.services.Executions.List(c.Context(), c.Params("id"), limit)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"runs": runs})
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	run, err := h.services.Executions.Get(c.Context(), c.Params("runId"))
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) CancelRun(c fiber.Ctx) error {
	err := h.services.Executions.Cancel(c.Context(), c.Params("runId"))
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}
