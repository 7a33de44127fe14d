package web

import (
	"encoding/json"

	"github.com/dukex/conduit/pkg/nodes/webhook"
	"github.com/gofiber/fiber/v3"
)

// TriggerWebhook starts an asynchronous run of an active workflow with the
// request body as trigger payload. The webhook entry node checks the request
// method and headers.
func (h *APIHandlers) TriggerWebhook(c fiber.Ctx) error {
	payload := map[string]any{}

	if body := c.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			return badRequest(c, "Webhook payload must be a JSON object")
		}
	}

	run, err := h.services.Executions.Trigger(c.Context(), c.Params("workflowId"), payload, map[string]any{
		webhook.MetadataKey: webhookRequest(c),
	})
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"run_id":           run.ID,
		"workflow_id":      run.WorkflowID,
		"workflow_version": run.WorkflowVersion,
		"status":           run.Status,
	})
}

// webhookRequest captures the parts of the request the webhook node checks.
func webhookRequest(c fiber.Ctx) map[string]any {
	headers := make(map[string]any)

	for name, values := range c.GetReqHeaders() {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}

	query := make(map[string]any)
	for key, value := range c.Queries() {
		query[key] = value
	}

	return map[string]any{
		"method":  c.Method(),
		"headers": headers,
		"query":   query,
	}
}
