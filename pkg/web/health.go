package web

import (
	"github.com/dukex/conduit/pkg/models"
	"github.com/gofiber/fiber/v3"
)

// SamplesRequest represents a batch of externally observed calls.
type SamplesRequest struct {
	Samples []models.Sample `json:"samples" validate:"required,min=1,max=1000,dive"`
}

func (h *APIHandlers) GetIntegrationsHealth(c fiber.Ctx) error {
	if h.health == nil {
		return c.JSON(fiber.Map{"integrations": []models.HealthSnapshot{}})
	}

	return c.JSON(fiber.Map{"integrations": h.health.Snapshots()})
}

func (h *APIHandlers) GetIntegrationHealth(c fiber.Ctx) error {
	integration, err := h.services.Integrations.Get(c.Context(), c.Params("id"))
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(h.services.Integrations.HealthOf(integration.ID))
}

// RecordSamples feeds external telemetry into the health monitor.
func (h *APIHandlers) RecordSamples(c fiber.Ctx) error {
	if h.health == nil {
		return notFound(c, "not_found", "Health monitoring is disabled")
	}

	var req SamplesRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	known := make(map[string]bool)

	for _, sample := range req.Samples {
		if known[sample.IntegrationID] {
			continue
		}

		if _, err := h.services.Integrations.Get(c.Context(), sample.IntegrationID); err != nil {
			return h.handleServiceError(c, err)
		}

		known[sample.IntegrationID] = true
	}

	now := h.now()

	for _, sample := range req.Samples {
		sample.Source = models.SampleSourceExternal
		if sample.Timestamp.IsZero() {
			sample.Timestamp = now
		}

		h.health.Record(sample)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": len(req.Samples)})
}
