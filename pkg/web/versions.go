package web

import (
	"strconv"

	"github.com/dukex/conduit/pkg/models"
	"github.com/gofiber/fiber/v3"
)

// The version routes are mounted once per entity kind, so the handlers
// close over the kind instead of reading it from the path.

func (h *APIHandlers) GetVersions(kind models.EntityKind) fiber.Handler {
	return func(c fiber.Ctx) error {
		history, err := h.services.Versions.History(c.Context(), kind, c.Params("id"))
		if err != nil {
			return h.handleServiceError(c, err)
		}

		for i, version := range history {
			history[i], err = redactVersion(version)
			if err != nil {
				return h.handleServiceError(c, err)
			}
		}

		return c.JSON(fiber.Map{"versions": history})
	}
}

func (h *APIHandlers) GetVersion(kind models.EntityKind) fiber.Handler {
	return func(c fiber.Ctx) error {
		number, err := strconv.ParseInt(c.Params("n"), 10, 64)
		if err != nil || number <= 0 {
			return badRequest(c, "Version must be a positive number")
		}

		version, err := h.services.Versions.Get(c.Context(), kind, c.Params("id"), number)
		if err != nil {
			return h.handleServiceError(c, err)
		}

		version, err = redactVersion(version)
		if err != nil {
			return h.handleServiceError(c, err)
		}

		return c.JSON(version)
	}
}

func (h *APIHandlers) GetDiff(kind models.EntityKind) fiber.Handler {
	return func(c fiber.Ctx) error {
		from, err := queryInt64(c, "from")
		if err != nil {
			return badRequest(c, "Invalid query parameters: "+err.Error())
		}

		to, err := queryInt64(c, "to")
		if err != nil {
			return badRequest(c, "Invalid query parameters: "+err.Error())
		}

		changes, err := h.services.Versions.Diff(c.Context(), kind, c.Params("id"), from, to)
		if err != nil {
			return h.handleServiceError(c, err)
		}

		if kind == models.EntityKindIntegration {
			changes = models.RedactIntegrationChanges(changes)
		}

		return c.JSON(fiber.Map{
			"from":    from,
			"to":      to,
			"changes": changes,
		})
	}
}

func (h *APIHandlers) Rollback(kind models.EntityKind) fiber.Handler {
	return func(c fiber.Ctx) error {
		var req RollbackRequest
		if err := h.bind(c, &req); err != nil {
			return badRequest(c, err.Error())
		}

		expected, err := requireVersion(c, req.ExpectedVersion)
		if err != nil {
			return badRequest(c, err.Error())
		}

		version, err := h.services.Versions.Rollback(c.Context(), kind, c.Params("id"), req.Target, expected, actor(c))
		if err != nil {
			return h.handleServiceError(c, err)
		}

		setETag(c, version.Number)

		version, err = redactVersion(version)
		if err != nil {
			return h.handleServiceError(c, err)
		}

		return c.Status(fiber.StatusCreated).JSON(version)
	}
}

// redactVersion masks the credentials in an integration snapshot.
func redactVersion(version *models.Version) (*models.Version, error) {
	if version == nil || version.EntityKind != models.EntityKindIntegration {
		return version, nil
	}

	snapshot, err := models.RedactIntegrationSnapshot(version.Snapshot)
	if err != nil {
		return nil, err
	}

	out := *version
	out.Snapshot = snapshot

	return &out, nil
}
