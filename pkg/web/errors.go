package web

import (
	"errors"

	"github.com/dukex/conduit/pkg/persistence"
	"github.com/dukex/conduit/pkg/services"
	"github.com/dukex/conduit/pkg/versioning"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

// problem is an RFC 7807 document with the extension members the API adds.
type problem struct {
	*problems.Problem

	Errors         []services.FieldError `json:"errors,omitempty"`
	CurrentVersion int64                 `json:"current_version,omitempty"`
}

func newProblem(c fiber.Ctx, status int, problemType string) *problem {
	return &problem{
		Problem: problems.NewStatusProblem(status).
			WithInstance(c.Path()).
			WithType(problemType),
	}
}

func badRequest(c fiber.Ctx, detail string) error {
	p := newProblem(c, fiber.StatusBadRequest, "validation_error")
	p.Detail = detail

	return c.Status(fiber.StatusBadRequest).JSON(p)
}

func notFound(c fiber.Ctx, problemType, detail string) error {
	p := newProblem(c, fiber.StatusNotFound, problemType)
	p.Detail = detail

	return c.Status(fiber.StatusNotFound).JSON(p)
}

func internalError(c fiber.Ctx, err error) error {
	p := &problem{
		Problem: problems.NewStatusProblem(fiber.StatusInternalServerError).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err),
	}

	return c.Status(fiber.StatusInternalServerError).JSON(p)
}

// handleServiceError renders a service layer error as a problem document.
func (h *APIHandlers) handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err):
		p := newProblem(c, fiber.StatusBadRequest, "validation_error")
		p.Detail = err.Error()

		var verr *services.ValidationError
		if errors.As(err, &verr) {
			p.Errors = verr.Fields
		}

		return c.Status(fiber.StatusBadRequest).JSON(p)

	case services.IsNotFound(err):
		return notFound(c, notFoundType(err), err.Error())

	case services.IsConflictError(err):
		p := newProblem(c, fiber.StatusConflict, "conflict")
		p.Detail = err.Error()

		var conflict *versioning.ConflictError
		if errors.As(err, &conflict) {
			p.WithType("version_conflict")
			p.CurrentVersion = conflict.Current
		}

		return c.Status(fiber.StatusConflict).JSON(p)

	case errors.Is(err, services.ErrStoreCorrupted):
		h.logger.ErrorContext(c.Context(), "Store corrupted", "path", c.Path(), "error", err)

		if h.onCorruption != nil {
			h.onCorruption(err)
		}

		return internalError(c, err)

	default:
		h.logger.ErrorContext(c.Context(), "Request failed", "path", c.Path(), "error", err)

		return internalError(c, err)
	}
}

func notFoundType(err error) string {
	switch {
	case errors.Is(err, services.ErrNodeNotFound):
		return "node_not_found"
	case errors.Is(err, services.ErrVersionNotFound), errors.Is(err, persistence.ErrVersionNotFound):
		return "version_not_found"
	case errors.Is(err, services.ErrIntegrationNotFound):
		return "integration_not_found"
	case errors.Is(err, services.ErrWorkflowNotFound):
		return "workflow_not_found"
	case errors.Is(err, services.ErrAlertNotFound):
		return "alert_not_found"
	case errors.Is(err, services.ErrRunNotFound):
		return "run_not_found"
	default:
		return "not_found"
	}
}
