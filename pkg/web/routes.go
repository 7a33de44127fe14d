package web

import (
	"net/http"

	"github.com/dukex/conduit/pkg/models"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
)

// Mount registers every API route on router.
func (h *APIHandlers) Mount(router fiber.Router) {
	router.Get("/", h.Root)
	router.Get("/health", h.HealthCheck)
	router.Get("/nodes", h.GetNodeTypes)

	if h.metrics != nil {
		router.Get("/metrics", adaptor.HTTPHandler(h.metrics))
	}

	router.Get("/stream", h.Stream)

	hl := router.Group("/health")
	hl.Get("/integrations", h.GetIntegrationsHealth)
	hl.Get("/integrations/:id", h.GetIntegrationHealth)
	hl.Post("/samples", h.RecordSamples)

	i := router.Group("/integrations")
	i.Get("/", h.GetIntegrations)
	i.Post("/", h.CreateIntegration)
	i.Post("/bulk-status", h.BulkSetIntegrationStatus)
	i.Get("/:id", h.GetIntegration)
	i.Patch("/:id", h.UpdateIntegration)
	i.Delete("/:id", h.DeleteIntegration)
	i.Post("/:id/test", h.TestIntegration)
	i.Post("/:id/deploy", h.DeployIntegration)
	h.mountVersions(i, models.EntityKindIntegration)

	w := router.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Post("/validate", h.ValidateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Put("/:id", h.UpdateWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)
	w.Post("/:id/activate", h.ActivateWorkflow)
	w.Post("/:id/deactivate", h.DeactivateWorkflow)
	w.Post("/:id/runs", h.RunWorkflow)
	w.Get("/:id/runs", h.GetWorkflowRuns)
	h.mountVersions(w, models.EntityKindWorkflow)

	// Node endpoints:
	w.Post("/:id/nodes", h.CreateWorkflowNode)
	w.Get("/:id/nodes/:nodeId", h.GetWorkflowNode)
	w.Patch("/:id/nodes/:nodeId", h.UpdateWorkflowNode)
	w.Delete("/:id/nodes/:nodeId", h.DeleteWorkflowNode)

	r := router.Group("/runs")
	r.Get("/:runId", h.GetRun)
	r.Post("/:runId/cancel", h.CancelRun)

	a := router.Group("/alerts")
	a.Get("/", h.GetAlerts)
	a.Get("/:id", h.GetAlert)
	a.Post("/:id/acknowledge", h.AcknowledgeAlert)
	a.Post("/:id/resolve", h.ResolveAlert)

	router.Add([]string{http.MethodPost, http.MethodPut, http.MethodPatch}, "/hooks/:workflowId", h.TriggerWebhook)
}

func (h *APIHandlers) mountVersions(group fiber.Router, kind models.EntityKind) {
	group.Get("/:id/versions", h.GetVersions(kind))
	group.Get("/:id/versions/:n", h.GetVersion(kind))
	group.Get("/:id/diff", h.GetDiff(kind))
	group.Post("/:id/rollback", h.Rollback(kind))
}
