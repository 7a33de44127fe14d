// Package web provides HTTP handlers and REST API endpoints for integrations,
// workflows, versions, runs and alerts.
package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/registry"
	"github.com/dukex/conduit/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

const (
	// ActorHeader names the caller recorded as author of committed versions.
	ActorHeader  = "X-Actor"
	defaultActor = "api"
)

var errVersionMismatch = errors.New("expected_version does not match If-Match")

// HealthSource is the health monitor as seen by the API.
type HealthSource interface {
	Record(sample models.Sample)
	Snapshot(integrationID string) (models.HealthSnapshot, bool)
	Snapshots() []models.HealthSnapshot
}

// Services groups the service layer the handlers call.
type Services struct {
	Integrations *services.Integrations
	Workflows    *services.Workflow
	Publishing   *services.Publishing
	Nodes        *services.Node
	Versions     *services.Versions
	Executions   *services.Executions
	Alerts       *services.Alerts
}

// Option configures optional collaborators of the handlers.
type Option func(*APIHandlers)

// WithHealth serves health snapshots and accepts external samples.
func WithHealth(health HealthSource) Option {
	return func(h *APIHandlers) { h.health = health }
}

// WithStream serves the event stream from broadcaster.
func WithStream(broadcaster *Broadcaster) Option {
	return func(h *APIHandlers) { h.stream = broadcaster }
}

// WithMetrics serves handler on /metrics.
func WithMetrics(handler http.Handler) Option {
	return func(h *APIHandlers) { h.metrics = handler }
}

// WithCorruptionHandler is called when a request hits a corrupted store.
func WithCorruptionHandler(fn func(error)) Option {
	return func(h *APIHandlers) { h.onCorruption = fn }
}

type APIHandlers struct {
	logger       *slog.Logger
	services     Services
	validator    *validator.Validate
	registry     *registry.Registry
	health       HealthSource
	stream       *Broadcaster
	metrics      http.Handler
	onCorruption func(error)
	now          func() time.Time
}

func NewAPIHandlers(
	logger *slog.Logger,
	svc Services,
	validator *validator.Validate,
	registry *registry.Registry,
	opts ...Option,
) *APIHandlers {
	h := &APIHandlers{
		logger:    logger.With("module", "web"),
		services:  svc,
		validator: validator,
		registry:  registry,
		now:       func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

func (h *APIHandlers) Root(c fiber.Ctx) error {
	return c.SendString("Conduit API")
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	repositoryCheck, repOk := h.services.Workflows.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Conduit API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		message = "Conduit API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": h.now(),
	})
}

// Ready reports whether the persistence layer answers.
func (h *APIHandlers) Ready(c fiber.Ctx) bool {
	_, ok := h.services.Workflows.HealthCheck(c.Context())

	return ok
}

func (h *APIHandlers) GetNodeTypes(c fiber.Ctx) error {
	factories := h.registry.GetAvailableNodes()

	nodes := make([]NodeTypeResponse, 0, len(factories))
	for _, factory := range factories {
		nodes = append(nodes, TransformNodeType(factory))
	}

	return c.JSON(fiber.Map{"nodes": nodes})
}

var errInvalidJSON = errors.New("invalid JSON format")

// decode decodes the JSON body into out. An empty body leaves out untouched.
func decode(c fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}

	if err := c.Bind().JSON(out); err != nil {
		return errInvalidJSON
	}

	return nil
}

// bind decodes the JSON body into out and validates it.
func (h *APIHandlers) bind(c fiber.Ctx, out any) error {
	if err := decode(c, out); err != nil {
		return err
	}

	return h.validator.Struct(out)
}

// actor returns the caller that authored a change.
func actor(c fiber.Ctx) string {
	if by := strings.TrimSpace(c.Get(ActorHeader)); by != "" {
		return by
	}

	return defaultActor
}

// expectedVersion resolves the compare-and-swap version from the If-Match
// header or the request body. Both may be given when they agree.
func expectedVersion(c fiber.Ctx, fromBody int64) (int64, error) {
	header := strings.TrimSpace(c.Get(fiber.HeaderIfMatch))
	if header == "" {
		return fromBody, nil
	}

	header = strings.Trim(strings.TrimPrefix(header, "W/"), `"`)

	version, err := strconv.ParseInt(header, 10, 64)
	if err != nil || version < 0 {
		return 0, errors.New("version in If-Match must be a number")
	}

	if fromBody != 0 && fromBody != version {
		return 0, errVersionMismatch
	}

	return version, nil
}

// requireVersion is expectedVersion for writes that must name the version
// they were based on.
func requireVersion(c fiber.Ctx, fromBody int64) (int64, error) {
	version, err := expectedVersion(c, fromBody)
	if err != nil {
		return 0, err
	}

	if version <= 0 {
		return 0, errors.New("expected_version or If-Match is required")
	}

	return version, nil
}

// setETag exposes the version of the returned entity for If-Match.
func setETag(c fiber.Ctx, version int64) {
	c.Set(fiber.HeaderETag, `"`+strconv.FormatInt(version, 10)+`"`)
}

func queryInt(c fiber.Ctx, key string) (int, error) {
	value := c.Query(key)
	if value == "" {
		return 0, nil
	}

	return strconv.Atoi(value)
}

func queryInt64(c fiber.Ctx, key string) (int64, error) {
	value := c.Query(key)
	if value == "" {
		return 0, nil
	}

	return strconv.ParseInt(value, 10, 64)
}
