package services

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dukex/conduit/pkg/eventbus"
	"github.com/dukex/conduit/pkg/events"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
	"github.com/dukex/conduit/pkg/versioning"
	"github.com/google/uuid"
)

// Workflow saves, lists and deletes versioned workflows.
type Workflow struct {
	history

	persistence persistence.Persistence
	nodes       NodeValidator
	now         func() time.Time
}

// NewWorkflow creates a new workflow service. nodes checks node configs on save.
func NewWorkflow(
	logger *slog.Logger,
	persistence persistence.Persistence,
	store *versioning.Store,
	nodes NodeValidator,
	publisher eventbus.EventPublisher,
) *Workflow {
	return &Workflow{
		history: history{
			logger:    logger.With("module", "workflows"),
			store:     store,
			publisher: publisher,
		},
		persistence: persistence,
		nodes:       nodes,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListWorkflowsRequest contains options for listing workflows.
type ListWorkflowsRequest struct {
	// Pagination
	Limit  int
	Offset int

	// Filtering
	Status *models.WorkflowStatus
	Search string

	// Sorting
	SortBy    string
	SortOrder string
}

// ListWorkflowsResponse contains the result of listing workflows.
type ListWorkflowsResponse struct {
	Workflows   []*models.Workflow `json:"workflows"`
	TotalCount  int64              `json:"total_count"`
	HasNextPage bool               `json:"has_next_page"`
}

// ListWorkflows retrieves workflows with filtering, sorting, and pagination.
func (w *Workflow) ListWorkflows(ctx context.Context, req ListWorkflowsRequest) (*ListWorkflowsResponse, error) {
	// Validate and set defaults
	if err := w.validateListWorkflowsRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	heads, err := w.store.Heads(ctx, models.EntityKindWorkflow)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	search := strings.ToLower(strings.TrimSpace(req.Search))
	workflows := make([]*models.Workflow, 0, len(heads))

	for _, head := range heads {
		workflow, err := decodeWorkflow(head)
		if err != nil {
			return nil, err
		}

		if req.Status != nil && workflow.Status != *req.Status {
			continue
		}

		if search != "" && !strings.Contains(strings.ToLower(workflow.Name), search) {
			continue
		}

		workflows = append(workflows, workflow)
	}

	slices.SortStableFunc(workflows, func(a, b *models.Workflow) int {
		var c int

		switch req.SortBy {
		case "name":
			c = cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		case "updated_at":
			c = a.UpdatedAt.Compare(b.UpdatedAt)
		default:
			c = a.CreatedAt.Compare(b.CreatedAt)
		}

		if req.SortOrder == "desc" {
			return -c
		}

		return c
	})

	page, hasNext := paginate(workflows, req.Offset, req.Limit)

	return &ListWorkflowsResponse{
		Workflows:   page,
		TotalCount:  int64(len(workflows)),
		HasNextPage: hasNext,
	}, nil
}

// validateListWorkflowsRequest validates and sets defaults for the request.
func (w *Workflow) validateListWorkflowsRequest(req *ListWorkflowsRequest) error {
	err := validateListRequest("validateListWorkflowsRequest", &req.Limit, &req.Offset, &req.SortBy, &req.SortOrder)
	if err != nil {
		return err
	}

	// Validate status if provided
	if req.Status != nil {
		allowedStatuses := []models.WorkflowStatus{
			models.WorkflowStatusDraft,
			models.WorkflowStatusActive,
			models.WorkflowStatusInactive,
		}

		if !slices.Contains(allowedStatuses, *req.Status) {
			return NewServiceError(
				"validateListWorkflowsRequest",
				"INVALID_STATUS",
				fmt.Sprintf("invalid status '%s'", *req.Status),
				ErrInvalidStatus,
			)
		}
	}

	return nil
}

// validateListRequest sets paging and sorting defaults and checks them
// against the allowlist shared by every listing.
func validateListRequest(op string, limit, offset *int, sortBy, sortOrder *string) error {
	// Set defaults
	if *limit <= 0 {
		*limit = 20
	}

	if *limit > 100 {
		*limit = 100
	}

	if *offset < 0 {
		*offset = 0
	}

	if *sortBy == "" {
		*sortBy = "created_at"
	}

	if *sortOrder == "" {
		*sortOrder = "desc"
	}

	// Validate sort parameters against allowlist
	allowedSorts := []string{"created_at", "updated_at", "name"}

	if !slices.Contains(allowedSorts, *sortBy) {
		return NewServiceError(
			op,
			"INVALID_SORT_FIELD",
			fmt.Sprintf("invalid sort field '%s', allowed: %s", *sortBy, strings.Join(allowedSorts, ", ")),
			ErrInvalidSortField,
		)
	}

	// Validate sort order
	if *sortOrder != "asc" && *sortOrder != "desc" {
		return NewServiceError(
			op,
			"INVALID_SORT_ORDER",
			fmt.Sprintf("invalid sort order '%s', allowed: asc, desc", *sortOrder),
			ErrInvalidSortOrder,
		)
	}

	return nil
}

func paginate[T any](items []T, offset, limit int) ([]T, bool) {
	if offset >= len(items) {
		return []T{}, false
	}

	end := min(offset+limit, len(items))

	return items[offset:end], end < len(items)
}

// FetchByID retrieves the current version of a workflow.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	head, err := w.store.Head(ctx, models.EntityKindWorkflow, id)
	if err != nil {
		return nil, notFound(err, ErrWorkflowNotFound)
	}

	return decodeWorkflow(head)
}

// FetchVersion retrieves a specific version of a workflow.
func (w *Workflow) FetchVersion(ctx context.Context, id string, number int64) (*models.Workflow, error) {
	version, err := w.store.Get(ctx, models.EntityKindWorkflow, id, number)
	if err != nil {
		return nil, notFound(err, ErrWorkflowNotFound)
	}

	return decodeWorkflow(version)
}

// Validate checks a workflow definition without saving it.
func (w *Workflow) Validate(workflow *models.Workflow) error {
	if workflow == nil {
		return fmt.Errorf("workflow cannot be nil: %w", ErrInvalidRequest)
	}

	return validateWorkflow("Validate", workflow, w.nodes)
}

// Create validates workflow and commits it as version 1.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow, author string) (*models.Workflow, error) {
	if workflow == nil {
		return nil, fmt.Errorf("workflow cannot be nil: %w", ErrInvalidRequest)
	}

	next := *workflow

	if next.ID == "" {
		next.ID = uuid.New().String()
	}

	if next.Status == "" {
		next.Status = models.WorkflowStatusDraft
	}

	if next.Connections == nil {
		next.Connections = []*models.Connection{}
	}

	assignConnectionIDs(&next)

	now := w.now()
	next.Version = 1
	next.CreatedAt = now
	next.UpdatedAt = now
	next.CreatedBy = author
	next.UpdatedBy = author

	err := validateWorkflow("Create", &next, w.nodes)
	if err != nil {
		return nil, err
	}

	_, err = w.commit(ctx, models.EntityKindWorkflow, next.ID, 0, &next, author, "Created")
	if err != nil {
		return nil, err
	}

	w.logger.InfoContext(ctx, "Workflow created", "workflow_id", next.ID, "name", next.Name)
	w.announce(ctx, events.WorkflowSavedEvent, &next, author)

	return &next, nil
}

// Update commits workflow as version expectedVersion+1 after validating the
// graph and every node config.
func (w *Workflow) Update(
	ctx context.Context,
	id string,
	expectedVersion int64,
	workflow *models.Workflow,
	author, note string,
) (*models.Workflow, error) {
	if workflow == nil {
		return nil, fmt.Errorf("workflow cannot be nil: %w", ErrInvalidRequest)
	}

	current, err := w.FetchByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *workflow

	return w.replace(ctx, "Update", current, &next, expectedVersion, author, note)
}

func (w *Workflow) replace(
	ctx context.Context,
	op string,
	current, next *models.Workflow,
	expectedVersion int64,
	author, note string,
) (*models.Workflow, error) {
	if expectedVersion != current.Version {
		return nil, conflict(models.EntityKindWorkflow, current.ID, expectedVersion, current.Version)
	}

	if next.Status == "" {
		next.Status = current.Status
	}

	if next.Connections == nil {
		next.Connections = []*models.Connection{}
	}

	assignConnectionIDs(next)

	next.ID = current.ID
	next.Version = expectedVersion + 1
	next.CreatedAt = current.CreatedAt
	next.CreatedBy = current.CreatedBy
	next.UpdatedAt = w.now()
	next.UpdatedBy = author

	err := validateWorkflow(op, next, w.nodes)
	if err != nil {
		return nil, err
	}

	_, err = w.commit(ctx, models.EntityKindWorkflow, next.ID, expectedVersion, next, author, note)
	if err != nil {
		return nil, err
	}

	w.announce(ctx, events.WorkflowSavedEvent, next, author)

	return next, nil
}

// Delete tombstones a workflow. An expectedVersion of 0 deletes whatever the
// head is.
func (w *Workflow) Delete(ctx context.Context, id string, expectedVersion int64, author string) error {
	current, err := w.FetchByID(ctx, id)
	if err != nil {
		return err
	}

	if expectedVersion == 0 {
		expectedVersion = current.Version
	}

	err = w.store.Delete(ctx, models.EntityKindWorkflow, id, expectedVersion)
	if err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Workflow deleted", "workflow_id", id, "author", author)
	w.announce(ctx, events.WorkflowDeletedEvent, current, author)

	return nil
}

func (w *Workflow) announce(ctx context.Context, eventType events.EventType, workflow *models.Workflow, author string) {
	w.publish(ctx, workflow.ID, &events.WorkflowChanged{
		BaseEvent: events.NewBaseEvent(eventType, workflow.ID, workflow.Version),
		Workflow:  workflow,
		Author:    author,
	})
}

func assignConnectionIDs(workflow *models.Workflow) {
	for _, conn := range workflow.Connections {
		if conn != nil && conn.ID == "" {
			conn.ID = uuid.New().String()
		}
	}
}
