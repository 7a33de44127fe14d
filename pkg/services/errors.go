// Package services implements the integration registry, workflow, execution,
// version and alert operations on top of the version store and persistence.
package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/conduit/pkg/persistence"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInvalidSortField = errors.New("invalid sort field")
	ErrInvalidSortOrder = errors.New("invalid sort order")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrInvalidKind      = errors.New("invalid entity kind")
	ErrInvalidPayload   = errors.New("invalid trigger payload")

	// Not Found Errors (404 Not Found).
	ErrIntegrationNotFound = errors.New("integration not found")
	ErrWorkflowNotFound    = errors.New("workflow not found")
	ErrNodeNotFound        = errors.New("node not found")
	ErrVersionNotFound     = errors.New("version not found")
	ErrAlertNotFound       = errors.New("alert not found")
	ErrRunNotFound         = errors.New("run not found")

	// Business Logic Conflicts (409 Conflict).
	ErrVersionConflict  = persistence.ErrVersionConflict
	ErrWorkflowInactive = errors.New("workflow does not accept webhook triggers")
	ErrRunFinished      = errors.New("run already finished")
	ErrAlertResolved    = errors.New("alert already resolved")

	// ErrStoreCorrupted is the only error the binaries treat as fatal.
	ErrStoreCorrupted = persistence.ErrCorrupted
)

// Field error codes reported by ValidationError.
const (
	CodeMissingField   = "missing_field"
	CodeMalformedURL   = "malformed_url"
	CodeAuthIncomplete = "auth_incomplete"
	CodeOutOfRange     = "out_of_range"
	CodeInvalidValue   = "invalid_value"
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewServiceError creates a new service error with context.
func NewServiceError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// FieldError is one rejected field of a request.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError lists every rejected field of a request.
type ValidationError struct {
	Op     string
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	messages := make([]string, 0, len(e.Fields))
	for _, field := range e.Fields {
		messages = append(messages, field.Field+": "+field.Message)
	}

	return fmt.Sprintf("%s: validation failed: %s", e.Op, strings.Join(messages, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRequest
}

func (e *ValidationError) add(field, code, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Code: code, Message: message})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}

	return e
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidSortField) ||
		errors.Is(err, ErrInvalidSortOrder) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidKind) ||
		errors.Is(err, ErrInvalidPayload) ||
		errors.Is(err, persistence.ErrInvalidID)
}

// IsNotFound checks if an error means the requested resource does not exist (HTTP 404).
func IsNotFound(err error) bool {
	return errors.Is(err, ErrIntegrationNotFound) ||
		errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrNodeNotFound) ||
		errors.Is(err, ErrVersionNotFound) ||
		errors.Is(err, ErrAlertNotFound) ||
		errors.Is(err, ErrRunNotFound) ||
		persistence.IsNotFound(err)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, ErrWorkflowInactive) ||
		errors.Is(err, ErrRunFinished) ||
		errors.Is(err, ErrAlertResolved)
}

// notFound maps a storage miss to the service sentinel of the entity.
func notFound(err, sentinel error) error {
	if persistence.IsNotFound(err) && !errors.Is(err, persistence.ErrVersionNotFound) {
		return fmt.Errorf("%w: %w", sentinel, err)
	}

	return err
}
