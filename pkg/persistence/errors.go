package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrEntityNotFound indicates no version was ever committed for the entity.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrEntityDeleted indicates the entity exists but has been deleted.
	ErrEntityDeleted = errors.New("entity deleted")

	// ErrVersionNotFound indicates the requested version number does not exist.
	ErrVersionNotFound = errors.New("version not found")

	// ErrVersionConflict indicates the head moved since the caller read it.
	ErrVersionConflict = errors.New("version conflict")

	// ErrAlertNotFound indicates an alert was not found by the given identifier.
	ErrAlertNotFound = errors.New("alert not found")

	// ErrAlertConflict indicates an alert was changed since it was read.
	ErrAlertConflict = errors.New("alert modified concurrently")

	// ErrRunNotFound indicates an execution run was not found.
	ErrRunNotFound = errors.New("execution run not found")

	// ErrCorrupted indicates stored data could not be decoded or breaks the log order.
	ErrCorrupted = errors.New("stored data is corrupted")

	// ErrInvalidID indicates an identifier that cannot be stored safely.
	ErrInvalidID = errors.New("invalid identifier")
)

// VersionError wraps version log errors with the entity they concern.
type VersionError struct {
	Op       string
	Kind     string
	EntityID string
	Number   int64
	Err      error
}

func (e *VersionError) Error() string {
	if e.Number > 0 {
		return fmt.Sprintf("%s %s %s v%d: %v", e.Op, e.Kind, e.EntityID, e.Number, e.Err)
	}

	return fmt.Sprintf("%s %s %s: %v", e.Op, e.Kind, e.EntityID, e.Err)
}

func (e *VersionError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for version errors.
func (e *VersionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewVersionError creates a new version error with context.
func NewVersionError(op, kind, entityID string, number int64, err error) *VersionError {
	return &VersionError{Op: op, Kind: kind, EntityID: entityID, Number: number, Err: err}
}

// IsNotFound reports whether err means the requested record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntityNotFound) ||
		errors.Is(err, ErrEntityDeleted) ||
		errors.Is(err, ErrVersionNotFound) ||
		errors.Is(err, ErrAlertNotFound) ||
		errors.Is(err, ErrRunNotFound)
}

// IsConflict reports whether err is an optimistic concurrency failure.
func IsConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
