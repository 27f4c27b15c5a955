package domain

import "errors"

// ValidationError rejects a write before it reaches storage.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string { return e.Reason }

// NotFoundError indicates a referenced entity no longer exists.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string { return e.Kind + " not found: " + e.ID }

var (
	// ErrSelfDependency rejects a task blocking on itself.
	ErrSelfDependency = ValidationError{Reason: "task cannot depend on itself"}
	// ErrCircularDependency rejects an edge set that would close a cycle.
	ErrCircularDependency = ValidationError{Reason: "circular dependency"}
	// ErrUnknownColumn rejects a columnId outside the workspace's column list.
	ErrUnknownColumn = ValidationError{Reason: "unknown column"}
	// ErrUnknownPriority rejects a priority outside the known levels.
	ErrUnknownPriority = ValidationError{Reason: "unknown priority"}
)

// IsValidation reports whether err classifies as a pre-write rejection.
func IsValidation(err error) bool {
	var v ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err classifies as a missing-entity failure.
func IsNotFound(err error) bool {
	var v NotFoundError
	return errors.As(err, &v)
}
