package gqlperm

import (
	"errors"
	"fmt"
)

// Standard sentinel errors.
var (
	// ErrBackend is returned when a permission check against the
	// authorization backend fails. The filter fails closed: a backend
	// failure aborts the walk instead of defaulting to "authorized".
	ErrBackend = errors.New("gqlperm: permission backend failure")

	// ErrNoSubject is returned when filtering is attempted without a
	// subject.
	ErrNoSubject = errors.New("gqlperm: no subject")
)

// BackendError wraps a failure reported by the authorization backend during
// a blanket or object-level check.
type BackendError struct {
	permission string
	entityType Type
	err        error
}

// Error returns the error string.
func (e *BackendError) Error() string {
	return fmt.Sprintf("gqlperm: checking %q for %s: %v", e.permission, e.entityType, e.err)
}

// Is reports whether the target error matches BackendError.
// This allows errors.Is(backendErr, ErrBackend) to return true.
func (e *BackendError) Is(err error) bool {
	return err == ErrBackend
}

// Unwrap returns the underlying backend error.
func (e *BackendError) Unwrap() error {
	return e.err
}

// Permission returns the permission name that was being checked.
func (e *BackendError) Permission() string {
	return e.permission
}

// EntityType returns the entity type that was being checked.
func (e *BackendError) EntityType() Type {
	return e.entityType
}

func newBackendError(permission string, t Type, err error) *BackendError {
	return &BackendError{permission: permission, entityType: t, err: err}
}

// IsBackendError returns true if the error is a BackendError.
func IsBackendError(err error) bool {
	if err == nil {
		return false
	}
	var e *BackendError
	return errors.As(err, &e) || errors.Is(err, ErrBackend)
}
