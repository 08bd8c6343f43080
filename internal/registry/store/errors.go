package store

import "fmt"

// NotFoundError indicates the resource was not found (or the caller cannot see it).
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// GoneError indicates the resource exists but was soft-deleted.
type GoneError struct {
	Resource string
	ID       string
}

func (e *GoneError) Error() string {
	return fmt.Sprintf("%s deleted: %s", e.Resource, e.ID)
}

// ValidationError indicates a client-side validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ConflictError indicates a state or uniqueness conflict.
type ConflictError struct {
	Message string
	Code    string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// ForbiddenError indicates the caller's role does not allow the operation.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string {
	if e.Message == "" {
		return "forbidden"
	}
	return e.Message
}
