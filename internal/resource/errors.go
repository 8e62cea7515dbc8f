// ABOUTME: Error types for the resource service
// ABOUTME: Validation failures and kind-specific not-found errors

package resource

import "fmt"

// ValidationError reports a missing required field. Handlers map it to a
// 400 response before any backend is reached.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

// NotFoundError reports an absent id in a target collection, carrying the
// human-facing kind label ("Advertisement not found").
type NotFoundError struct {
	Label string
}

func (e *NotFoundError) Error() string {
	return e.Label + " not found"
}
