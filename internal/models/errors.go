package models

import "fmt"

// ValidationError reports caller input that violates an entity invariant.
// Boundaries match it with errors.As to separate bad requests from
// storage failures. Absence of a row is never an error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

// Validation builds a ValidationError for a field.
func Validation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
