/*
errors.go - Error types for conditions and their persistence

PURPOSE:
  All condition-level error types in one place. Callers classify with
  errors.Is / errors.As; structured errors unwrap to their sentinel.

ERROR CATEGORIES:
  1. Validation errors - a condition breaks a business rule
  2. Store errors - the persistence gateway could not find or write a record

SEE ALSO:
  - condition.go: Validate produces *ValidationError
  - store.go: Gateway implementations return the store sentinels
  - session/errors.go: Session-level errors wrap these
*/
package condition

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidCondition is the sentinel behind every *ValidationError.
	ErrInvalidCondition = errors.New("invalid condition")

	// ErrConditionNotFound is returned when an ID does not exist in the store.
	ErrConditionNotFound = errors.New("condition not found")

	// ErrParentNotFound is returned when a parent does not exist.
	ErrParentNotFound = errors.New("parent not found")

	// ErrDuplicateParent is returned when creating a parent whose ID exists.
	ErrDuplicateParent = errors.New("parent already exists")

	// ErrDuplicateOrder is returned when two siblings would share an order.
	ErrDuplicateOrder = errors.New("duplicate condition order")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FieldError is one field-level problem.
type FieldError struct {
	Field   Field
	Code    string // e.g. "negative", "required", "out_of_range"
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *FieldError) Unwrap() error {
	return ErrInvalidCondition
}

// ValidationError collects every field problem of one condition.
type ValidationError struct {
	ConditionID ID // empty for drafts
	DraftIndex  int
	Fields      []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Error()
	}
	target := string(e.ConditionID)
	if target == "" {
		target = fmt.Sprintf("draft #%d", e.DraftIndex)
	}
	return fmt.Sprintf("invalid condition %s: %s", target, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidCondition
}

// HasField reports whether f has a problem.
func (e *ValidationError) HasField(f Field) bool {
	for _, fe := range e.Fields {
		if fe.Field == f {
			return true
		}
	}
	return false
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrConditionNotFound) || errors.Is(err, ErrParentNotFound)
}

// IsClientError returns true if the error is due to invalid input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidCondition) || errors.Is(err, ErrDuplicateOrder)
}
