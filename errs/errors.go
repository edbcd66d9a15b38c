package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Sentinels for errors.Is. Every typed error below matches exactly one of
// them, except AlreadyExistsError which also matches ErrConflict.
var (
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("conflict")
	ErrAlreadyExists     = errors.New("aggregate already exists")
	ErrNotFound          = errors.New("not found")
	ErrTimeout           = errors.New("timed out")
	ErrIllegalTransition = errors.New("illegal status transition")
)

// ValidationError reports malformed input. Nothing was written.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}

	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Fields[name]))
	}
	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError creates a validation error without field details
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ConflictError is a business-rule rejection or a lost concurrent write.
// Callers may retry after re-reading state.
type ConflictError struct {
	AggregateID string
	Reason      string
	Details     []string
}

func (e *ConflictError) Error() string {
	msg := e.Reason
	if e.AggregateID != "" {
		msg = fmt.Sprintf("%s: %s", e.AggregateID, e.Reason)
	}
	if len(e.Details) > 0 {
		msg = fmt.Sprintf("%s [%s]", msg, strings.Join(e.Details, "; "))
	}
	return msg
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// AlreadyExistsError is returned when a creation targets an identity that
// already has events.
type AlreadyExistsError struct {
	AggregateID string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("aggregate %s already exists", e.AggregateID)
}

func (e *AlreadyExistsError) Is(target error) bool {
	return target == ErrAlreadyExists || target == ErrConflict
}

// NotFoundError means neither an aggregate nor a legacy row resolves.
type NotFoundError struct {
	Entity   string
	Identity string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Identity)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// TimeoutError means the outcome is unknown and probably succeeded.
type TimeoutError struct {
	Operation string
	After     time.Duration
}

func (e *TimeoutError) Error() string {
	if e.After > 0 {
		return fmt.Sprintf("%s did not complete within %s", e.Operation, e.After)
	}
	return fmt.Sprintf("%s did not complete before the deadline", e.Operation)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// IllegalTransitionError carries the statuses that are legal from From.
type IllegalTransitionError struct {
	Entity   string
	From     string
	To       string
	Allowed  []string
	Terminal bool
}

func (e *IllegalTransitionError) Error() string {
	switch {
	case e.Terminal:
		return fmt.Sprintf("invalid %s status transition: %s → %s. %s is a terminal status",
			e.Entity, e.From, e.To, e.From)
	case e.From == e.To:
		return fmt.Sprintf("invalid %s status transition: already in %s status", e.Entity, e.From)
	default:
		return fmt.Sprintf("invalid %s status transition: %s → %s. Valid transitions from %s: [%s]",
			e.Entity, e.From, e.To, e.From, strings.Join(e.Allowed, ", "))
	}
}

func (e *IllegalTransitionError) Is(target error) bool { return target == ErrIllegalTransition }

// Code classifies err for logs, metrics and wire responses.
func Code(err error) string {
	switch {
	case err == nil:
		return "OK"
	case errors.Is(err, ErrValidation):
		return "VALIDATION"
	case errors.Is(err, ErrAlreadyExists):
		return "ALREADY_EXISTS"
	case errors.Is(err, ErrIllegalTransition):
		return "ILLEGAL_TRANSITION"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrTimeout):
		return "TIMEOUT"
	default:
		return "INTERNAL"
	}
}
