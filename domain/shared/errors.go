/*
Package shared defines the errors shared by every entity service layer.

Design:
 1. Sentinel errors classify failures and are matched with errors.Is().
 2. DomainError captures the stack when it is created and formats it lazily.
 3. DomainError may carry the error that caused it; errors.Is() matches both
    the sentinel and the cause.
*/
package shared

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ============================================================================
// Sentinel Errors
// ============================================================================

var (
	// ErrNotFound resource not found
	ErrNotFound = errors.New("not found")

	// ErrConflict resource conflict (duplicate key, concurrent modification)
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput invalid argument handed to the entity layer
	ErrInvalidInput = errors.New("invalid input")

	// ErrCapability the repository lacks the capability an operation needs
	ErrCapability = errors.New("missing repository capability")

	// ErrTranslation a criteria tree could not be translated into a backend query
	ErrTranslation = errors.New("criteria translation failed")

	// ErrTransaction a transactional batch failed and was rolled back
	ErrTransaction = errors.New("transaction failed")

	// ErrInvalidEntityType the entity type name is not registered
	ErrInvalidEntityType = errors.New("invalid entity type")

	// ErrRepositoryNotFound no repository is registered for an entity type name
	ErrRepositoryNotFound = errors.New("repository not found")
)

// ============================================================================
// Domain Error
// ============================================================================

// DomainError structured error with entity context and the creation stack.
type DomainError struct {
	// Err underlying sentinel, used by errors.Is()
	Err error

	// Entity entity type name the error relates to (may be empty)
	Entity string

	// Message human readable description
	Message string

	// Field optional field name (validation and translation errors)
	Field string

	// Cause optional error that triggered this one
	Cause error

	stack []uintptr
}

// Error implements error
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes both the sentinel and the cause to errors.Is() / errors.As().
func (e *DomainError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// Stack formats the captured stack on demand.
func (e *DomainError) Stack() []string {
	return FormatStack(e.stack)
}

// ============================================================================
// Stack helpers
// ============================================================================

// CaptureStack captures the current call stack.
// skip: frames to skip (usually 3: Callers, CaptureStack, NewXxxError)
func CaptureStack(skip int) []uintptr {
	var pcs [32]uintptr
	n := runtime.Callers(skip, pcs[:])
	return pcs[:n]
}

// FormatStack formats frames, dropping runtime internals, at most 10 frames.
func FormatStack(stack []uintptr) []string {
	if len(stack) == 0 {
		return nil
	}

	frames := runtime.CallersFrames(stack)
	var result []string
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			result = append(result, fmt.Sprintf("%s:%d %s", frame.File, frame.Line, frame.Function))
		}
		if !more || len(result) > 10 {
			break
		}
	}
	return result
}

// ============================================================================
// Constructors
// ============================================================================

// NewNotFoundError creates a "not found" error for an entity.
func NewNotFoundError(entity string) error {
	return &DomainError{
		Err:     ErrNotFound,
		Entity:  entity,
		Message: entity + " not found",
		stack:   CaptureStack(3),
	}
}

// NewConflictError creates a conflict error.
func NewConflictError(entity, message string) error {
	return &DomainError{
		Err:     ErrConflict,
		Entity:  entity,
		Message: message,
		stack:   CaptureStack(3),
	}
}

// NewValidationError creates an invalid input error for a field.
func NewValidationError(entity, field, reason string) error {
	return &DomainError{
		Err:     ErrInvalidInput,
		Entity:  entity,
		Field:   field,
		Message: reason,
		stack:   CaptureStack(3),
	}
}

// NewCapabilityError reports that the repository of entity is not <capability>,
// e.g. "repository is not deletable for entity Note".
func NewCapabilityError(entity, capability string) error {
	return &DomainError{
		Err:     ErrCapability,
		Entity:  entity,
		Message: fmt.Sprintf("repository is not %s for entity %s", capability, entity),
		stack:   CaptureStack(3),
	}
}

// NewTranslationError reports an untranslatable criteria node.
func NewTranslationError(field, reason string) error {
	return &DomainError{
		Err:     ErrTranslation,
		Field:   field,
		Message: reason,
		stack:   CaptureStack(3),
	}
}

// NewTransactionError wraps the error that made a transactional batch fail.
func NewTransactionError(message string, cause error) error {
	return &DomainError{
		Err:     ErrTransaction,
		Message: message,
		Cause:   cause,
		stack:   CaptureStack(3),
	}
}

// NewInvalidEntityTypeError reports an unknown entity type name.
func NewInvalidEntityTypeError(entity string) error {
	return &DomainError{
		Err:     ErrInvalidEntityType,
		Entity:  entity,
		Message: fmt.Sprintf("invalid entity type %q provided", entity),
		stack:   CaptureStack(3),
	}
}

// NewRepositoryNotFoundError reports a missing repository registration.
func NewRepositoryNotFoundError(entity string) error {
	return &DomainError{
		Err:     ErrRepositoryNotFound,
		Entity:  entity,
		Message: fmt.Sprintf("no repository registered for entity %q", entity),
		stack:   CaptureStack(3),
	}
}

// ============================================================================
// Stacker
// ============================================================================

// Stacker errors able to report their creation stack
type Stacker interface {
	Stack() []string
}
