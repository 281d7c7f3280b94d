package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/notegraph/pkg/types"
)

// Errors returned by entity and flush operations.
var (
	ErrReadOnlyField   = errors.New("field is read-only")
	ErrInvalidState    = errors.New("invalid entity state")
	ErrUnsetField      = errors.New("field is not set")
	ErrUnknownField    = errors.New("unknown field")
	ErrValidation      = errors.New("validation failed")
	ErrDependencyCycle = errors.New("dependency cycle")
	ErrAlreadyBound    = errors.New("entity is bound to another note")
	ErrAlreadyMember   = errors.New("entity is already in the collection")
	ErrNotMember       = errors.New("entity is not in the collection")
	ErrWrongKind       = errors.New("wrong attribute kind")
)

// ReadOnlyFieldError is returned when a caller writes a field that is not
// locally writable.
type ReadOnlyFieldError struct {
	Entity string
	Field  string
}

func (e *ReadOnlyFieldError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Entity, e.Field, ErrReadOnlyField)
}

// Is reports whether target is ErrReadOnlyField.
func (e *ReadOnlyFieldError) Is(target error) bool { return target == ErrReadOnlyField }

// InvalidStateError is returned when an operation is not allowed in the
// entity's current state, such as writing a field of a deleted entity.
type InvalidStateError struct {
	Entity string
	State  types.State
	Op     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: cannot %s in state %s: %v", e.Entity, e.Op, e.State, ErrInvalidState)
}

// Is reports whether target is ErrInvalidState.
func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// UnsetFieldError is returned when a field has neither a working nor a
// backing value.
type UnsetFieldError struct {
	Entity string
	Field  string
}

func (e *UnsetFieldError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Entity, e.Field, ErrUnsetField)
}

// Is reports whether target is ErrUnsetField.
func (e *UnsetFieldError) Is(target error) bool { return target == ErrUnsetField }

// Violation is one structural problem found while validating a flush.
type Violation struct {
	Entity  Entity
	Problem string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Entity, v.Problem)
}

// ValidationError aggregates every violation found before a flush issued
// any remote call.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	lines := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		lines[i] = v.String()
	}
	return fmt.Sprintf("%v: %d problem(s): %s", ErrValidation, len(e.Violations), strings.Join(lines, "; "))
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
