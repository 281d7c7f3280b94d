package types

import (
	"context"
	"errors"
	"fmt"
)

// Filter narrows a Fetch. Keys are table-specific; an empty filter matches
// every row.
type Filter map[string]any

// Table provides uniform CRUD operations for a single record kind.
// Get, Create, Update and Fetch return any; callers type-assert to the
// concrete record (*Note, *Attribute, *Branch, *NoteWithBranch).
type Table interface {
	// Get retrieves the record with the given ID.
	// Returns ErrNotFound if no record exists with that ID.
	Get(ctx context.Context, id string) (any, error)

	// Create inserts a record. When id is empty the store assigns one.
	// The returned record carries the id the store used.
	Create(ctx context.Context, id string, data any) (any, error)

	// Update writes the given fields onto an existing record and returns
	// the record as stored. Returns ErrNotFound if the record is gone and
	// ErrReadOnly if a field cannot be updated.
	Update(ctx context.Context, id string, fields Fields) (any, error)

	// Delete removes the record with the given ID and whatever the store
	// cascades from it. Returns ErrNotFound if no record exists.
	Delete(ctx context.Context, id string) error

	// Fetch returns all records matching the filter.
	Fetch(ctx context.Context, filter Filter) ([]any, error)
}

// Table operation errors.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrInvalidID     = errors.New("invalid entity ID")
	ErrInvalidData   = errors.New("invalid entity data")
	ErrInvalidFilter = errors.New("invalid filter value type")
	ErrReadOnly      = errors.New("field is not updatable")
	ErrDuplicate     = errors.New("entity already exists")
	ErrCycle         = errors.New("branch would create a cycle")
)

// NotFoundError reports which record a remote call could not find. It
// matches ErrNotFound under errors.Is.
type NotFoundError struct {
	Table string
	ID    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Table, e.ID, ErrNotFound)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
