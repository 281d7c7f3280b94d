package types

import (
	"context"
	"errors"
)

// Remote is the collaborator that owns all durable note state. The graph
// reaches it only through this interface, one call per entity operation.
type Remote interface {
	// GetTable returns the Table for the given name.
	// Returns ErrTableNotFound if the name is not a standard table.
	GetTable(name string) (Table, error)

	// GetContent returns the content blob of a note.
	GetContent(ctx context.Context, noteID string) ([]byte, error)

	// SetContent replaces the content blob of a note and returns the note
	// with its new blob ID.
	SetContent(ctx context.Context, noteID string, content []byte) (*Note, error)

	// RefreshOrdering notifies the store that the children of parentNoteID
	// were repositioned.
	RefreshOrdering(ctx context.Context, parentNoteID string) error

	// Search returns notes matching query.
	Search(ctx context.Context, query string, opts SearchOptions) ([]*Note, error)

	// Backup writes a named backup of the whole store.
	Backup(ctx context.Context, name string) error
}

// Backend is a Remote with an attach/detach lifecycle.
type Backend interface {
	Remote

	// Attach connects the backend described by config. Creates the DataDir
	// if it does not exist. Returns ErrAlreadyAttached if called while
	// already attached.
	Attach(config Config) error

	// Detach releases backend resources. Idempotent: multiple calls succeed.
	// After Detach, operations return ErrBackendDetached.
	Detach() error
}

// SearchOptions narrows a Search.
type SearchOptions struct {
	// Ancestor restricts results to the subtree under this note ID.
	Ancestor string
	// Limit caps the number of results; zero means no limit.
	Limit int
}

// Backend lifecycle errors.
var (
	ErrBackendDetached = errors.New("backend is detached")
	ErrAlreadyAttached = errors.New("backend is already attached")
	ErrTableNotFound   = errors.New("table not found")
)
