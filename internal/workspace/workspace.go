// Package workspace runs the note operations shared by the CLI commands and
// the MCP tools against one attached backend.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mesh-intelligence/notegraph/pkg/declarative"
	"github.com/mesh-intelligence/notegraph/pkg/graph"
	"github.com/mesh-intelligence/notegraph/pkg/sqlite"
	"github.com/mesh-intelligence/notegraph/pkg/types"
)

// ErrNoDefinitions is returned when an apply finds nothing to instantiate.
var ErrNoDefinitions = errors.New("no definitions to apply")

// Workspace owns an attached backend. Every operation runs in its own unit
// of work; operations are serialized.
type Workspace struct {
	mu      sync.Mutex
	backend types.Backend
	logger  *slog.Logger
}

// Open attaches a backend for cfg.
func Open(cfg types.Config, logger *slog.Logger) (*Workspace, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := sqlite.NewBackend()
	if err := b.Attach(cfg); err != nil {
		return nil, fmt.Errorf("attach backend: %w", err)
	}
	logger.Debug("Backend attached", "backend", cfg.Backend, "data_dir", cfg.DataDir)
	return &Workspace{backend: b, logger: logger}, nil
}

// Close detaches the backend.
func (w *Workspace) Close() error {
	return w.backend.Detach()
}

// Backend returns the attached backend.
func (w *Workspace) Backend() types.Backend { return w.backend }

func (w *Workspace) session(ctx context.Context) *graph.Session {
	return graph.NewSession(ctx, w.backend, graph.WithLogger(w.logger))
}

// ApplyResult reports what an apply changed.
type ApplyResult struct {
	Definitions int      `json:"definitions"`
	Notes       []string `json:"notes"`
	Changes     int      `json:"changes"`
	Summary     string   `json:"summary"`
	DryRun      bool     `json:"dry_run"`
}

// Apply instantiates defs under the note parentID, or under the root when
// parentID is empty, and flushes the result unless dryRun is set.
func (w *Workspace) Apply(ctx context.Context, defs []*declarative.Definition, parentID string, dryRun bool) (*ApplyResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(defs) == 0 {
		return nil, ErrNoDefinitions
	}
	s := w.session(ctx)

	var parent *graph.Note
	if parentID != "" {
		p, err := s.Note(parentID)
		if err != nil {
			return nil, fmt.Errorf("parent: %w", err)
		}
		parent = p
	}

	notes, err := declarative.InstantiateAll(ctx, s, defs, parent)
	if err != nil {
		return nil, err
	}

	res := &ApplyResult{
		Definitions: len(defs),
		Changes:     s.DirtyCount(),
		Summary:     s.Summary(),
		DryRun:      dryRun,
	}
	if !dryRun {
		if err := s.Flush(ctx); err != nil {
			return nil, err
		}
	}
	for _, n := range notes {
		res.Notes = append(res.Notes, n.ID())
	}

	w.logger.Info("Applied definitions",
		"definitions", res.Definitions,
		"changes", res.Changes,
		"dry_run", dryRun,
	)
	return res, nil
}

// ApplyFiles loads the tree files matched by patterns and applies them.
func (w *Workspace) ApplyFiles(ctx context.Context, patterns []string, parentID string, dryRun bool) (*ApplyResult, error) {
	defs, err := declarative.LoadGlob(patterns...)
	if err != nil {
		return nil, err
	}
	return w.Apply(ctx, defs, parentID, dryRun)
}

// Search returns the notes matching query, without children.
func (w *Workspace) Search(ctx context.Context, query string, opts types.SearchOptions) ([]*NoteView, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.session(ctx)
	notes, err := s.Search(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	views := make([]*NoteView, 0, len(notes))
	for _, n := range notes {
		v, err := viewNote(n, 0)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// Show returns the note id with depth levels of children.
func (w *Workspace) Show(ctx context.Context, id string, depth int) (*NoteView, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if id == "" {
		id = types.RootNoteID
	}
	s := w.session(ctx)
	n, err := s.Note(id)
	if err != nil {
		return nil, err
	}
	return viewNote(n, depth)
}

// Content returns the content of note id.
func (w *Workspace) Content(ctx context.Context, id string) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.backend.GetContent(ctx, id)
}

// Backup writes a named backup of the store.
func (w *Workspace) Backup(ctx context.Context, name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.backend.Backup(ctx, name); err != nil {
		return err
	}
	w.logger.Info("Backup written", "name", name)
	return nil
}
