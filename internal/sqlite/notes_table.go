// This file implements the notes table. A note is always created together
// with its first parent branch, and deleting a note removes everything that
// cannot outlive it.
package sqlite

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/mesh-intelligence/notegraph/pkg/types"
)

var _ types.Table = (*notesTable)(nil)

type notesTable struct {
	backend *Backend
}

// Get returns the note with its attributes and branches.
func (t *notesTable) Get(ctx context.Context, id string) (any, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	t.backend.mu.RLock()
	defer t.backend.mu.RUnlock()

	if !t.backend.attached {
		return nil, types.ErrBackendDetached
	}
	return loadNote(ctx, t.backend.db, id)
}

// Create inserts the note, its content blob and its first parent branch.
// data must be a *types.NoteCreate; the result is a *types.NoteWithBranch.
func (t *notesTable) Create(ctx context.Context, id string, data any) (any, error) {
	nc, ok := data.(*types.NoteCreate)
	if !ok || nc == nil {
		return nil, fmt.Errorf("note create: %w", types.ErrInvalidData)
	}
	if nc.ParentNoteID == "" || nc.Title == "" {
		return nil, fmt.Errorf("note create: parent and title are required: %w", types.ErrInvalidData)
	}
	if id == "" {
		id = nc.NoteID
	}
	if id == "" {
		id = generateID()
	}
	branchID := nc.BranchID
	if branchID == "" {
		branchID = types.BranchID(nc.ParentNoteID, id)
	}

	b := t.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil, types.ErrBackendDetached
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if ok, err := noteExists(ctx, tx, nc.ParentNoteID); err != nil {
		return nil, err
	} else if !ok {
		return nil, &types.NotFoundError{Table: types.NotesTable, ID: nc.ParentNoteID}
	}
	if ok, err := noteExists(ctx, tx, id); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("note %s: %w", id, types.ErrDuplicate)
	}

	blobID, err := writeBlob(ctx, tx, nc.Content)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO notes ("+noteColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		id, nc.Title, nc.Type, nc.Mime, blobID, formatTime(time.Now()),
	); err != nil {
		return nil, fmt.Errorf("persisting note: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO branches ("+branchColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		branchID, id, nc.ParentNoteID, nc.Prefix, nc.NotePosition, boolInt(nc.IsExpanded),
	); err != nil {
		return nil, fmt.Errorf("persisting branch %s: %w", branchID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	if err := b.persist(ctx, types.NotesTable, types.BranchesTable, blobsTable); err != nil {
		return nil, err
	}

	note, err := loadNote(ctx, b.db, id)
	if err != nil {
		return nil, err
	}
	br, err := scanBranch(b.db.QueryRowContext(ctx,
		"SELECT "+branchColumns+" FROM branches WHERE branch_id = ?", branchID))
	if err != nil {
		return nil, fmt.Errorf("getting branch %s: %w", branchID, err)
	}
	return &types.NoteWithBranch{Note: note, Branch: br}, nil
}

// Update sets title, type and mime. Any other field is read-only here;
// content goes through SetContent.
func (t *notesTable) Update(ctx context.Context, id string, fields types.Fields) (any, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	sets, args, err := updateClause(fields, map[string]bool{
		types.FieldTitle: true,
		types.FieldType:  true,
		types.FieldMime:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("note %s: %w", id, err)
	}
	sets = append(sets, "date_modified = ?")
	args = append(args, formatTime(time.Now()), id)

	b := t.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil, types.ErrBackendDetached
	}

	res, err := b.db.ExecContext(ctx, "UPDATE notes SET "+joinColumns(sets)+" WHERE note_id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("updating note %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, &types.NotFoundError{Table: types.NotesTable, ID: id}
	}
	if err := b.persist(ctx, types.NotesTable); err != nil {
		return nil, err
	}
	return loadNote(ctx, b.db, id)
}

// Delete removes the note, its attributes, its branches, relations that
// point at it, and every child left without a parent.
func (t *notesTable) Delete(ctx context.Context, id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	if id == types.RootNoteID {
		return fmt.Errorf("deleting root note: %w", types.ErrInvalidID)
	}

	b := t.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return types.ErrBackendDetached
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if ok, err := noteExists(ctx, tx, id); err != nil {
		return err
	} else if !ok {
		return &types.NotFoundError{Table: types.NotesTable, ID: id}
	}
	if err := deleteNoteTx(ctx, tx, id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return b.persist(ctx, types.NotesTable, types.AttributesTable, types.BranchesTable)
}

// Fetch returns notes matching filter on title, type or mime, ordered by
// title. Each result is a full *types.Note.
func (t *notesTable) Fetch(ctx context.Context, filter types.Filter) ([]any, error) {
	where, args, err := filterClause(filter, types.FieldTitle, types.FieldType, types.FieldMime)
	if err != nil {
		return nil, err
	}

	t.backend.mu.RLock()
	defer t.backend.mu.RUnlock()

	if !t.backend.attached {
		return nil, types.ErrBackendDetached
	}

	ids, err := queryAll(ctx, t.backend.db, scanString,
		"SELECT note_id FROM notes"+where+" ORDER BY title, note_id", args...)
	if err != nil {
		return nil, fmt.Errorf("fetching notes: %w", err)
	}
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		n, err := loadNote(ctx, t.backend.db, id)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// deleteNoteTx removes a note and cascades. Children that keep another
// parent survive.
func deleteNoteTx(ctx context.Context, tx txQuerier, id string) error {
	children, err := queryAll(ctx, tx, scanString,
		"SELECT note_id FROM branches WHERE parent_note_id = ?", id)
	if err != nil {
		return fmt.Errorf("listing children of %s: %w", id, err)
	}

	stmts := []struct {
		query string
		args  []any
	}{
		{"DELETE FROM attributes WHERE note_id = ?", []any{id}},
		{"DELETE FROM attributes WHERE type = ? AND value = ?", []any{types.AttributeRelation, id}},
		{"DELETE FROM branches WHERE note_id = ? OR parent_note_id = ?", []any{id, id}},
		{"DELETE FROM notes WHERE note_id = ?", []any{id}},
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s.query, s.args...); err != nil {
			return fmt.Errorf("deleting note %s: %w", id, err)
		}
	}

	for _, child := range children {
		if err := deleteIfOrphaned(ctx, tx, child); err != nil {
			return err
		}
	}
	return nil
}

// deleteIfOrphaned deletes the note when no branch places it anywhere.
func deleteIfOrphaned(ctx context.Context, tx txQuerier, id string) error {
	var parents int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM branches WHERE note_id = ?", id,
	).Scan(&parents); err != nil {
		return fmt.Errorf("counting parents of %s: %w", id, err)
	}
	if parents > 0 {
		return nil
	}
	ok, err := noteExists(ctx, tx, id)
	if err != nil || !ok {
		return err
	}
	return deleteNoteTx(ctx, tx, id)
}

// txQuerier reads and writes inside one transaction.
type txQuerier interface {
	querier
	execer
}

func scanString(s scanner) (string, error) {
	var v string
	err := s.Scan(&v)
	return v, err
}

// updateClause turns fields into SET assignments. A field outside allowed
// is reported as ErrReadOnly.
func updateClause(fields types.Fields, allowed map[string]bool) ([]string, []any, error) {
	if len(fields) == 0 {
		return nil, nil, fmt.Errorf("no fields to update: %w", types.ErrInvalidData)
	}
	var sets []string
	var args []any
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		if !allowed[k] {
			return nil, nil, fmt.Errorf("%s: %w", k, types.ErrReadOnly)
		}
		v := fields[k]
		if bv, ok := v.(bool); ok {
			v = boolInt(bv)
		}
		sets = append(sets, k+" = ?")
		args = append(args, v)
	}
	return sets, args, nil
}
