// This file implements the branches table. A branch places a note under a
// parent; the branch graph stays acyclic and a note never sits under the
// same parent twice.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/notegraph/pkg/types"
)

var _ types.Table = (*branchesTable)(nil)

type branchesTable struct {
	backend *Backend
}

func (t *branchesTable) Get(ctx context.Context, id string) (any, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	t.backend.mu.RLock()
	defer t.backend.mu.RUnlock()

	if !t.backend.attached {
		return nil, types.ErrBackendDetached
	}
	return getBranch(ctx, t.backend.db, id)
}

// Create places an existing note under an existing parent. The id defaults
// to parent_child.
func (t *branchesTable) Create(ctx context.Context, id string, data any) (any, error) {
	br, ok := data.(*types.Branch)
	if !ok || br == nil {
		return nil, fmt.Errorf("branch create: %w", types.ErrInvalidData)
	}
	if br.NoteID == "" || br.ParentNoteID == "" {
		return nil, fmt.Errorf("branch create: note and parent are required: %w", types.ErrInvalidData)
	}
	if id == "" {
		id = br.BranchID
	}
	if id == "" {
		id = types.BranchID(br.ParentNoteID, br.NoteID)
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

	for _, nid := range []string{br.NoteID, br.ParentNoteID} {
		if ok, err := noteExists(ctx, tx, nid); err != nil {
			return nil, err
		} else if !ok {
			return nil, &types.NotFoundError{Table: types.NotesTable, ID: nid}
		}
	}

	var dup int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM branches WHERE branch_id = ? OR (parent_note_id = ? AND note_id = ?)",
		id, br.ParentNoteID, br.NoteID,
	).Scan(&dup); err != nil {
		return nil, fmt.Errorf("checking branch %s: %w", id, err)
	}
	if dup > 0 {
		return nil, fmt.Errorf("branch %s: %w", id, types.ErrDuplicate)
	}

	cyclic, err := isAncestor(ctx, tx, br.NoteID, br.ParentNoteID)
	if err != nil {
		return nil, err
	}
	if cyclic {
		return nil, fmt.Errorf("placing %s under %s: %w", br.NoteID, br.ParentNoteID, types.ErrCycle)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO branches ("+branchColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		id, br.NoteID, br.ParentNoteID, br.Prefix, br.NotePosition, boolInt(br.IsExpanded),
	); err != nil {
		return nil, fmt.Errorf("persisting branch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	if err := b.persist(ctx, types.BranchesTable); err != nil {
		return nil, err
	}
	return getBranch(ctx, b.db, id)
}

// Update sets prefix, note_position and is_expanded.
func (t *branchesTable) Update(ctx context.Context, id string, fields types.Fields) (any, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	sets, args, err := updateClause(fields, map[string]bool{
		types.FieldPrefix:       true,
		types.FieldNotePosition: true,
		types.FieldIsExpanded:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("branch %s: %w", id, err)
	}
	args = append(args, id)

	b := t.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil, types.ErrBackendDetached
	}

	res, err := b.db.ExecContext(ctx, "UPDATE branches SET "+joinColumns(sets)+" WHERE branch_id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("updating branch %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, &types.NotFoundError{Table: types.BranchesTable, ID: id}
	}
	if err := b.persist(ctx, types.BranchesTable); err != nil {
		return nil, err
	}
	return getBranch(ctx, b.db, id)
}

// Delete removes the branch. When it was the child's last placement the
// child is deleted with it.
func (t *branchesTable) Delete(ctx context.Context, id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	if id == types.RootBranchID {
		return fmt.Errorf("deleting root branch: %w", types.ErrInvalidID)
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

	br, err := getBranch(ctx, tx, id)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM branches WHERE branch_id = ?", id); err != nil {
		return fmt.Errorf("deleting branch %s: %w", id, err)
	}
	if err := deleteIfOrphaned(ctx, tx, br.NoteID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return b.persist(ctx, types.NotesTable, types.AttributesTable, types.BranchesTable)
}

// Fetch returns branches matching filter on note_id or parent_note_id,
// ordered by parent and position.
func (t *branchesTable) Fetch(ctx context.Context, filter types.Filter) ([]any, error) {
	where, args, err := filterClause(filter, types.FieldNoteID, types.FieldParentNoteID)
	if err != nil {
		return nil, err
	}

	t.backend.mu.RLock()
	defer t.backend.mu.RUnlock()

	if !t.backend.attached {
		return nil, types.ErrBackendDetached
	}

	branches, err := queryAll(ctx, t.backend.db, scanBranch,
		"SELECT "+branchColumns+" FROM branches"+where+" ORDER BY parent_note_id, note_position, branch_id", args...)
	if err != nil {
		return nil, fmt.Errorf("fetching branches: %w", err)
	}
	out := make([]any, len(branches))
	for i, br := range branches {
		out[i] = br
	}
	return out, nil
}

func getBranch(ctx context.Context, q querier, id string) (*types.Branch, error) {
	br, err := scanBranch(q.QueryRowContext(ctx,
		"SELECT "+branchColumns+" FROM branches WHERE branch_id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &types.NotFoundError{Table: types.BranchesTable, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("getting branch %s: %w", id, err)
	}
	return br, nil
}

// isAncestor reports whether ancestor is note itself or lies above it.
func isAncestor(ctx context.Context, q querier, ancestor, note string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `WITH RECURSIVE up(id) AS (
    SELECT ?
    UNION
    SELECT b.parent_note_id FROM branches b JOIN up ON b.note_id = up.id
)
SELECT 1 FROM up WHERE id = ? LIMIT 1`, note, ancestor).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking ancestry of %s: %w", note, err)
	}
	return true, nil
}
