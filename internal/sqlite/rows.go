// This file implements row scanning and the full-note read shared by the
// tables and the backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/notegraph/pkg/types"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const (
	noteColumns      = "note_id, title, type, mime, blob_id, date_modified"
	attributeColumns = "attribute_id, note_id, type, name, value, position, is_inheritable"
	branchColumns    = "branch_id, note_id, parent_note_id, prefix, note_position, is_expanded"
)

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(s scanner) (*types.Note, error) {
	var n types.Note
	var modified string
	if err := s.Scan(&n.NoteID, &n.Title, &n.Type, &n.Mime, &n.BlobID, &modified); err != nil {
		return nil, err
	}
	n.DateModified = parseTime(modified)
	return &n, nil
}

func scanAttribute(s scanner) (*types.Attribute, error) {
	var a types.Attribute
	var inheritable int64
	if err := s.Scan(&a.AttributeID, &a.NoteID, &a.Type, &a.Name, &a.Value, &a.Position, &inheritable); err != nil {
		return nil, err
	}
	a.IsInheritable = inheritable != 0
	return &a, nil
}

func scanBranch(s scanner) (*types.Branch, error) {
	var br types.Branch
	var expanded int64
	if err := s.Scan(&br.BranchID, &br.NoteID, &br.ParentNoteID, &br.Prefix, &br.NotePosition, &expanded); err != nil {
		return nil, err
	}
	br.IsExpanded = expanded != 0
	return &br, nil
}

// queryAll runs query and scans every row with scan.
func queryAll[T any](ctx context.Context, q querier, scan func(scanner) (T, error), query string, args ...any) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func noteExists(ctx context.Context, q querier, id string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM notes WHERE note_id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking note %s: %w", id, err)
	}
	return true, nil
}

// loadNote reads a note with its attributes and both branch lists.
func loadNote(ctx context.Context, q querier, id string) (*types.Note, error) {
	n, err := scanNote(q.QueryRowContext(ctx, "SELECT "+noteColumns+" FROM notes WHERE note_id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &types.NotFoundError{Table: types.NotesTable, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("getting note %s: %w", id, err)
	}

	n.Attributes, err = queryAll(ctx, q, scanAttribute,
		"SELECT "+attributeColumns+" FROM attributes WHERE note_id = ? ORDER BY position, attribute_id", id)
	if err != nil {
		return nil, fmt.Errorf("getting attributes of %s: %w", id, err)
	}
	n.ParentBranches, err = queryAll(ctx, q, scanBranch,
		"SELECT "+branchColumns+" FROM branches WHERE note_id = ? ORDER BY parent_note_id", id)
	if err != nil {
		return nil, fmt.Errorf("getting parent branches of %s: %w", id, err)
	}
	n.ChildBranches, err = queryAll(ctx, q, scanBranch,
		"SELECT "+branchColumns+" FROM branches WHERE parent_note_id = ? ORDER BY note_position, branch_id", id)
	if err != nil {
		return nil, fmt.Errorf("getting child branches of %s: %w", id, err)
	}
	return n, nil
}

// filterClause turns a filter into a WHERE clause over the allowed columns.
// Values must be strings, ints or bools.
func filterClause(filter types.Filter, allowed ...string) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}
	var conds []string
	var args []any
	for _, col := range allowed {
		v, ok := filter[col]
		if !ok {
			continue
		}
		switch x := v.(type) {
		case string, int:
			args = append(args, x)
		case bool:
			args = append(args, boolInt(x))
		default:
			return "", nil, fmt.Errorf("filter %s: %w", col, types.ErrInvalidFilter)
		}
		conds = append(conds, col+" = ?")
	}
	if len(conds) != len(filter) {
		return "", nil, fmt.Errorf("unknown filter key: %w", types.ErrInvalidFilter)
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}
