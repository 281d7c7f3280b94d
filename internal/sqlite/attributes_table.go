// This file implements the attributes table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/notegraph/pkg/types"
)

var _ types.Table = (*attributesTable)(nil)

type attributesTable struct {
	backend *Backend
}

func (t *attributesTable) Get(ctx context.Context, id string) (any, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	t.backend.mu.RLock()
	defer t.backend.mu.RUnlock()

	if !t.backend.attached {
		return nil, types.ErrBackendDetached
	}
	return getAttribute(ctx, t.backend.db, id)
}

// Create inserts a label or relation on an existing note. A relation's
// value must name an existing note.
func (t *attributesTable) Create(ctx context.Context, id string, data any) (any, error) {
	a, ok := data.(*types.Attribute)
	if !ok || a == nil {
		return nil, fmt.Errorf("attribute create: %w", types.ErrInvalidData)
	}
	if a.Name == "" {
		return nil, fmt.Errorf("attribute create: name is required: %w", types.ErrInvalidData)
	}
	if a.Type != types.AttributeLabel && a.Type != types.AttributeRelation {
		return nil, fmt.Errorf("attribute create: type %q: %w", a.Type, types.ErrInvalidData)
	}
	if id == "" {
		id = a.AttributeID
	}
	if id == "" {
		id = generateID()
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

	if ok, err := noteExists(ctx, tx, a.NoteID); err != nil {
		return nil, err
	} else if !ok {
		return nil, &types.NotFoundError{Table: types.NotesTable, ID: a.NoteID}
	}
	if a.Type == types.AttributeRelation {
		if ok, err := noteExists(ctx, tx, a.Value); err != nil {
			return nil, err
		} else if !ok {
			return nil, &types.NotFoundError{Table: types.NotesTable, ID: a.Value}
		}
	}
	if _, err := getAttribute(ctx, tx, id); err == nil {
		return nil, fmt.Errorf("attribute %s: %w", id, types.ErrDuplicate)
	} else if !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO attributes ("+attributeColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		id, a.NoteID, a.Type, a.Name, a.Value, a.Position, boolInt(a.IsInheritable),
	); err != nil {
		return nil, fmt.Errorf("persisting attribute: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	if err := b.persist(ctx, types.AttributesTable); err != nil {
		return nil, err
	}
	return getAttribute(ctx, b.db, id)
}

// Update sets value, position and is_inheritable. A relation's value is
// its target and does not change in place.
func (t *attributesTable) Update(ctx context.Context, id string, fields types.Fields) (any, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	sets, args, err := updateClause(fields, map[string]bool{
		types.FieldValue:         true,
		types.FieldPosition:      true,
		types.FieldIsInheritable: true,
	})
	if err != nil {
		return nil, fmt.Errorf("attribute %s: %w", id, err)
	}
	args = append(args, id)

	b := t.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil, types.ErrBackendDetached
	}

	cur, err := getAttribute(ctx, b.db, id)
	if err != nil {
		return nil, err
	}
	if _, ok := fields[types.FieldValue]; ok && cur.Type == types.AttributeRelation {
		return nil, fmt.Errorf("relation %s value: %w", id, types.ErrReadOnly)
	}

	if _, err := b.db.ExecContext(ctx, "UPDATE attributes SET "+joinColumns(sets)+" WHERE attribute_id = ?", args...); err != nil {
		return nil, fmt.Errorf("updating attribute %s: %w", id, err)
	}
	if err := b.persist(ctx, types.AttributesTable); err != nil {
		return nil, err
	}
	return getAttribute(ctx, b.db, id)
}

func (t *attributesTable) Delete(ctx context.Context, id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	b := t.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return types.ErrBackendDetached
	}

	res, err := b.db.ExecContext(ctx, "DELETE FROM attributes WHERE attribute_id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting attribute %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &types.NotFoundError{Table: types.AttributesTable, ID: id}
	}
	return b.persist(ctx, types.AttributesTable)
}

// Fetch returns attributes matching filter on note_id, type, name or value,
// ordered by note and position.
func (t *attributesTable) Fetch(ctx context.Context, filter types.Filter) ([]any, error) {
	where, args, err := filterClause(filter, types.FieldNoteID, types.FieldType, types.FieldName, types.FieldValue)
	if err != nil {
		return nil, err
	}

	t.backend.mu.RLock()
	defer t.backend.mu.RUnlock()

	if !t.backend.attached {
		return nil, types.ErrBackendDetached
	}

	attrs, err := queryAll(ctx, t.backend.db, scanAttribute,
		"SELECT "+attributeColumns+" FROM attributes"+where+" ORDER BY note_id, position, attribute_id", args...)
	if err != nil {
		return nil, fmt.Errorf("fetching attributes: %w", err)
	}
	out := make([]any, len(attrs))
	for i, a := range attrs {
		out[i] = a
	}
	return out, nil
}

func getAttribute(ctx context.Context, q querier, id string) (*types.Attribute, error) {
	a, err := scanAttribute(q.QueryRowContext(ctx,
		"SELECT "+attributeColumns+" FROM attributes WHERE attribute_id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &types.NotFoundError{Table: types.AttributesTable, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("getting attribute %s: %w", id, err)
	}
	return a, nil
}
