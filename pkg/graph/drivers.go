package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/notegraph/pkg/types"
)

// recordAs asserts a table result to the concrete record type.
func recordAs[T types.Record](res any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	r, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("%w: got %T, want %T", types.ErrInvalidData, res, zero)
	}
	return r, nil
}

// fetchRecord gets a record by id, returning nil for an id the remote does
// not know.
func fetchRecord[T types.Record](ctx context.Context, remote types.Remote, table, id string) (types.Record, error) {
	if id == "" {
		return nil, nil
	}
	t, err := remote.GetTable(table)
	if err != nil {
		return nil, err
	}
	r, err := recordAs[T](t.Get(ctx, id))
	if errors.Is(err, types.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

type noteDriver struct {
	note   *Note
	remote types.Remote
}

func (d *noteDriver) table() (types.Table, error) { return d.remote.GetTable(types.NotesTable) }

func (d *noteDriver) Fetch(ctx context.Context) (types.Record, error) {
	return fetchRecord[*types.Note](ctx, d.remote, types.NotesTable, d.note.id)
}

// FlushCreate creates the note together with its first parent branch. The
// branch is completed here and its model refreshed once the graph has
// moved past the note.
func (d *noteDriver) FlushCreate(ctx context.Context, g *FlushGraph) (types.Record, PendingFollowup, error) {
	n := d.note
	b := n.firstParent()
	if b == nil || b.parent == nil {
		return nil, nil, fmt.Errorf("%s: no parent branch to create with", n)
	}
	if b.parent.id == "" || !b.parent.model.exists {
		return nil, nil, fmt.Errorf("%s: parent %s does not exist remotely", n, b.parent)
	}
	t, err := d.table()
	if err != nil {
		return nil, nil, err
	}
	content, _ := n.content.pending()
	payload := &types.NoteCreate{
		NoteID:       n.id,
		ParentNoteID: b.parent.id,
		Title:        n.model.mustString(types.FieldTitle),
		Type:         n.model.mustString(types.FieldType),
		Mime:         n.model.mustString(types.FieldMime),
		Content:      content,
		BranchID:     b.id,
		Prefix:       b.model.mustString(types.FieldPrefix),
		NotePosition: b.position(),
		IsExpanded:   b.model.mustBool(types.FieldIsExpanded),
	}
	res, err := recordAs[*types.NoteWithBranch](t.Create(ctx, n.id, payload))
	if err != nil {
		return nil, nil, err
	}
	if res.Branch == nil {
		return nil, nil, fmt.Errorf("%s: create returned no branch: %w", n, types.ErrInvalidData)
	}
	b.setID(res.Branch.BranchID)
	b.setClean()
	g.Done(b)
	return res, func(context.Context) error {
		b.model.refresh(res.Branch)
		return nil
	}, nil
}

// FlushUpdate writes the changed scalar fields and, separately, a changed
// content blob.
func (d *noteDriver) FlushUpdate(ctx context.Context, _ *FlushGraph) (types.Record, error) {
	n := d.note
	var rec types.Record
	if fields := n.model.ChangedFields(); len(fields) > 0 {
		t, err := d.table()
		if err != nil {
			return nil, err
		}
		res, err := recordAs[*types.Note](t.Update(ctx, n.id, fields))
		if err != nil {
			return nil, err
		}
		rec = res
	}
	if content, ok := n.content.pending(); ok && n.content.changed() {
		res, err := d.remote.SetContent(ctx, n.id, content)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			// Keep the scalar fields just written; only the digest moved.
			merged := *rec.(*types.Note)
			merged.BlobID = res.BlobID
			merged.DateModified = res.DateModified
			res = &merged
		}
		rec = res
	}
	return rec, nil
}

// FlushDelete removes the note. The store removes the owned attributes and
// both branch lists with it, so they are marked clean here as well, also
// when the note was already gone.
func (d *noteDriver) FlushDelete(ctx context.Context, _ *FlushGraph) error {
	t, err := d.table()
	if err != nil {
		return err
	}
	err = t.Delete(ctx, d.note.id)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return err
	}
	for _, e := range d.note.associated() {
		c := e.core()
		c.model.exists = false
		if c.state != types.StateClean {
			c.setClean()
		}
	}
	return err
}

type attributeDriver struct {
	attr   *Attribute
	remote types.Remote
}

func (d *attributeDriver) table() (types.Table, error) {
	return d.remote.GetTable(types.AttributesTable)
}

func (d *attributeDriver) Fetch(ctx context.Context) (types.Record, error) {
	return fetchRecord[*types.Attribute](ctx, d.remote, types.AttributesTable, d.attr.id)
}

func (d *attributeDriver) FlushCreate(ctx context.Context, _ *FlushGraph) (types.Record, PendingFollowup, error) {
	t, err := d.table()
	if err != nil {
		return nil, nil, err
	}
	res, err := recordAs[*types.Attribute](t.Create(ctx, d.attr.id, d.attr.record()))
	if err != nil {
		return nil, nil, err
	}
	return res, nil, nil
}

// FlushUpdate updates the attribute in place unless the store cannot:
// inheritability never changes in place and neither does a relation's
// target, so those are sent as a delete and a create under the same id.
func (d *attributeDriver) FlushUpdate(ctx context.Context, _ *FlushGraph) (types.Record, error) {
	a := d.attr
	t, err := d.table()
	if err != nil {
		return nil, err
	}
	m := a.model
	recreate := m.IsFieldChanged(types.FieldIsInheritable) ||
		(a.IsRelation() && m.IsFieldChanged(types.FieldValue))
	if recreate {
		if err := t.Delete(ctx, a.id); err != nil {
			return nil, err
		}
		res, err := recordAs[*types.Attribute](t.Create(ctx, a.id, a.record()))
		if err != nil {
			return nil, err
		}
		return res, nil
	}
	res, err := recordAs[*types.Attribute](t.Update(ctx, a.id, m.ChangedFields()))
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (d *attributeDriver) FlushDelete(ctx context.Context, _ *FlushGraph) error {
	t, err := d.table()
	if err != nil {
		return err
	}
	return t.Delete(ctx, d.attr.id)
}

type branchDriver struct {
	branch *Branch
	remote types.Remote
}

func (d *branchDriver) table() (types.Table, error) {
	return d.remote.GetTable(types.BranchesTable)
}

func (d *branchDriver) Fetch(ctx context.Context) (types.Record, error) {
	return fetchRecord[*types.Branch](ctx, d.remote, types.BranchesTable, d.branch.id)
}

func (d *branchDriver) FlushCreate(ctx context.Context, _ *FlushGraph) (types.Record, PendingFollowup, error) {
	t, err := d.table()
	if err != nil {
		return nil, nil, err
	}
	res, err := recordAs[*types.Branch](t.Create(ctx, d.branch.id, d.branch.record()))
	if err != nil {
		return nil, nil, err
	}
	return res, nil, nil
}

func (d *branchDriver) FlushUpdate(ctx context.Context, _ *FlushGraph) (types.Record, error) {
	t, err := d.table()
	if err != nil {
		return nil, err
	}
	res, err := recordAs[*types.Branch](t.Update(ctx, d.branch.id, d.branch.model.ChangedFields()))
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (d *branchDriver) FlushDelete(ctx context.Context, _ *FlushGraph) error {
	t, err := d.table()
	if err != nil {
		return err
	}
	return t.Delete(ctx, d.branch.id)
}
