// Recording in-memory remote used by the graph tests.
package graph

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/mesh-intelligence/notegraph/pkg/ident"
	"github.com/mesh-intelligence/notegraph/pkg/types"
)

// fakeRemote keeps notes, attributes and branches in maps and records every
// call as "op table id".
type fakeRemote struct {
	notes     map[string]*types.Note
	attrs     map[string]*types.Attribute
	branches  map[string]*types.Branch
	content   map[string][]byte
	calls     []string
	refreshed []string
	failures  map[string]error
	nextID    int
}

func newFakeRemote() *fakeRemote {
	r := &fakeRemote{
		notes:    make(map[string]*types.Note),
		attrs:    make(map[string]*types.Attribute),
		branches: make(map[string]*types.Branch),
		content:  make(map[string][]byte),
		failures: make(map[string]error),
	}
	r.notes[types.RootNoteID] = &types.Note{
		NoteID: types.RootNoteID, Title: "root", Type: "text", Mime: "text/html",
		BlobID: ident.BlobID(nil),
	}
	r.branches[types.RootBranchID] = &types.Branch{
		BranchID: types.RootBranchID, NoteID: types.RootNoteID, ParentNoteID: types.NoneNoteID,
	}
	return r
}

// seedNote stores a note under parent at position without recording a call.
func (r *fakeRemote) seedNote(id, parent, title string, position int) {
	r.notes[id] = &types.Note{NoteID: id, Title: title, Type: "text", Mime: "text/html", BlobID: ident.BlobID(nil)}
	bid := types.BranchID(parent, id)
	r.branches[bid] = &types.Branch{BranchID: bid, NoteID: id, ParentNoteID: parent, NotePosition: position}
}

func (r *fakeRemote) seedLabel(id, noteID, name, value string, position int) {
	r.attrs[id] = &types.Attribute{
		AttributeID: id, NoteID: noteID, Type: types.AttributeLabel,
		Name: name, Value: value, Position: position,
	}
}

func (r *fakeRemote) resetCalls() {
	r.calls = nil
	r.refreshed = nil
}

// mutations returns the recorded calls other than reads.
func (r *fakeRemote) mutations() []string {
	var out []string
	for _, c := range r.calls {
		if !strings.HasPrefix(c, "get ") {
			out = append(out, c)
		}
	}
	return out
}

func (r *fakeRemote) record(op, table, id string) error {
	call := fmt.Sprintf("%s %s %s", op, table, id)
	r.calls = append(r.calls, call)
	if err, ok := r.failures[call]; ok {
		return err
	}
	return nil
}

func (r *fakeRemote) newID() string {
	r.nextID++
	return fmt.Sprintf("gen%d", r.nextID)
}

func (r *fakeRemote) fullNote(id string) *types.Note {
	n := *r.notes[id]
	n.Attributes = nil
	n.ParentBranches = nil
	n.ChildBranches = nil
	for _, a := range r.attrs {
		if a.NoteID == id {
			c := *a
			n.Attributes = append(n.Attributes, &c)
		}
	}
	slices.SortFunc(n.Attributes, func(a, b *types.Attribute) int { return cmp.Compare(a.Position, b.Position) })
	for _, b := range r.branches {
		c := *b
		if b.NoteID == id {
			n.ParentBranches = append(n.ParentBranches, &c)
		}
		if b.ParentNoteID == id {
			n.ChildBranches = append(n.ChildBranches, &c)
		}
	}
	slices.SortFunc(n.ParentBranches, func(a, b *types.Branch) int { return cmp.Compare(a.BranchID, b.BranchID) })
	slices.SortFunc(n.ChildBranches, func(a, b *types.Branch) int { return cmp.Compare(a.NotePosition, b.NotePosition) })
	return &n
}

func (r *fakeRemote) GetTable(name string) (types.Table, error) {
	if !slices.Contains(types.StandardTableNames, name) {
		return nil, types.ErrTableNotFound
	}
	return &fakeTable{r: r, name: name}, nil
}

func (r *fakeRemote) GetContent(_ context.Context, noteID string) ([]byte, error) {
	if err := r.record("get", "content", noteID); err != nil {
		return nil, err
	}
	return r.content[noteID], nil
}

func (r *fakeRemote) SetContent(_ context.Context, noteID string, content []byte) (*types.Note, error) {
	if err := r.record("set", "content", noteID); err != nil {
		return nil, err
	}
	n, ok := r.notes[noteID]
	if !ok {
		return nil, &types.NotFoundError{Table: types.NotesTable, ID: noteID}
	}
	r.content[noteID] = content
	n.BlobID = ident.BlobID(content)
	n.DateModified = time.Now()
	return r.fullNote(noteID), nil
}

func (r *fakeRemote) RefreshOrdering(_ context.Context, parentNoteID string) error {
	if err := r.record("refresh", "notes", parentNoteID); err != nil {
		return err
	}
	r.refreshed = append(r.refreshed, parentNoteID)
	return nil
}

func (r *fakeRemote) Search(_ context.Context, query string, _ types.SearchOptions) ([]*types.Note, error) {
	if err := r.record("search", "notes", query); err != nil {
		return nil, err
	}
	var out []*types.Note
	for id, n := range r.notes {
		if n.Title == query {
			out = append(out, r.fullNote(id))
		}
	}
	return out, nil
}

func (r *fakeRemote) Backup(_ context.Context, name string) error {
	return r.record("backup", "store", name)
}

type fakeTable struct {
	r    *fakeRemote
	name string
}

func (t *fakeTable) notFound(id string) error {
	return &types.NotFoundError{Table: t.name, ID: id}
}

func (t *fakeTable) Get(_ context.Context, id string) (any, error) {
	r := t.r
	if err := r.record("get", t.name, id); err != nil {
		return nil, err
	}
	switch t.name {
	case types.NotesTable:
		if _, ok := r.notes[id]; ok {
			return r.fullNote(id), nil
		}
	case types.AttributesTable:
		if a, ok := r.attrs[id]; ok {
			c := *a
			return &c, nil
		}
	case types.BranchesTable:
		if b, ok := r.branches[id]; ok {
			c := *b
			return &c, nil
		}
	}
	return nil, t.notFound(id)
}

func (t *fakeTable) Create(_ context.Context, id string, data any) (any, error) {
	r := t.r
	if err := r.record("create", t.name, id); err != nil {
		return nil, err
	}
	if id == "" {
		id = r.newID()
	}
	switch d := data.(type) {
	case *types.NoteCreate:
		if _, ok := r.notes[d.ParentNoteID]; !ok {
			return nil, t.notFound(d.ParentNoteID)
		}
		r.notes[id] = &types.Note{NoteID: id, Title: d.Title, Type: d.Type, Mime: d.Mime, BlobID: ident.BlobID(d.Content)}
		r.content[id] = d.Content
		bid := d.BranchID
		if bid == "" {
			bid = types.BranchID(d.ParentNoteID, id)
		}
		br := &types.Branch{BranchID: bid, NoteID: id, ParentNoteID: d.ParentNoteID,
			Prefix: d.Prefix, NotePosition: d.NotePosition, IsExpanded: d.IsExpanded}
		r.branches[bid] = br
		c := *br
		return &types.NoteWithBranch{Note: r.fullNote(id), Branch: &c}, nil
	case *types.Attribute:
		if _, ok := r.notes[d.NoteID]; !ok {
			return nil, (&fakeTable{r: r, name: types.NotesTable}).notFound(d.NoteID)
		}
		c := *d
		c.AttributeID = id
		r.attrs[id] = &c
		out := c
		return &out, nil
	case *types.Branch:
		c := *d
		if d.BranchID == "" {
			id = types.BranchID(d.ParentNoteID, d.NoteID)
		}
		c.BranchID = id
		r.branches[id] = &c
		out := c
		return &out, nil
	}
	return nil, types.ErrInvalidData
}

func (t *fakeTable) Update(_ context.Context, id string, fields types.Fields) (any, error) {
	r := t.r
	if err := r.record("update", t.name, id); err != nil {
		return nil, err
	}
	switch t.name {
	case types.NotesTable:
		n, ok := r.notes[id]
		if !ok {
			return nil, t.notFound(id)
		}
		for k, v := range fields {
			switch k {
			case types.FieldTitle:
				n.Title = v.(string)
			case types.FieldType:
				n.Type = v.(string)
			case types.FieldMime:
				n.Mime = v.(string)
			}
		}
		return r.fullNote(id), nil
	case types.AttributesTable:
		a, ok := r.attrs[id]
		if !ok {
			return nil, t.notFound(id)
		}
		for k, v := range fields {
			switch k {
			case types.FieldValue:
				a.Value = v.(string)
			case types.FieldPosition:
				a.Position = v.(int)
			case types.FieldIsInheritable:
				a.IsInheritable = v.(bool)
			}
		}
		c := *a
		return &c, nil
	case types.BranchesTable:
		b, ok := r.branches[id]
		if !ok {
			return nil, t.notFound(id)
		}
		for k, v := range fields {
			switch k {
			case types.FieldPrefix:
				b.Prefix = v.(string)
			case types.FieldNotePosition:
				b.NotePosition = v.(int)
			case types.FieldIsExpanded:
				b.IsExpanded = v.(bool)
			}
		}
		c := *b
		return &c, nil
	}
	return nil, types.ErrTableNotFound
}

func (t *fakeTable) Delete(_ context.Context, id string) error {
	r := t.r
	if err := r.record("delete", t.name, id); err != nil {
		return err
	}
	switch t.name {
	case types.NotesTable:
		if _, ok := r.notes[id]; !ok {
			return t.notFound(id)
		}
		delete(r.notes, id)
		for aid, a := range r.attrs {
			if a.NoteID == id {
				delete(r.attrs, aid)
			}
		}
		for bid, b := range r.branches {
			if b.NoteID == id || b.ParentNoteID == id {
				delete(r.branches, bid)
			}
		}
	case types.AttributesTable:
		if _, ok := r.attrs[id]; !ok {
			return t.notFound(id)
		}
		delete(r.attrs, id)
	case types.BranchesTable:
		if _, ok := r.branches[id]; !ok {
			return t.notFound(id)
		}
		delete(r.branches, id)
	}
	return nil
}

func (t *fakeTable) Fetch(context.Context, types.Filter) ([]any, error) {
	return nil, nil
}

// newTestSession returns a session over a fresh fake remote and a buffer
// collecting its log output.
func newTestSession(t *testing.T) (*Session, *fakeRemote, *bytes.Buffer) {
	t.Helper()
	r := newFakeRemote()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewSession(context.Background(), r, WithLogger(logger)), r, &buf
}
