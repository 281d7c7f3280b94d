package graph

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/mesh-intelligence/notegraph/pkg/types"
)

// Note defaults applied when a note is created.
const (
	DefaultNoteTitle = "new note"
	DefaultNoteType  = "text"
	DefaultNoteMime  = "text/html"
)

var noteSpec = &fieldSpec{
	writable: []string{types.FieldTitle, types.FieldType, types.FieldMime},
	readOnly: []string{types.FieldNoteID, types.FieldBlobID, types.FieldDateModified},
	defaults: types.Fields{
		types.FieldTitle: DefaultNoteTitle,
		types.FieldType:  DefaultNoteType,
		types.FieldMime:  DefaultNoteMime,
	},
}

// Note is a node of the graph. It owns an ordered list of attributes, an
// ordered list of child branches and a content blob, and is placed in the
// tree by its parent branches.
type Note struct {
	entity
	attributes *OwnedAttributes
	children   *ChildBranches
	parents    *ParentBranches
	content    *Content
}

func newNote(s *Session, id string, declared bool) *Note {
	n := &Note{}
	n.declared = declared
	n.attributes = newOwnedAttributes(n)
	n.children = newChildBranches(n)
	n.parents = newParentBranches(n)
	n.content = newContent(n)
	n.init(s, n, id, noteSpec)
	n.model.extensions = []extension{n.attributes, n.children, n.parents, n.content}
	return n
}

// Kind returns KindNote.
func (n *Note) Kind() Kind { return KindNote }

// IsRoot reports whether n is the tree root.
func (n *Note) IsRoot() bool { return n.id == types.RootNoteID }

func (n *Note) Title() (string, error) { return n.model.GetString(types.FieldTitle) }
func (n *Note) SetTitle(v string) error { return n.model.Set(types.FieldTitle, v) }
func (n *Note) Type() (string, error) { return n.model.GetString(types.FieldType) }
func (n *Note) SetType(v string) error { return n.model.Set(types.FieldType, v) }
func (n *Note) Mime() (string, error) { return n.model.GetString(types.FieldMime) }
func (n *Note) SetMime(v string) error { return n.model.Set(types.FieldMime, v) }
func (n *Note) BlobID() (string, error) { return n.model.GetString(types.FieldBlobID) }

// DateModified returns the remote modification time.
func (n *Note) DateModified() (time.Time, error) {
	return fieldAs[time.Time](n.model, types.FieldDateModified)
}

// Content returns the note content, fetching it on first access.
func (n *Note) Content() ([]byte, error) { return n.content.get() }

// SetContent replaces the note content. Only a change of digest makes the
// note dirty.
func (n *Note) SetContent(b []byte) error { return n.content.set(b) }

// Attributes returns the owned attributes.
func (n *Note) Attributes() *OwnedAttributes { return n.attributes }

// Children returns the child branches.
func (n *Note) Children() *ChildBranches { return n.children }

// Parents returns the parent branches.
func (n *Note) Parents() *ParentBranches { return n.parents }

// Label returns the first owned label named name, or nil.
func (n *Note) Label(name string) (*Attribute, error) {
	labels, err := n.attributes.Labels(name)
	if err != nil || len(labels) == 0 {
		return nil, err
	}
	return labels[0], nil
}

// Relation returns the first owned relation named name, or nil.
func (n *Note) Relation(name string) (*Attribute, error) {
	rels, err := n.attributes.Relations(name)
	if err != nil || len(rels) == 0 {
		return nil, err
	}
	return rels[0], nil
}

// SetLabel sets the value of the first label named name, appending a new
// label if there is none.
func (n *Note) SetLabel(name, value string) (*Attribute, error) {
	a, err := n.Label(name)
	if err != nil {
		return nil, err
	}
	if a == nil {
		a = n.session.NewLabel(name, value)
		return a, n.attributes.Append(a)
	}
	return a, a.SetValue(value)
}

// AddChild places child under n at the end of n's children.
func (n *Note) AddChild(child *Note) (*Branch, error) {
	return n.session.NewBranch(n, child)
}

// Clone places n under another parent as well, returning the new branch.
func (n *Note) Clone(parent *Note) (*Branch, error) {
	return n.session.NewBranch(parent, n)
}

// Delete marks the note for deletion and removes it from its parents'
// children. Owned attributes and child branches go with the note remotely.
func (n *Note) Delete() error {
	if n.state == types.StateDelete {
		return nil
	}
	if err := n.markDeleted(); err != nil {
		return err
	}
	for _, b := range n.parents.live() {
		if err := b.markDeleted(); err != nil {
			return err
		}
		if b.parent != nil {
			b.parent.children.list.detach(b)
		}
	}
	return nil
}

func (n *Note) dependencies() []Entity {
	if n.IsRoot() {
		return nil
	}
	var deps []Entity
	for _, b := range n.parents.live() {
		if b.parent != nil {
			deps = append(deps, b.parent)
		}
	}
	return deps
}

func (n *Note) flushCheck() []string {
	if n.state == types.StateDelete {
		if n.IsRoot() {
			return []string{"root note cannot be deleted"}
		}
		return nil
	}
	if n.IsRoot() {
		return nil
	}
	live := n.parents.live()
	if len(live) == 0 {
		return []string{"note has no parent branch"}
	}
	var problems []string
	for _, b := range live {
		if b.parent == nil {
			problems = append(problems, fmt.Sprintf("parent branch %s has no parent note", b))
		}
	}
	return problems
}

func (n *Note) setupRecord(types.Record) {}
func (n *Note) flushPrep() error { return nil }
func (n *Note) evicted() {}

func (n *Note) associated() []Entity {
	var out []Entity
	for _, a := range n.attributes.list.members() {
		out = append(out, a)
	}
	for _, b := range n.children.list.members() {
		out = append(out, b)
	}
	for _, b := range n.parents.items {
		out = append(out, b)
	}
	return out
}

// firstParent returns the parent branch a create is sent with: the lowest
// position, then the oldest.
func (n *Note) firstParent() *Branch {
	live := n.parents.live()
	if len(live) == 0 {
		return nil
	}
	slices.SortStableFunc(live, func(a, b *Branch) int {
		return cmp.Compare(a.position(), b.position())
	})
	return live[0]
}

// noteRecord extracts the note from a note-shaped record.
func noteRecord(rec types.Record) *types.Note {
	switch r := rec.(type) {
	case *types.Note:
		return r
	case *types.NoteWithBranch:
		return r.Note
	}
	return nil
}

func (oa *OwnedAttributes) load(rec types.Record) error {
	nr := noteRecord(rec)
	if nr == nil {
		oa.list.reset(nil)
		return nil
	}
	s := oa.list.owner.session
	items := make([]*Attribute, 0, len(nr.Attributes))
	for _, r := range nr.Attributes {
		a, err := s.attributeFromRecord(r)
		if err != nil {
			return err
		}
		items = append(items, a)
	}
	oa.list.reset(items)
	return nil
}

func (oa *OwnedAttributes) changed() bool { return oa.list.changed() }
func (oa *OwnedAttributes) commit(rec types.Record) { oa.list.commit(rec) }

func (cb *ChildBranches) load(rec types.Record) error {
	nr := noteRecord(rec)
	if nr == nil {
		cb.list.reset(nil)
		return nil
	}
	s := cb.list.owner.session
	items := make([]*Branch, 0, len(nr.ChildBranches))
	for _, r := range nr.ChildBranches {
		b, err := s.branchFromRecord(r)
		if err != nil {
			return err
		}
		items = append(items, b)
	}
	cb.list.reset(items)
	return nil
}

func (cb *ChildBranches) changed() bool { return cb.list.changed() }
func (cb *ChildBranches) commit(rec types.Record) { cb.list.commit(rec) }

func (pb *ParentBranches) load(rec types.Record) error {
	nr := noteRecord(rec)
	if nr == nil {
		pb.loaded = true
		return nil
	}
	s := pb.owner.session
	for _, r := range nr.ParentBranches {
		b, err := s.branchFromRecord(r)
		if err != nil {
			return err
		}
		if err := pb.add(b); err != nil {
			return err
		}
	}
	pb.loaded = true
	return nil
}

func (pb *ParentBranches) changed() bool { return false }
func (pb *ParentBranches) commit(types.Record) {}
