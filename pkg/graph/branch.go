package graph

import (
	"fmt"
	"slices"

	"github.com/mesh-intelligence/notegraph/pkg/types"
)

var branchSpec = &fieldSpec{
	writable: []string{types.FieldPrefix, types.FieldIsExpanded, types.FieldNotePosition},
	readOnly: []string{types.FieldBranchID, types.FieldNoteID, types.FieldParentNoteID},
	defaults: types.Fields{
		types.FieldPrefix:       "",
		types.FieldIsExpanded:   false,
		types.FieldNotePosition: 0,
	},
}

// Branch places a child note under a parent note. The root's branch has no
// parent.
type Branch struct {
	entity
	parent *Note
	child  *Note
}

func newBranch(s *Session, id string, declared bool) *Branch {
	b := &Branch{}
	b.declared = declared
	b.init(s, b, id, branchSpec)
	return b
}

// Kind returns KindBranch.
func (b *Branch) Kind() Kind { return KindBranch }

// Parent returns the parent note; nil for the root's branch.
func (b *Branch) Parent() (*Note, error) {
	if err := b.model.ensureSetup(); err != nil {
		return nil, err
	}
	return b.parent, nil
}

// Child returns the child note.
func (b *Branch) Child() (*Note, error) {
	if err := b.model.ensureSetup(); err != nil {
		return nil, err
	}
	return b.child, nil
}

func (b *Branch) Prefix() (string, error) { return b.model.GetString(types.FieldPrefix) }
func (b *Branch) SetPrefix(v string) error { return b.model.Set(types.FieldPrefix, v) }
func (b *Branch) Expanded() (bool, error) { return b.model.GetBool(types.FieldIsExpanded) }
func (b *Branch) SetExpanded(v bool) error { return b.model.Set(types.FieldIsExpanded, v) }
func (b *Branch) Position() (int, error) { return b.model.GetInt(types.FieldNotePosition) }
func (b *Branch) SetPosition(v int) error { return b.model.Set(types.FieldNotePosition, v) }

// Delete marks the branch for deletion and removes it from the parent's
// children. The child keeps it among its parents until the delete is
// flushed.
func (b *Branch) Delete() error {
	if b.state == types.StateDelete {
		return nil
	}
	if err := b.markDeleted(); err != nil {
		return err
	}
	if b.parent != nil {
		b.parent.children.list.detach(b)
	}
	return nil
}

func (b *Branch) position() int { return b.model.mustInt(types.FieldNotePosition) }

func (b *Branch) setPosition(v int) error { return b.SetPosition(v) }

func (b *Branch) dependencies() []Entity {
	var deps []Entity
	if b.child != nil {
		deps = append(deps, b.child)
	}
	if b.parent == nil {
		return deps
	}
	deps = append(deps, b.parent)
	if b.state == types.StateDelete {
		return deps
	}
	for _, sib := range b.parent.children.list.items {
		if sib == b {
			break
		}
		deps = append(deps, sib)
		if sib.child != nil {
			deps = append(deps, sib.child)
		}
	}
	return deps
}

func (b *Branch) flushCheck() []string {
	if b.state == types.StateDelete {
		return nil
	}
	var problems []string
	if b.child == nil {
		problems = append(problems, "branch has no child note")
	}
	if b.parent == nil {
		if b.child == nil || !b.child.IsRoot() {
			problems = append(problems, "branch has no parent note")
		}
		return problems
	}
	if b.parent.children.list.loaded && !b.parent.children.list.contains(b) {
		problems = append(problems, fmt.Sprintf("branch is not among the children of %s", b.parent))
	}
	if b.child != nil {
		if b.child.parents.loaded && !slices.Contains(b.child.parents.items, b) {
			problems = append(problems, fmt.Sprintf("branch is not among the parents of %s", b.child))
		}
		for _, sib := range b.parent.children.list.items {
			if sib != b && sib.child == b.child {
				problems = append(problems, fmt.Sprintf("%s already places %s under %s", sib, b.child, b.parent))
				break
			}
		}
	}
	return problems
}

func (b *Branch) setupRecord(rec types.Record) {
	r, ok := rec.(*types.Branch)
	if !ok {
		return
	}
	if b.child == nil {
		b.session.noteRef(r.NoteID).parents.attach(b)
	}
	if b.parent == nil && r.ParentNoteID != types.NoneNoteID && r.ParentNoteID != "" {
		b.parent = b.session.noteRef(r.ParentNoteID)
	}
}

func (b *Branch) flushPrep() error { return nil }
func (b *Branch) associated() []Entity { return nil }

func (b *Branch) evicted() {
	if b.child != nil {
		b.child.parents.drop(b)
	}
	if b.parent != nil {
		b.parent.children.list.forget(b)
	}
}

// record builds the wire record from the working state.
func (b *Branch) record() *types.Branch {
	rec := &types.Branch{
		BranchID:     b.id,
		ParentNoteID: types.NoneNoteID,
		Prefix:       b.model.mustString(types.FieldPrefix),
		NotePosition: b.model.mustInt(types.FieldNotePosition),
		IsExpanded:   b.model.mustBool(types.FieldIsExpanded),
	}
	if b.child != nil {
		rec.NoteID = b.child.id
	}
	if b.parent != nil {
		rec.ParentNoteID = b.parent.id
	}
	return rec
}
