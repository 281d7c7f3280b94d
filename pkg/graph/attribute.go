package graph

import (
	"fmt"

	"github.com/mesh-intelligence/notegraph/pkg/types"
)

var attributeSpec = &fieldSpec{
	writable: []string{types.FieldValue, types.FieldIsInheritable, types.FieldPosition},
	readOnly: []string{types.FieldAttributeID, types.FieldNoteID, types.FieldAttributeType, types.FieldName},
	defaults: types.Fields{
		types.FieldValue:         "",
		types.FieldIsInheritable: false,
		types.FieldPosition:      0,
	},
}

// Attribute is a label or relation owned by exactly one note. Its type and
// name are fixed at construction; a relation's value is its target's id.
type Attribute struct {
	entity
	typ    string
	name   string
	note   *Note
	target *Note
}

func newAttribute(s *Session, id string, declared bool, typ, name string) *Attribute {
	a := &Attribute{typ: typ, name: name}
	a.declared = declared
	a.init(s, a, id, attributeSpec)
	return a
}

// Kind returns KindAttribute.
func (a *Attribute) Kind() Kind { return KindAttribute }

// Type returns types.AttributeLabel or types.AttributeRelation.
func (a *Attribute) Type() string { return a.typ }

// Name returns the attribute name.
func (a *Attribute) Name() string { return a.name }

// IsRelation reports whether a points at another note.
func (a *Attribute) IsRelation() bool { return a.typ == types.AttributeRelation }

// Note returns the owning note, or nil while unbound.
func (a *Attribute) Note() (*Note, error) {
	if err := a.model.ensureSetup(); err != nil {
		return nil, err
	}
	return a.note, nil
}

func (a *Attribute) Value() (string, error) { return a.model.GetString(types.FieldValue) }

// SetValue writes a label value. Relations change value through SetTarget.
func (a *Attribute) SetValue(v string) error {
	if a.IsRelation() {
		return fmt.Errorf("%s: set value of relation: %w", a, ErrWrongKind)
	}
	return a.model.Set(types.FieldValue, v)
}

func (a *Attribute) Inheritable() (bool, error) { return a.model.GetBool(types.FieldIsInheritable) }
func (a *Attribute) SetInheritable(v bool) error { return a.model.Set(types.FieldIsInheritable, v) }
func (a *Attribute) Position() (int, error) { return a.model.GetInt(types.FieldPosition) }
func (a *Attribute) SetPosition(v int) error { return a.model.Set(types.FieldPosition, v) }

// Target returns the note a relation points at.
func (a *Attribute) Target() (*Note, error) {
	if !a.IsRelation() {
		return nil, fmt.Errorf("%s: target of label: %w", a, ErrWrongKind)
	}
	if err := a.model.ensureSetup(); err != nil {
		return nil, err
	}
	return a.target, nil
}

// SetTarget points a relation at n. The value is resolved again right
// before the flush, once n has an id.
func (a *Attribute) SetTarget(n *Note) error {
	if !a.IsRelation() {
		return fmt.Errorf("%s: target of label: %w", a, ErrWrongKind)
	}
	if err := a.model.ensureSetup(); err != nil {
		return err
	}
	if a.state == types.StateDelete {
		return &InvalidStateError{Entity: a.String(), State: a.state, Op: "set target"}
	}
	a.target = n
	id := ""
	if n != nil {
		id = n.id
	}
	return a.model.Set(types.FieldValue, id)
}

// Delete marks the attribute for deletion and removes it from its note.
func (a *Attribute) Delete() error {
	if a.state == types.StateDelete {
		return nil
	}
	if err := a.markDeleted(); err != nil {
		return err
	}
	if a.note != nil {
		a.note.attributes.list.detach(a)
	}
	return nil
}

func (a *Attribute) position() int { return a.model.mustInt(types.FieldPosition) }

func (a *Attribute) setPosition(v int) error { return a.SetPosition(v) }

func (a *Attribute) dependencies() []Entity {
	var deps []Entity
	if a.note != nil {
		deps = append(deps, a.note)
		if a.state != types.StateDelete {
			for _, sib := range a.note.attributes.list.items {
				if sib == a {
					break
				}
				deps = append(deps, sib)
			}
		}
	}
	if a.target != nil && a.state != types.StateDelete {
		deps = append(deps, a.target)
	}
	return deps
}

func (a *Attribute) flushCheck() []string {
	if a.state == types.StateDelete {
		return nil
	}
	var problems []string
	if a.note == nil {
		problems = append(problems, "attribute is not bound to a note")
	}
	if a.IsRelation() {
		switch {
		case a.target == nil:
			problems = append(problems, "relation has no target")
		case a.target.state == types.StateDelete:
			problems = append(problems, fmt.Sprintf("relation target %s is being deleted", a.target))
		}
	}
	return problems
}

func (a *Attribute) setupRecord(rec types.Record) {
	r, ok := rec.(*types.Attribute)
	if !ok {
		return
	}
	a.typ = r.Type
	a.name = r.Name
	if a.note == nil {
		a.note = a.session.noteRef(r.NoteID)
	}
	if a.IsRelation() && a.target == nil && r.Value != "" {
		a.target = a.session.noteRef(r.Value)
	}
}

// flushPrep resolves a relation's value from its target.
func (a *Attribute) flushPrep() error {
	if !a.IsRelation() || a.target == nil || a.state == types.StateDelete {
		return nil
	}
	if v, _ := a.model.GetString(types.FieldValue); v != a.target.id {
		return a.model.Set(types.FieldValue, a.target.id)
	}
	return nil
}

func (a *Attribute) associated() []Entity { return nil }

func (a *Attribute) evicted() {
	if a.note != nil {
		a.note.attributes.list.forget(a)
	}
}

// record builds the wire record from the working state.
func (a *Attribute) record() *types.Attribute {
	noteID := ""
	if a.note != nil {
		noteID = a.note.id
	}
	return &types.Attribute{
		AttributeID:   a.id,
		NoteID:        noteID,
		Type:          a.typ,
		Name:          a.name,
		Value:         a.model.mustString(types.FieldValue),
		Position:      a.model.mustInt(types.FieldPosition),
		IsInheritable: a.model.mustBool(types.FieldIsInheritable),
	}
}
