package graph

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/mesh-intelligence/notegraph/pkg/types"
)

// positioned is an entity with a position inside an ordered collection.
type positioned interface {
	Entity
	*Attribute | *Branch
	position() int
	setPosition(int) error
}

// orderedList is an ordered collection owned by a note. Membership changes
// are tracked against a baseline so the owner can be marked UPDATE, and
// positions are kept strictly increasing.
type orderedList[T positioned] struct {
	owner    *Note
	items    []T
	baseline []T
	loaded   bool
	bind     func(T) error
	unbind   func(T) error
}

func (l *orderedList[T]) ensure() error {
	return l.owner.model.ensureSetup()
}

func (l *orderedList[T]) all() ([]T, error) {
	if err := l.ensure(); err != nil {
		return nil, err
	}
	return slices.Clone(l.items), nil
}

func (l *orderedList[T]) contains(item T) bool {
	return slices.Contains(l.items, item)
}

func (l *orderedList[T]) insert(i int, items ...T) error {
	if err := l.ensure(); err != nil {
		return err
	}
	if i < 0 || i > len(l.items) {
		return fmt.Errorf("%s: insert index %d out of range [0, %d]", l.owner, i, len(l.items))
	}
	for _, item := range items {
		if l.contains(item) {
			return fmt.Errorf("%s: %s: %w", l.owner, item, ErrAlreadyMember)
		}
	}
	for j, item := range items {
		if err := l.bind(item); err != nil {
			return err
		}
		l.items = slices.Insert(l.items, i+j, item)
	}
	if err := l.renumber(i); err != nil {
		return err
	}
	l.owner.checkState()
	return nil
}

func (l *orderedList[T]) remove(item T) error {
	if err := l.ensure(); err != nil {
		return err
	}
	idx := slices.Index(l.items, item)
	if idx < 0 {
		return fmt.Errorf("%s: %s: %w", l.owner, item, ErrNotMember)
	}
	l.items = slices.Delete(l.items, idx, idx+1)
	if err := l.unbind(item); err != nil {
		return err
	}
	l.owner.checkState()
	return nil
}

// detach drops item without unbinding it; used when the item deletes itself.
func (l *orderedList[T]) detach(item T) {
	idx := slices.Index(l.items, item)
	if idx < 0 {
		return
	}
	l.items = slices.Delete(l.items, idx, idx+1)
	l.owner.checkState()
}

// replace makes items the new contents. Members no longer present are
// unbound, new ones bound, and positions fixed where order is violated.
func (l *orderedList[T]) replace(items []T) error {
	if err := l.ensure(); err != nil {
		return err
	}
	seen := make(map[T]bool, len(items))
	for _, item := range items {
		if seen[item] {
			return fmt.Errorf("%s: %s: %w", l.owner, item, ErrAlreadyMember)
		}
		seen[item] = true
	}
	prev := l.items
	for _, item := range items {
		if !slices.Contains(prev, item) {
			if err := l.bind(item); err != nil {
				return err
			}
		}
	}
	l.items = slices.Clone(items)
	for _, item := range prev {
		if !seen[item] {
			if err := l.unbind(item); err != nil {
				return err
			}
		}
	}
	if err := l.renumber(0); err != nil {
		return err
	}
	l.owner.checkState()
	return nil
}

// renumber walks from index from to the end and moves any item whose
// position does not sit strictly between its neighbours to the previous
// position plus 10. The first item falls back to 10.
func (l *orderedList[T]) renumber(from int) error {
	for i := from; i < len(l.items); i++ {
		cur := l.items[i].position()
		update := (i > 0 && cur <= l.items[i-1].position()) ||
			(i < len(l.items)-1 && cur >= l.items[i+1].position())
		if !update {
			continue
		}
		prev := 0
		if i > 0 {
			prev = l.items[i-1].position()
		}
		if err := l.items[i].setPosition(prev + 10); err != nil {
			return err
		}
	}
	return nil
}

// reset installs a fetched membership as the baseline. Members already
// pending deletion stay in the baseline only.
func (l *orderedList[T]) reset(items []T) {
	l.baseline = slices.Clone(items)
	l.items = slices.DeleteFunc(items, func(item T) bool {
		return item.State() == types.StateDelete
	})
	l.loaded = true
}

// members returns the current items followed by baseline items that were
// removed since the last flush.
func (l *orderedList[T]) members() []T {
	out := slices.Clone(l.items)
	for _, item := range l.baseline {
		if !slices.Contains(out, item) {
			out = append(out, item)
		}
	}
	return out
}

// forget removes item from both the contents and the baseline once it is
// gone remotely.
func (l *orderedList[T]) forget(item T) {
	l.items = slices.DeleteFunc(l.items, func(x T) bool { return x == item })
	l.baseline = slices.DeleteFunc(l.baseline, func(x T) bool { return x == item })
}

func (l *orderedList[T]) changed() bool {
	if !l.loaded {
		return false
	}
	return !slices.Equal(l.items, l.baseline)
}

func (l *orderedList[T]) commit(types.Record) {
	l.baseline = slices.Clone(l.items)
}

// OwnedAttributes is the ordered list of attributes owned by a note.
type OwnedAttributes struct {
	list orderedList[*Attribute]
}

func newOwnedAttributes(n *Note) *OwnedAttributes {
	oa := &OwnedAttributes{}
	oa.list = orderedList[*Attribute]{
		owner: n,
		bind: func(a *Attribute) error {
			if a.note != nil && a.note != n {
				return fmt.Errorf("%s: %w", a, ErrAlreadyBound)
			}
			if a.state == types.StateDelete {
				return &InvalidStateError{Entity: a.String(), State: a.state, Op: "add to note"}
			}
			a.note = n
			return nil
		},
		unbind: func(a *Attribute) error {
			return a.markDeleted()
		},
	}
	return oa
}

// All returns the attributes in position order.
func (oa *OwnedAttributes) All() ([]*Attribute, error) { return oa.list.all() }

// Append adds attributes at the end.
func (oa *OwnedAttributes) Append(attrs ...*Attribute) error {
	if err := oa.list.ensure(); err != nil {
		return err
	}
	return oa.list.insert(len(oa.list.items), attrs...)
}

// Insert adds an attribute at index i.
func (oa *OwnedAttributes) Insert(i int, a *Attribute) error { return oa.list.insert(i, a) }

// Remove drops an attribute from the note and deletes it.
func (oa *OwnedAttributes) Remove(a *Attribute) error { return oa.list.remove(a) }

// Set replaces the attributes; dropped ones are deleted.
func (oa *OwnedAttributes) Set(attrs []*Attribute) error { return oa.list.replace(attrs) }

// Labels returns the owned labels named name; all labels if name is empty.
func (oa *OwnedAttributes) Labels(name string) ([]*Attribute, error) {
	return oa.filter(types.AttributeLabel, name)
}

// Relations returns the owned relations named name; all if name is empty.
func (oa *OwnedAttributes) Relations(name string) ([]*Attribute, error) {
	return oa.filter(types.AttributeRelation, name)
}

func (oa *OwnedAttributes) filter(kind, name string) ([]*Attribute, error) {
	all, err := oa.list.all()
	if err != nil {
		return nil, err
	}
	var out []*Attribute
	for _, a := range all {
		if a.typ != kind {
			continue
		}
		if name != "" && a.name != name {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// ChildBranches is the ordered list of branches to a note's children.
type ChildBranches struct {
	list orderedList[*Branch]
}

func newChildBranches(n *Note) *ChildBranches {
	cb := &ChildBranches{}
	cb.list = orderedList[*Branch]{
		owner: n,
		bind: func(b *Branch) error {
			if b.parent != nil && b.parent != n {
				return fmt.Errorf("%s: %w", b, ErrAlreadyBound)
			}
			if b.state == types.StateDelete {
				return &InvalidStateError{Entity: b.String(), State: b.state, Op: "add to note"}
			}
			b.parent = n
			if b.child != nil {
				return b.child.parents.add(b)
			}
			return nil
		},
		unbind: func(b *Branch) error {
			return b.markDeleted()
		},
	}
	return cb
}

// All returns the child branches in position order.
func (cb *ChildBranches) All() ([]*Branch, error) { return cb.list.all() }

// Append adds branches at the end.
func (cb *ChildBranches) Append(branches ...*Branch) error {
	if err := cb.list.ensure(); err != nil {
		return err
	}
	return cb.list.insert(len(cb.list.items), branches...)
}

// Insert adds a branch at index i.
func (cb *ChildBranches) Insert(i int, b *Branch) error { return cb.list.insert(i, b) }

// Remove drops a branch from the note and deletes it.
func (cb *ChildBranches) Remove(b *Branch) error { return cb.list.remove(b) }

// Set replaces the child branches; dropped ones are deleted.
func (cb *ChildBranches) Set(branches []*Branch) error { return cb.list.replace(branches) }

// Notes returns the child notes in position order.
func (cb *ChildBranches) Notes() ([]*Note, error) {
	all, err := cb.list.all()
	if err != nil {
		return nil, err
	}
	notes := make([]*Note, 0, len(all))
	for _, b := range all {
		notes = append(notes, b.child)
	}
	return notes, nil
}

// ParentBranches is the unordered set of branches placing a note under its
// parents. Membership changes do not affect the note's state.
type ParentBranches struct {
	owner  *Note
	items  []*Branch
	loaded bool
}

func newParentBranches(n *Note) *ParentBranches {
	return &ParentBranches{owner: n}
}

// All returns the parent branches in registration order.
func (pb *ParentBranches) All() ([]*Branch, error) {
	if err := pb.owner.model.ensureSetup(); err != nil {
		return nil, err
	}
	return pb.sorted(), nil
}

// Add places the note under b's parent. b is also appended to the parent's
// children if it is not there yet.
func (pb *ParentBranches) Add(b *Branch) error {
	if err := pb.add(b); err != nil {
		return err
	}
	if b.parent != nil && !b.parent.children.list.contains(b) {
		return b.parent.children.Append(b)
	}
	return nil
}

// Remove deletes b, detaching the note from that parent.
func (pb *ParentBranches) Remove(b *Branch) error {
	if !slices.Contains(pb.items, b) {
		return fmt.Errorf("%s: %s: %w", pb.owner, b, ErrNotMember)
	}
	return b.Delete()
}

// Notes returns the parent notes.
func (pb *ParentBranches) Notes() ([]*Note, error) {
	all, err := pb.All()
	if err != nil {
		return nil, err
	}
	var notes []*Note
	for _, b := range all {
		if b.parent != nil {
			notes = append(notes, b.parent)
		}
	}
	return notes, nil
}

func (pb *ParentBranches) add(b *Branch) error {
	if err := pb.owner.model.ensureSetup(); err != nil {
		return err
	}
	if slices.Contains(pb.items, b) {
		return nil
	}
	if b.child != nil && b.child != pb.owner {
		return fmt.Errorf("%s: %w", b, ErrAlreadyBound)
	}
	b.child = pb.owner
	pb.items = append(pb.items, b)
	return nil
}

// attach records b without fetching the owner. It is a no-op until the
// owner's parents have been loaded, since loading picks b up.
func (pb *ParentBranches) attach(b *Branch) {
	b.child = pb.owner
	if pb.loaded && !slices.Contains(pb.items, b) {
		pb.items = append(pb.items, b)
	}
}

func (pb *ParentBranches) drop(b *Branch) {
	if idx := slices.Index(pb.items, b); idx >= 0 {
		pb.items = slices.Delete(pb.items, idx, idx+1)
	}
}

// live returns the branches not pending deletion, in registration order.
func (pb *ParentBranches) live() []*Branch {
	var out []*Branch
	for _, b := range pb.sorted() {
		if b.state != types.StateDelete {
			out = append(out, b)
		}
	}
	return out
}

func (pb *ParentBranches) sorted() []*Branch {
	out := slices.Clone(pb.items)
	slices.SortFunc(out, func(a, b *Branch) int {
		return cmp.Compare(a.seq, b.seq)
	})
	return out
}

