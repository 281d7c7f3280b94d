package declarative

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mesh-intelligence/notegraph/pkg/graph"
	"github.com/mesh-intelligence/notegraph/pkg/ident"
	"github.com/mesh-intelligence/notegraph/pkg/types"
)

// Instantiate binds def to its note in s and brings the note's fields,
// attributes and children in line with the definition. The note is placed
// under parent, or under the root when parent is nil, if it has no parent
// yet. Nothing is sent to the remote until the session is flushed.
func Instantiate(ctx context.Context, s *graph.Session, def *Definition, parent *graph.Note) (*graph.Note, error) {
	notes, err := InstantiateAll(ctx, s, []*Definition{def}, parent)
	if err != nil {
		return nil, err
	}
	return notes[0], nil
}

// InstantiateAll instantiates defs in order under one parent. Definitions
// without an id of their own derive it from the parent, so their order must
// stay stable between runs.
func InstantiateAll(ctx context.Context, s *graph.Session, defs []*Definition, parent *graph.Note) ([]*graph.Note, error) {
	if parent == nil {
		parent = s.Root()
	}
	p := &pass{ctx: ctx, s: s, log: s.Logger(), done: make(map[string]*graph.Note)}
	deriver := ident.NewDeriver(parent.ID())

	notes := make([]*graph.Note, 0, len(defs))
	for _, def := range defs {
		n, err := p.instantiate(def, deriver)
		if err != nil {
			return nil, err
		}
		if err := attach(s, parent, n); err != nil {
			return nil, fmt.Errorf("placing %s: %w", def.qualified, err)
		}
		notes = append(notes, n)
	}
	return notes, nil
}

// attach places n under parent unless n already has a parent.
func attach(s *graph.Session, parent, n *graph.Note) error {
	if n.IsRoot() {
		return nil
	}
	parents, err := n.Parents().All()
	if err != nil {
		return err
	}
	if len(parents) > 0 {
		return nil
	}
	if parent.ID() != "" && n.ID() != "" {
		_, err = s.DeclareBranch(parent, n)
	} else {
		_, err = s.NewBranch(parent, n)
	}
	return err
}

// pass is one instantiation run. Addressable notes are built once per pass
// however often they are reached.
type pass struct {
	ctx  context.Context
	s    *graph.Session
	log  *slog.Logger
	done map[string]*graph.Note
}

// noteSeed returns the note id of def and the seed its children derive
// from. Both are empty when the note cannot be addressed.
func noteSeed(def *Definition, parent *ident.Deriver) (id, seed string) {
	switch {
	case def.noteID != "":
		return def.noteID, def.noteID
	case def.seed != "":
		seed = def.seed
	case def.idempotent:
		seed = def.short
	case def.singleton:
		seed = def.qualified
	default:
		base := def.segment
		if base == "" {
			base = def.qualified
		}
		var ok bool
		if seed, ok = parent.Seed(ident.KindNote, base); !ok {
			return "", ""
		}
	}
	return ident.Hash(seed), seed
}

func (p *pass) instantiate(def *Definition, parent *ident.Deriver) (*graph.Note, error) {
	if err := p.ctx.Err(); err != nil {
		return nil, err
	}
	r, err := def.resolve()
	if err != nil {
		return nil, err
	}

	id, seed := noteSeed(def, parent)
	if n, ok := p.done[id]; ok && id != "" {
		return n, nil
	}

	var n *graph.Note
	if id != "" {
		n = p.s.DeclareNote(id)
		p.done[id] = n
	} else if n, err = p.s.NewNote(); err != nil {
		return nil, err
	}

	if err := applyFields(n, r); err != nil {
		return nil, fmt.Errorf("definition %s: %w", def.qualified, err)
	}

	b := &Builder{
		pass:    p,
		note:    n,
		deriver: ident.NewDeriver(seed),
		names:   make(map[string]bool),
	}
	for _, c := range r.contributors {
		if err := c(b); err != nil {
			return nil, fmt.Errorf("definition %s: %w", def.qualified, err)
		}
	}
	if err := b.builtins(r, id != ""); err != nil {
		return nil, fmt.Errorf("definition %s: %w", def.qualified, err)
	}

	if r.leaf && len(b.branches) > 0 {
		return nil, &DefinitionError{Name: def.qualified, Reason: "leaf declares children"}
	}
	if err := n.Attributes().Set(b.attrs); err != nil {
		return nil, fmt.Errorf("definition %s: attributes: %w", def.qualified, err)
	}
	if !r.leaf {
		if err := n.Children().Set(b.branches); err != nil {
			return nil, fmt.Errorf("definition %s: children: %w", def.qualified, err)
		}
	}

	p.log.Debug("Instantiated definition",
		"definition", def.qualified,
		"note", n.String(),
		"attributes", len(b.attrs),
		"children", len(b.branches),
	)
	return n, nil
}

func applyFields(n *graph.Note, r *resolved) error {
	if err := n.SetTitle(r.title); err != nil {
		return err
	}
	if err := n.SetType(r.noteType); err != nil {
		return err
	}
	if err := n.SetMime(r.mime); err != nil {
		return err
	}
	switch {
	case r.hasContent:
		return n.SetContent(r.content)
	case r.contentFile != "":
		data, err := os.ReadFile(r.contentFile)
		if err != nil {
			return fmt.Errorf("reading content: %w", err)
		}
		return n.SetContent(data)
	}
	return nil
}

// Builder collects the attributes and children declared for one note.
type Builder struct {
	pass     *pass
	note     *graph.Note
	deriver  *ident.Deriver
	names    map[string]bool
	attrs    []*graph.Attribute
	branches []*graph.Branch
}

// Context returns the context of the running instantiation.
func (b *Builder) Context() context.Context { return b.pass.ctx }

// Session returns the session notes are instantiated into.
func (b *Builder) Session() *graph.Session { return b.pass.s }

// Note returns the note being instantiated.
func (b *Builder) Note() *graph.Note { return b.note }

// HasAttribute reports whether an attribute named name was added earlier in
// this pass.
func (b *Builder) HasAttribute(name string) bool { return b.names[name] }

// claim records name and reports whether the declaration should be applied.
func (b *Builder) claim(name string, accumulate bool) bool {
	if b.names[name] && !accumulate {
		return false
	}
	b.names[name] = true
	return true
}

// AddLabel declares a label. Without Accumulate a label is skipped when an
// attribute of the same name was already added.
func (b *Builder) AddLabel(name, value string, opts ...AttrOption) error {
	spec := attrOptions(opts)
	if !b.claim(name, spec.accumulate) {
		return nil
	}
	var a *graph.Attribute
	if id, ok := b.deriver.Derive(ident.KindLabel, name); ok {
		a = b.pass.s.DeclareAttribute(id, types.AttributeLabel, name)
		if err := a.SetValue(value); err != nil {
			return err
		}
	} else {
		a = b.pass.s.NewLabel(name, value)
	}
	if err := a.SetInheritable(spec.inheritable); err != nil {
		return err
	}
	b.attrs = append(b.attrs, a)
	return nil
}

// AddRelation declares a relation to target. Without Accumulate a relation
// is skipped when an attribute of the same name was already added.
func (b *Builder) AddRelation(name string, target *graph.Note, opts ...AttrOption) error {
	spec := attrOptions(opts)
	if !b.claim(name, spec.accumulate) {
		return nil
	}
	var a *graph.Attribute
	if id, ok := b.deriver.Derive(ident.KindRelation, name); ok {
		a = b.pass.s.DeclareAttribute(id, types.AttributeRelation, name)
		if err := a.SetTarget(target); err != nil {
			return err
		}
	} else {
		a = b.pass.s.NewRelation(name, target)
	}
	if err := a.SetInheritable(spec.inheritable); err != nil {
		return err
	}
	b.attrs = append(b.attrs, a)
	return nil
}

// AddChild instantiates def and declares it as the next child.
func (b *Builder) AddChild(def *Definition, opts ...ChildOption) error {
	child, err := b.pass.instantiate(def, b.deriver)
	if err != nil {
		return err
	}
	return b.AddChildNote(child, opts...)
}

// AddChildNote declares an existing note as the next child.
func (b *Builder) AddChildNote(child *graph.Note, opts ...ChildOption) error {
	for _, br := range b.branches {
		if c, err := br.Child(); err == nil && c == child {
			return &DefinitionError{Name: child.String(), Reason: "declared twice as a child"}
		}
	}
	var (
		br  *graph.Branch
		err error
	)
	if b.note.ID() != "" && child.ID() != "" {
		br, err = b.pass.s.DeclareBranch(b.note, child)
	} else {
		br, err = b.pass.s.NewBranch(b.note, child)
	}
	if err != nil {
		return err
	}
	spec := childOptions(opts)
	if err := br.SetPrefix(spec.prefix); err != nil {
		return err
	}
	if err := br.SetExpanded(spec.expanded); err != nil {
		return err
	}
	b.branches = append(b.branches, br)
	return nil
}

// builtins adds the labels every declarative note carries.
func (b *Builder) builtins(r *resolved, addressable bool) error {
	if r.icon != "" {
		if err := b.AddLabel(LabelIconClass, r.icon); err != nil {
			return err
		}
	}
	if addressable && !r.leaf {
		if err := b.AddLabel(LabelCSSClass, DeclarativeCSSClass); err != nil {
			return err
		}
	}
	if r.contentFile != "" {
		if err := b.AddLabel(LabelOriginalFilename, filepath.Base(r.contentFile)); err != nil {
			return err
		}
	}
	return nil
}
