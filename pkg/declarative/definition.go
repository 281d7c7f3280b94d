// Package declarative describes note sub-trees as data and instantiates them
// into a graph session.
//
// A Definition fixes a note's fields, its labels and relations and its
// children. Instantiate binds the definition to the note it identifies,
// creating what is missing and replacing owned attributes and children with
// the declared ones, so applying the same definitions again is a no-op.
package declarative

import (
	"errors"
	"strings"
)

// ErrInvalidDefinition is returned for definitions that cannot be
// instantiated.
var ErrInvalidDefinition = errors.New("invalid definition")

// Default field values applied when a definition leaves them empty.
const (
	DefaultType = "text"
	DefaultMime = "text/html"
)

// Built-in attribute names and values.
const (
	LabelIconClass        = "iconClass"
	LabelCSSClass         = "cssClass"
	LabelOriginalFilename = "originalFilename"
	DeclarativeCSSClass   = "notegraphDeclarative"
)

// Contributor adds attributes and children to the note being instantiated.
type Contributor func(*Builder) error

// Definition describes one note and the sub-tree below it.
//
// The zero value is not usable; build definitions with New. The builder
// methods return the definition so calls chain.
type Definition struct {
	qualified string
	short     string

	noteID     string
	seed       string
	singleton  bool
	idempotent bool
	segment    string

	title       string
	noteType    string
	mime        string
	content     []byte
	hasContent  bool
	contentFile string
	icon        string
	leaf        bool

	contributors []Contributor
	mixins       []*Definition
	base         *Definition
}

// New returns a definition named qualifiedName. The short name is the part
// after the last dot.
func New(qualifiedName string) *Definition {
	short := qualifiedName
	if i := strings.LastIndex(qualifiedName, "."); i >= 0 {
		short = qualifiedName[i+1:]
	}
	return &Definition{qualified: qualifiedName, short: short}
}

// Name returns the qualified name.
func (d *Definition) Name() string { return d.qualified }

// ShortName returns the name after the last dot.
func (d *Definition) ShortName() string { return d.short }

// ID fixes the note id. The id is also the seed for the note's children and
// attributes.
func (d *Definition) ID(id string) *Definition {
	d.noteID = id
	return d
}

// Seed sets an explicit seed; the note id is its hash.
func (d *Definition) Seed(seed string) *Definition {
	d.seed = seed
	return d
}

// Singleton seeds the note with the qualified name.
func (d *Definition) Singleton() *Definition {
	d.singleton = true
	return d
}

// Idempotent seeds the note with the short name.
func (d *Definition) Idempotent() *Definition {
	d.idempotent = true
	return d
}

// Segment replaces the qualified name when the id is derived from the
// parent's seed.
func (d *Definition) Segment(s string) *Definition {
	d.segment = s
	return d
}

// Title sets the title. It defaults to the short name.
func (d *Definition) Title(v string) *Definition {
	d.title = v
	return d
}

// NoteType sets the note type.
func (d *Definition) NoteType(v string) *Definition {
	d.noteType = v
	return d
}

// Mime sets the mime type.
func (d *Definition) Mime(v string) *Definition {
	d.mime = v
	return d
}

// Content sets inline content.
func (d *Definition) Content(b []byte) *Definition {
	d.content = b
	d.hasContent = true
	return d
}

// ContentFile reads the content from path at instantiation and records the
// file's base name in an originalFilename label.
func (d *Definition) ContentFile(path string) *Definition {
	d.contentFile = path
	return d
}

// Icon sets the iconClass label.
func (d *Definition) Icon(class string) *Definition {
	d.icon = class
	return d
}

// Leaf marks a note whose children are not managed by the definition.
func (d *Definition) Leaf() *Definition {
	d.leaf = true
	return d
}

// AttrOption tunes a declared label or relation.
type AttrOption func(*attrSpec)

type attrSpec struct {
	inheritable bool
	accumulate  bool
}

// Inheritable marks the attribute inheritable.
func Inheritable() AttrOption { return func(s *attrSpec) { s.inheritable = true } }

// Accumulate keeps earlier attributes of the same name instead of skipping
// the declaration.
func Accumulate() AttrOption { return func(s *attrSpec) { s.accumulate = true } }

func attrOptions(opts []AttrOption) attrSpec {
	var s attrSpec
	for _, o := range opts {
		o(&s)
	}
	return s
}

// ChildOption tunes the branch placing a declared child.
type ChildOption func(*childSpec)

type childSpec struct {
	prefix   string
	expanded bool
}

// Prefix sets the branch prefix.
func Prefix(p string) ChildOption { return func(s *childSpec) { s.prefix = p } }

// Expanded marks the branch expanded.
func Expanded() ChildOption { return func(s *childSpec) { s.expanded = true } }

func childOptions(opts []ChildOption) childSpec {
	var s childSpec
	for _, o := range opts {
		o(&s)
	}
	return s
}

// Label declares a label.
func (d *Definition) Label(name, value string, opts ...AttrOption) *Definition {
	return d.Contribute(func(b *Builder) error {
		return b.AddLabel(name, value, opts...)
	})
}

// Relation declares a relation to the note of target, which must be
// addressable on its own.
func (d *Definition) Relation(name string, target *Definition, opts ...AttrOption) *Definition {
	return d.Contribute(func(b *Builder) error {
		if !target.addressable() {
			return &DefinitionError{Name: target.qualified, Reason: "relation target is not addressable"}
		}
		n, err := b.pass.instantiate(target, nil)
		if err != nil {
			return err
		}
		return b.AddRelation(name, n, opts...)
	})
}

// RelationTo declares a relation to the note with id.
func (d *Definition) RelationTo(name, noteID string, opts ...AttrOption) *Definition {
	return d.Contribute(func(b *Builder) error {
		return b.AddRelation(name, b.Session().DeclareNote(noteID), opts...)
	})
}

// Child declares a child.
func (d *Definition) Child(child *Definition, opts ...ChildOption) *Definition {
	return d.Contribute(func(b *Builder) error {
		return b.AddChild(child, opts...)
	})
}

// Use mixes in the contributors and fields of other definitions. Fields set
// on d win over the mixins'.
func (d *Definition) Use(mixins ...*Definition) *Definition {
	d.mixins = append(d.mixins, mixins...)
	return d
}

// Extend derives d from base. Fields and contributors of d and its mixins
// win over the base's.
func (d *Definition) Extend(base *Definition) *Definition {
	d.base = base
	return d
}

// Contribute appends a contributor.
func (d *Definition) Contribute(fn Contributor) *Definition {
	d.contributors = append(d.contributors, fn)
	return d
}

// DefinitionError reports why a definition cannot be instantiated.
type DefinitionError struct {
	Name   string
	Reason string
}

func (e *DefinitionError) Error() string {
	return "definition " + e.Name + ": " + e.Reason
}

// Is reports whether target is ErrInvalidDefinition.
func (e *DefinitionError) Is(target error) bool { return target == ErrInvalidDefinition }

// chain returns d followed by its mixins and its base, depth first, in the
// order their fields and contributors apply. A definition reached twice is
// kept at its first position.
func (d *Definition) chain() ([]*Definition, error) {
	var out []*Definition
	visiting := make(map[*Definition]bool)
	emitted := make(map[*Definition]bool)
	var walk func(*Definition) error
	walk = func(x *Definition) error {
		if visiting[x] {
			return &DefinitionError{Name: x.qualified, Reason: "inherits from itself"}
		}
		if emitted[x] {
			return nil
		}
		visiting[x] = true
		emitted[x] = true
		out = append(out, x)
		for _, m := range x.mixins {
			if err := walk(m); err != nil {
				return err
			}
		}
		if x.base != nil {
			if err := walk(x.base); err != nil {
				return err
			}
		}
		visiting[x] = false
		return nil
	}
	if err := walk(d); err != nil {
		return nil, err
	}
	return out, nil
}

// resolved holds the fields of a definition after mixins and the base are
// folded in.
type resolved struct {
	def          *Definition
	title        string
	noteType     string
	mime         string
	content      []byte
	hasContent   bool
	contentFile  string
	icon         string
	leaf         bool
	contributors []Contributor
}

func (d *Definition) resolve() (*resolved, error) {
	chain, err := d.chain()
	if err != nil {
		return nil, err
	}
	r := &resolved{def: d}
	for _, x := range chain {
		if r.title == "" {
			r.title = x.title
		}
		if r.noteType == "" {
			r.noteType = x.noteType
		}
		if r.mime == "" {
			r.mime = x.mime
		}
		if !r.hasContent && r.contentFile == "" {
			switch {
			case x.hasContent:
				r.content, r.hasContent = x.content, true
			case x.contentFile != "":
				r.contentFile = x.contentFile
			}
		}
		if r.icon == "" {
			r.icon = x.icon
		}
		r.leaf = r.leaf || x.leaf
		r.contributors = append(r.contributors, x.contributors...)
	}
	if r.title == "" {
		r.title = d.short
	}
	if r.noteType == "" {
		r.noteType = DefaultType
	}
	if r.mime == "" {
		r.mime = DefaultMime
	}
	return r, nil
}

// addressable reports whether d has an id independent of any parent.
func (d *Definition) addressable() bool {
	return d.noteID != "" || d.seed != "" || d.idempotent || d.singleton
}
