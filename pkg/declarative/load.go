// This file implements loading definitions from YAML tree files.
package declarative

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// treeFile is the document layout of a YAML tree file. Definitions are
// only instantiated through the tree, as children, mixins, bases or
// relation targets.
type treeFile struct {
	Definitions []nodeDoc `yaml:"definitions"`
	Tree        []nodeDoc `yaml:"tree"`
}

type nodeDoc struct {
	Name string `yaml:"name"`
	Ref  string `yaml:"ref"`

	ID         string `yaml:"id"`
	Seed       string `yaml:"seed"`
	Singleton  bool   `yaml:"singleton"`
	Idempotent bool   `yaml:"idempotent"`
	Segment    string `yaml:"segment"`

	Title       string  `yaml:"title"`
	Type        string  `yaml:"type"`
	Mime        string  `yaml:"mime"`
	Content     *string `yaml:"content"`
	ContentFile string  `yaml:"content_file"`
	Icon        string  `yaml:"icon"`
	Leaf        bool    `yaml:"leaf"`

	Labels    []labelDoc    `yaml:"labels"`
	Relations []relationDoc `yaml:"relations"`
	Children  []nodeDoc     `yaml:"children"`
	Use       []string      `yaml:"use"`
	Extend    string        `yaml:"extend"`

	// Placement of the node when it is a child.
	Prefix   string `yaml:"prefix"`
	Expanded bool   `yaml:"expanded"`
}

type labelDoc struct {
	Name        string `yaml:"name"`
	Value       string `yaml:"value"`
	Inheritable bool   `yaml:"inheritable"`
	Accumulate  bool   `yaml:"accumulate"`
}

type relationDoc struct {
	Name        string `yaml:"name"`
	Target      string `yaml:"target"`
	TargetID    string `yaml:"target_id"`
	Inheritable bool   `yaml:"inheritable"`
	Accumulate  bool   `yaml:"accumulate"`
}

// Load parses a YAML tree document and returns the definitions of its tree
// section in document order. Relative content files resolve against the
// working directory.
func Load(r io.Reader) ([]*Definition, error) {
	return load(r, "")
}

// LoadFile parses the YAML tree file at path. Relative content files
// resolve against the file's directory.
func LoadFile(path string) ([]*Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening tree file: %w", err)
	}
	defer f.Close()

	defs, err := load(f, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// Glob expands patterns, which may contain "**", into a sorted list of
// files without duplicates.
func Glob(patterns ...string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", pattern, err)
		}
		files = append(files, matches...)
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

// LoadGlob loads every file matched by patterns, in file name order.
func LoadGlob(patterns ...string) ([]*Definition, error) {
	files, err := Glob(patterns...)
	if err != nil {
		return nil, err
	}
	var defs []*Definition
	for _, path := range files {
		got, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		defs = append(defs, got...)
	}
	return defs, nil
}

// loader turns the node documents of one file into definitions. Named
// definitions are registered first so references may point forward.
type loader struct {
	dir     string
	named   map[string]*Definition
	defs    map[*nodeDoc]*Definition
	targets []relationTarget
}

// relationTarget is checked for addressability once every definition of the
// file is configured.
type relationTarget struct {
	from, name string
	target     *Definition
}

func load(r io.Reader, dir string) ([]*Definition, error) {
	var doc treeFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: parsing tree: %w", ErrInvalidDefinition, err)
	}

	l := &loader{dir: dir, named: make(map[string]*Definition), defs: make(map[*nodeDoc]*Definition)}
	for i := range doc.Definitions {
		if err := l.declare(&doc.Definitions[i], ""); err != nil {
			return nil, err
		}
	}
	for i := range doc.Tree {
		if err := l.declare(&doc.Tree[i], ""); err != nil {
			return nil, err
		}
	}

	for i := range doc.Definitions {
		if err := l.configure(&doc.Definitions[i]); err != nil {
			return nil, err
		}
	}
	tree := make([]*Definition, 0, len(doc.Tree))
	for i := range doc.Tree {
		if err := l.configure(&doc.Tree[i]); err != nil {
			return nil, err
		}
		def, err := l.resolveNode(&doc.Tree[i])
		if err != nil {
			return nil, err
		}
		tree = append(tree, def)
	}

	for _, rt := range l.targets {
		if !rt.target.addressable() {
			return nil, &DefinitionError{Name: rt.from, Reason: fmt.Sprintf("relation %s: target %s is not addressable", rt.name, rt.target.qualified)}
		}
	}
	return tree, nil
}

// declare creates the definitions of nd and its inline children.
func (l *loader) declare(nd *nodeDoc, parent string) error {
	if nd.Ref != "" {
		if nd.Name != "" {
			return &DefinitionError{Name: nd.Name, Reason: "ref and name are exclusive"}
		}
		return nil
	}
	name := nd.Name
	if name == "" {
		if parent == "" || nd.Title == "" {
			return &DefinitionError{Name: parent + "/?", Reason: "node needs a name"}
		}
		name = parent + "." + nd.Title
	} else {
		if _, dup := l.named[name]; dup {
			return &DefinitionError{Name: name, Reason: "defined twice"}
		}
	}
	def := New(name)
	if nd.Name != "" {
		l.named[name] = def
	}
	l.defs[nd] = def
	for i := range nd.Children {
		if err := l.declare(&nd.Children[i], name); err != nil {
			return err
		}
	}
	return nil
}

func (l *loader) lookup(name string) (*Definition, error) {
	def, ok := l.named[name]
	if !ok {
		return nil, &DefinitionError{Name: name, Reason: "not defined in this file"}
	}
	return def, nil
}

func (l *loader) resolveNode(nd *nodeDoc) (*Definition, error) {
	if nd.Ref != "" {
		return l.lookup(nd.Ref)
	}
	return l.defs[nd], nil
}

// configure applies the fields of nd to its definition.
func (l *loader) configure(nd *nodeDoc) error {
	if nd.Ref != "" {
		return nil
	}
	def := l.defs[nd]

	def.ID(nd.ID).Seed(nd.Seed).Segment(nd.Segment)
	if nd.Singleton {
		def.Singleton()
	}
	if nd.Idempotent {
		def.Idempotent()
	}
	def.Title(nd.Title).NoteType(nd.Type).Mime(nd.Mime).Icon(nd.Icon)
	if nd.Content != nil {
		def.Content([]byte(*nd.Content))
	}
	if nd.ContentFile != "" {
		path := nd.ContentFile
		if !filepath.IsAbs(path) && l.dir != "" {
			path = filepath.Join(l.dir, path)
		}
		def.ContentFile(path)
	}
	if nd.Leaf {
		def.Leaf()
	}

	for _, ld := range nd.Labels {
		if ld.Name == "" {
			return &DefinitionError{Name: def.qualified, Reason: "label without a name"}
		}
		def.Label(ld.Name, ld.Value, attrFlags(ld.Inheritable, ld.Accumulate)...)
	}
	for _, rd := range nd.Relations {
		if err := l.relation(def, rd); err != nil {
			return err
		}
	}
	for i := range nd.Children {
		child := &nd.Children[i]
		if err := l.configure(child); err != nil {
			return err
		}
		cdef, err := l.resolveNode(child)
		if err != nil {
			return err
		}
		var opts []ChildOption
		if child.Prefix != "" {
			opts = append(opts, Prefix(child.Prefix))
		}
		if child.Expanded {
			opts = append(opts, Expanded())
		}
		def.Child(cdef, opts...)
	}

	for _, name := range nd.Use {
		m, err := l.lookup(name)
		if err != nil {
			return err
		}
		def.Use(m)
	}
	if nd.Extend != "" {
		base, err := l.lookup(nd.Extend)
		if err != nil {
			return err
		}
		def.Extend(base)
	}
	return nil
}

func (l *loader) relation(def *Definition, rd relationDoc) error {
	opts := attrFlags(rd.Inheritable, rd.Accumulate)
	switch {
	case rd.Name == "":
		return &DefinitionError{Name: def.qualified, Reason: "relation without a name"}
	case rd.TargetID != "" && rd.Target != "":
		return &DefinitionError{Name: def.qualified, Reason: fmt.Sprintf("relation %s: target and target_id are exclusive", rd.Name)}
	case rd.TargetID != "":
		def.RelationTo(rd.Name, rd.TargetID, opts...)
	case rd.Target != "":
		target, err := l.lookup(rd.Target)
		if err != nil {
			return err
		}
		l.targets = append(l.targets, relationTarget{from: def.qualified, name: rd.Name, target: target})
		def.Relation(rd.Name, target, opts...)
	default:
		return &DefinitionError{Name: def.qualified, Reason: fmt.Sprintf("relation %s has no target", rd.Name)}
	}
	return nil
}

func attrFlags(inheritable, accumulate bool) []AttrOption {
	var opts []AttrOption
	if inheritable {
		opts = append(opts, Inheritable())
	}
	if accumulate {
		opts = append(opts, Accumulate())
	}
	return opts
}
