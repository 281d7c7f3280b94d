package workspace

import (
	"fmt"
	"io"
	"strings"

	"github.com/mesh-intelligence/notegraph/pkg/graph"
)

// NoteView is the printable form of a note.
type NoteView struct {
	ID         string          `json:"note_id"`
	Title      string          `json:"title"`
	Type       string          `json:"type"`
	Mime       string          `json:"mime"`
	Labels     []AttributeView `json:"labels,omitempty"`
	Relations  []AttributeView `json:"relations,omitempty"`
	ChildCount int             `json:"child_count"`
	Children   []*NoteView     `json:"children,omitempty"`
}

// AttributeView is the printable form of a label or relation. For relations
// the value is the target note id.
type AttributeView struct {
	Name        string `json:"name"`
	Value       string `json:"value"`
	Inheritable bool   `json:"inheritable,omitempty"`
}

// viewNote builds the view of n and depth levels of its children.
func viewNote(n *graph.Note, depth int) (*NoteView, error) {
	v := &NoteView{ID: n.ID()}
	var err error
	if v.Title, err = n.Title(); err != nil {
		return nil, err
	}
	if v.Type, err = n.Type(); err != nil {
		return nil, err
	}
	if v.Mime, err = n.Mime(); err != nil {
		return nil, err
	}

	attrs, err := n.Attributes().All()
	if err != nil {
		return nil, err
	}
	for _, a := range attrs {
		av := AttributeView{Name: a.Name()}
		if av.Value, err = a.Value(); err != nil {
			return nil, err
		}
		if av.Inheritable, err = a.Inheritable(); err != nil {
			return nil, err
		}
		if a.IsRelation() {
			v.Relations = append(v.Relations, av)
		} else {
			v.Labels = append(v.Labels, av)
		}
	}

	children, err := n.Children().Notes()
	if err != nil {
		return nil, err
	}
	v.ChildCount = len(children)
	if depth <= 0 {
		return v, nil
	}
	for _, c := range children {
		cv, err := viewNote(c, depth-1)
		if err != nil {
			return nil, err
		}
		v.Children = append(v.Children, cv)
	}
	return v, nil
}

// WriteTree prints v and its loaded children as an indented outline.
func WriteTree(w io.Writer, v *NoteView) error {
	return writeTree(w, v, 0)
}

func writeTree(w io.Writer, v *NoteView, level int) error {
	indent := strings.Repeat("  ", level)
	line := fmt.Sprintf("%s%s [%s]", indent, v.Title, v.ID)
	if attrs := v.attrSummary(); attrs != "" {
		line += " " + attrs
	}
	if len(v.Children) == 0 && v.ChildCount > 0 {
		line += fmt.Sprintf(" (+%d)", v.ChildCount)
	}
	if _, err := fmt.Fprintln(w, line); err != nil {
		return err
	}
	for _, c := range v.Children {
		if err := writeTree(w, c, level+1); err != nil {
			return err
		}
	}
	return nil
}

// attrSummary renders labels as #name=value and relations as ~name=target.
func (v *NoteView) attrSummary() string {
	var parts []string
	for _, l := range v.Labels {
		if l.Value == "" {
			parts = append(parts, "#"+l.Name)
			continue
		}
		parts = append(parts, "#"+l.Name+"="+l.Value)
	}
	for _, r := range v.Relations {
		parts = append(parts, "~"+r.Name+"="+r.Value)
	}
	return strings.Join(parts, " ")
}
