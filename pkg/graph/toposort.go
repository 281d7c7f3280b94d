package graph

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// sorter is a Kahn topological sort that releases nodes in rounds. A node
// becomes ready once every node it depends on has been marked done; done may
// also be called early, for nodes completed as a side effect of another.
type sorter struct {
	nodes map[Entity]*sortNode
}

type sortNode struct {
	entity     Entity
	waiting    int
	dependents []*sortNode
	deps       map[Entity]bool
	returned   bool
	done       bool
}

func newSorter() *sorter {
	return &sorter{nodes: make(map[Entity]*sortNode)}
}

func (s *sorter) node(e Entity) *sortNode {
	n, ok := s.nodes[e]
	if !ok {
		n = &sortNode{entity: e, deps: make(map[Entity]bool)}
		s.nodes[e] = n
	}
	return n
}

// add registers e with edges to each of deps. Duplicate edges are ignored.
func (s *sorter) add(e Entity, deps ...Entity) {
	n := s.node(e)
	for _, d := range deps {
		if d == e || n.deps[d] {
			continue
		}
		n.deps[d] = true
		dn := s.node(d)
		dn.dependents = append(dn.dependents, n)
		n.waiting++
	}
}

// prepare rejects graphs with a cycle.
func (s *sorter) prepare() error {
	waiting := make(map[*sortNode]int, len(s.nodes))
	var queue []*sortNode
	for _, n := range s.nodes {
		waiting[n] = n.waiting
		if n.waiting == 0 {
			queue = append(queue, n)
		}
	}
	visited := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		visited++
		for _, d := range n.dependents {
			waiting[d]--
			if waiting[d] == 0 {
				queue = append(queue, d)
			}
		}
	}
	if visited == len(s.nodes) {
		return nil
	}

	var stuck []string
	for n, w := range waiting {
		if w > 0 {
			stuck = append(stuck, n.entity.String())
		}
	}
	slices.Sort(stuck)
	return fmt.Errorf("%w: %s", ErrDependencyCycle, strings.Join(stuck, ", "))
}

// ready returns the nodes released since the last call, oldest entity
// first.
func (s *sorter) ready() []Entity {
	var out []*sortNode
	for _, n := range s.nodes {
		if !n.returned && !n.done && n.waiting == 0 {
			n.returned = true
			out = append(out, n)
		}
	}
	slices.SortFunc(out, func(a, b *sortNode) int {
		return cmp.Compare(a.entity.core().seq, b.entity.core().seq)
	})
	entities := make([]Entity, len(out))
	for i, n := range out {
		entities[i] = n.entity
	}
	return entities
}

// done marks e complete and releases its dependents. Unknown or already
// completed entities are ignored.
func (s *sorter) done(e Entity) {
	n, ok := s.nodes[e]
	if !ok || n.done {
		return
	}
	n.done = true
	for _, d := range n.dependents {
		d.waiting--
	}
}

// active reports whether any node is not yet done.
func (s *sorter) active() bool {
	for _, n := range s.nodes {
		if !n.done {
			return true
		}
	}
	return false
}

func (s *sorter) contains(e Entity) bool {
	_, ok := s.nodes[e]
	return ok
}
