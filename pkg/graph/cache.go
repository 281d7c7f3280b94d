package graph

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mesh-intelligence/notegraph/pkg/types"
)

type cacheKey struct {
	kind Kind
	id   string
}

// Cache is the identity map and dirty set of one unit of work.
type Cache struct {
	session  *Session
	entities map[cacheKey]Entity
	dirty    map[Entity]struct{}
	seq      uint64
}

func newCache(s *Session) *Cache {
	return &Cache{
		session:  s,
		entities: make(map[cacheKey]Entity),
		dirty:    make(map[Entity]struct{}),
	}
}

func (c *Cache) nextSeq() uint64 {
	c.seq++
	return c.seq
}

// Lookup returns the registered entity of kind with id.
func (c *Cache) Lookup(kind Kind, id string) (Entity, bool) {
	e, ok := c.entities[cacheKey{kind, id}]
	return e, ok
}

// Len returns the number of registered entities.
func (c *Cache) Len() int { return len(c.entities) }

// IsDirty reports whether e is in the dirty set.
func (c *Cache) IsDirty(e Entity) bool {
	_, ok := c.dirty[e]
	return ok
}

// Dirty returns the dirty set in registration order.
func (c *Cache) Dirty() []Entity {
	out := make([]Entity, 0, len(c.dirty))
	for e := range c.dirty {
		out = append(out, e)
	}
	sortBySeq(out)
	return out
}

func (c *Cache) register(e Entity) {
	key := cacheKey{e.Kind(), e.ID()}
	if prev, ok := c.entities[key]; ok && prev != e {
		panic(fmt.Sprintf("%s: id already registered to another entity", e))
	}
	c.entities[key] = e
}

func (c *Cache) markDirty(e Entity) { c.dirty[e] = struct{}{} }
func (c *Cache) markClean(e Entity) { delete(c.dirty, e) }

// evict removes a deleted entity and its associated entities.
func (c *Cache) evict(e Entity) {
	for _, a := range e.core().hooks().associated() {
		c.drop(a)
	}
	c.drop(e)
}

func (c *Cache) drop(e Entity) {
	if e.ID() != "" {
		key := cacheKey{e.Kind(), e.ID()}
		if c.entities[key] == e {
			delete(c.entities, key)
		}
	}
	e.core().hooks().evicted()
}

// Summary describes the dirty set per kind as create/update/delete counts.
func (c *Cache) Summary() string {
	return summarize(c.Dirty())
}

func summarize(entities []Entity) string {
	counts := map[Kind]*[3]int{
		KindNote:      {},
		KindAttribute: {},
		KindBranch:    {},
	}
	for _, e := range entities {
		n := counts[e.Kind()]
		switch e.State() {
		case types.StateCreate:
			n[0]++
		case types.StateUpdate:
			n[1]++
		case types.StateDelete:
			n[2]++
		}
	}
	var parts []string
	for _, k := range []Kind{KindNote, KindAttribute, KindBranch} {
		n := counts[k]
		parts = append(parts, fmt.Sprintf("%d/%d/%d %s", n[0], n[1], n[2], k.plural()))
	}
	return "(create/update/delete) " + strings.Join(parts, ", ")
}

// Flush commits the dirty entities in subset, or the whole dirty set when
// subset is empty, together with every dirty entity they depend on.
//
// All targets are validated before any remote call; violations are
// returned together as a *ValidationError. Entities are then flushed one
// remote call at a time in dependency order. Flush is not atomic: on error,
// entities already flushed stay clean and the rest stay dirty.
func (c *Cache) Flush(ctx context.Context, subset ...Entity) error {
	logger := c.session.logger

	var targets []Entity
	if len(subset) == 0 {
		targets = c.Dirty()
	} else {
		seen := make(map[Entity]bool)
		for _, e := range subset {
			if c.IsDirty(e) && !seen[e] {
				seen[e] = true
				targets = append(targets, e)
			}
		}
	}
	if len(targets) == 0 {
		logger.Debug("No dirty entities to flush")
		return nil
	}

	violations := validate(targets)

	included := make(map[Entity]bool, len(targets))
	for _, e := range targets {
		included[e] = true
	}
	var added []Entity
	queue := append([]Entity(nil), targets...)
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]
		for _, dep := range e.core().hooks().dependencies() {
			if c.IsDirty(dep) && !included[dep] {
				included[dep] = true
				added = append(added, dep)
				queue = append(queue, dep)
			}
		}
	}
	violations = append(violations, validate(added)...)
	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}

	all := append(targets, added...)
	sortBySeq(all)
	logger.Debug("Flushing entities", "summary", summarize(all))

	s := newSorter()
	var creates, deletes []Entity
	for _, e := range all {
		var deps []Entity
		for _, dep := range e.core().hooks().dependencies() {
			if included[dep] {
				deps = append(deps, dep)
			}
		}
		s.add(e, deps...)
		if e.Kind() == KindBranch {
			switch e.State() {
			case types.StateCreate:
				creates = append(creates, e)
			case types.StateDelete:
				deletes = append(deletes, e)
			}
		}
	}
	for _, d := range deletes {
		s.add(d, creates...)
	}
	if err := s.prepare(); err != nil {
		return err
	}

	reorder := orderingParents(all)
	g := newFlushGraph(s)

	for s.active() {
		if err := ctx.Err(); err != nil {
			return err
		}
		ready := s.ready()
		if len(ready) == 0 {
			return fmt.Errorf("%w: flush stalled", ErrDependencyCycle)
		}
		for _, e := range ready {
			if c.IsDirty(e) {
				deleting := e.State() == types.StateDelete
				if err := c.flushEntity(ctx, e, g); err != nil {
					return fmt.Errorf("flushing %s: %w", e, err)
				}
				if deleting && !e.Model().Exists() {
					c.evict(e)
				}
			}
			s.done(e)
			if err := g.runFollowups(ctx); err != nil {
				return fmt.Errorf("completing %s: %w", e, err)
			}
		}
	}

	for _, n := range reorder {
		if !n.model.exists || n.state == types.StateDelete {
			continue
		}
		if err := c.session.remote.RefreshOrdering(ctx, n.id); err != nil {
			if errors.Is(err, types.ErrNotFound) {
				logger.Warn("note to refresh ordering was not found", "note", n.String())
				continue
			}
			return fmt.Errorf("refreshing ordering of %s: %w", n, err)
		}
	}
	return nil
}

// flushEntity skips abandoned and orphaned entities, marking them clean,
// and otherwise hands the entity to its model.
func (c *Cache) flushEntity(ctx context.Context, e Entity, g *FlushGraph) error {
	core := e.core()
	switch {
	case core.isAbandoned():
		c.session.logger.Debug("skipping abandoned entity", "entity", e.String())
		core.setClean()
		return nil
	case core.isOrphan():
		c.session.logger.Warn("orphaned entity not flushed since a dependency was abandoned", "entity", e.String())
		core.setClean()
		return nil
	}
	return core.model.Flush(ctx, g)
}

func validate(entities []Entity) []Violation {
	var out []Violation
	for _, e := range entities {
		for _, p := range e.core().hooks().flushCheck() {
			out = append(out, Violation{Entity: e, Problem: p})
		}
	}
	return out
}

// orderingParents returns the parents whose children get a new position in
// this flush.
func orderingParents(entities []Entity) []*Note {
	seen := make(map[*Note]bool)
	var out []*Note
	for _, e := range entities {
		b, ok := e.(*Branch)
		if !ok || b.parent == nil || b.state == types.StateDelete {
			continue
		}
		if !b.model.IsFieldChanged(types.FieldNotePosition) && b.state != types.StateCreate {
			continue
		}
		if b.parent.state == types.StateDelete || seen[b.parent] {
			continue
		}
		seen[b.parent] = true
		out = append(out, b.parent)
	}
	return out
}

func sortBySeq(entities []Entity) {
	slices.SortFunc(entities, func(a, b Entity) int {
		return cmp.Compare(a.core().seq, b.core().seq)
	})
}
