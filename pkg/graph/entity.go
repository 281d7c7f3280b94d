package graph

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/notegraph/pkg/types"
)

// Kind identifies the concrete type of an entity.
type Kind string

// Entity kinds.
const (
	KindNote      Kind = "note"
	KindAttribute Kind = "attribute"
	KindBranch    Kind = "branch"
)

func (k Kind) plural() string {
	if k == KindBranch {
		return "branches"
	}
	return string(k) + "s"
}

// Entity is a remotely addressable record with local change tracking.
// Note, Attribute and Branch are the only implementations.
type Entity interface {
	// ID returns the remote identifier, or "" if the entity has not been
	// created yet and has no declared id.
	ID() string
	Kind() Kind
	State() types.State
	Model() *FieldModel
	// Delete marks the entity for deletion at the next flush.
	Delete() error
	// Flush commits this entity and its dirty dependencies.
	Flush(ctx context.Context) error
	String() string

	core() *entity
}

// hooks are the per-kind behaviours the cache and model call into.
type hooks interface {
	// dependencies returns the entities that must be flushed first.
	dependencies() []Entity
	// flushCheck returns structural problems that block a flush.
	flushCheck() []string
	// setupRecord populates write-once references from a fetched record.
	setupRecord(rec types.Record)
	// flushPrep runs right before the driver call. An error aborts the
	// flush of this entity.
	flushPrep() error
	// associated returns entities removed from the registry with this one
	// after a successful delete.
	associated() []Entity
	// evicted runs after a successful delete removed the entity.
	evicted()
}

// entity is the state shared by every Entity implementation.
type entity struct {
	id       string
	state    types.State
	seq      uint64
	declared bool
	session  *Session
	model    *FieldModel
	self     Entity
}

func (e *entity) ID() string { return e.id }
func (e *entity) State() types.State { return e.state }
func (e *entity) Model() *FieldModel { return e.model }
func (e *entity) core() *entity { return e }
func (e *entity) hooks() hooks { return e.self.(hooks) }
func (e *entity) cache() *Cache { return e.session.cache }
func (e *entity) IsDirty() bool { return e.cache().IsDirty(e.self) }
func (e *entity) Session() *Session { return e.session }
func (e *entity) Flush(ctx context.Context) error {
	return e.cache().Flush(ctx, e.self)
}

func (e *entity) String() string {
	id := e.id
	if id == "" {
		id = "<new>"
	}
	return fmt.Sprintf("%s(%s, %s)", e.self.Kind(), id, e.state)
}

// init wires the entity into the session. A non-empty id registers it in
// the identity map immediately.
func (e *entity) init(s *Session, self Entity, id string, spec *fieldSpec) {
	e.session = s
	e.self = self
	e.seq = s.cache.nextSeq()
	e.model = newFieldModel(e, spec)
	e.model.driver = s.drivers(self)
	if id != "" {
		e.setID(id)
	}
}

// setID assigns the write-once id and registers the entity.
func (e *entity) setID(id string) {
	if e.id != "" {
		if e.id != id {
			panic(fmt.Sprintf("%s: id is write-once, cannot change to %s", e.self, id))
		}
		return
	}
	e.id = id
	e.cache().register(e.self)
}

// setDirty moves the entity to a pending state and into the dirty set.
func (e *entity) setDirty(state types.State) {
	if state == types.StateClean {
		panic("setDirty called with clean state")
	}
	switch e.state {
	case types.StateDelete:
		if state != types.StateDelete {
			panic(fmt.Sprintf("%s: transition from delete to %s", e.self, state))
		}
	case types.StateCreate:
		if state == types.StateUpdate {
			panic(fmt.Sprintf("%s: transition from create to update", e.self))
		}
	case types.StateUpdate:
		if state == types.StateCreate {
			panic(fmt.Sprintf("%s: transition from update to create", e.self))
		}
	case types.StateClean:
		if state == types.StateCreate && e.model.setupDone {
			panic(fmt.Sprintf("%s: create re-entered from clean", e.self))
		}
	}
	e.state = state
	e.cache().markDirty(e.self)
	e.checkInvariant()
}

// setClean moves the entity out of the dirty set.
func (e *entity) setClean() {
	e.state = types.StateClean
	e.cache().markClean(e.self)
	e.checkInvariant()
}

// checkState re-derives the state from the model after a change.
func (e *entity) checkState() {
	switch e.state {
	case types.StateClean:
		if e.model.IsChanged() {
			e.setDirty(types.StateUpdate)
		}
	case types.StateUpdate:
		if !e.model.IsChanged() {
			e.setClean()
		}
	}
	e.checkInvariant()
}

func (e *entity) checkInvariant() {
	dirty := e.cache().IsDirty(e.self)
	if dirty != (e.state != types.StateClean) {
		panic(fmt.Sprintf("%s: dirty set membership %t disagrees with state", e.self, dirty))
	}
}

// markDeleted moves the entity to DELETE without touching any collection.
func (e *entity) markDeleted() error {
	if e.state == types.StateDelete {
		return nil
	}
	if err := e.model.ensureSetup(); err != nil {
		return err
	}
	e.setDirty(types.StateDelete)
	return nil
}

// isAbandoned reports whether the entity is known not to exist remotely and
// has nothing left to create.
func (e *entity) isAbandoned() bool {
	return e.model.setupDone && !e.model.exists &&
		(e.state == types.StateClean || e.state == types.StateDelete)
}

// isOrphan reports whether a dependency was abandoned or is being deleted.
func (e *entity) isOrphan() bool {
	for _, dep := range e.hooks().dependencies() {
		c := dep.core()
		if c.isAbandoned() || c.state == types.StateDelete {
			return true
		}
	}
	return false
}
