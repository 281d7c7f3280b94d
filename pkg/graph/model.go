package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/mesh-intelligence/notegraph/pkg/types"
)

// fieldSpec declares the persisted fields of one entity kind.
type fieldSpec struct {
	writable []string
	readOnly []string
	defaults types.Fields
}

func (s *fieldSpec) isWritable(name string) bool { return slices.Contains(s.writable, name) }

func (s *fieldSpec) isKnown(name string) bool {
	return s.isWritable(name) || slices.Contains(s.readOnly, name)
}

// extension is extra state owned by a model that takes part in change
// detection, such as note content or owned collections.
type extension interface {
	// load populates the extension from a fetched record, or to its empty
	// state when rec is nil.
	load(rec types.Record) error
	changed() bool
	// commit makes the current state the baseline after a flush.
	commit(rec types.Record)
}

// FieldModel holds the backing and working snapshots of an entity's
// persisted fields. Backing is the last state seen remotely; working holds
// local edits and is nil until the first write.
type FieldModel struct {
	owner      *entity
	spec       *fieldSpec
	driver     Driver
	backing    types.Fields
	working    types.Fields
	extensions []extension
	setupDone  bool
	exists     bool
}

func newFieldModel(owner *entity, spec *fieldSpec) *FieldModel {
	return &FieldModel{owner: owner, spec: spec}
}

// SetupDone reports whether the model has been populated.
func (m *FieldModel) SetupDone() bool { return m.setupDone }

// Exists reports whether the record is known to exist remotely. It is only
// meaningful once SetupDone is true.
func (m *FieldModel) Exists() bool { return m.exists }

// Setup populates the model. With a record, backing is taken from it. With
// create set, or when a declared entity has no record, the record is marked
// absent, working is initialised from the defaults and the entity enters
// CREATE. A missing record for an entity that was bound to an existing id is
// reported as types.ErrNotFound.
func (m *FieldModel) Setup(rec types.Record, create bool) error {
	if m.setupDone {
		return nil
	}
	if create || rec == nil {
		if !create && !m.owner.declared {
			return &types.NotFoundError{Table: string(m.owner.self.Kind()), ID: m.owner.id}
		}
		m.exists = false
		m.backing = nil
		m.working = m.spec.defaults.Clone()
		m.owner.setDirty(types.StateCreate)
		m.setupDone = true
		for _, ext := range m.extensions {
			if err := ext.load(nil); err != nil {
				return err
			}
		}
		return nil
	}

	m.exists = true
	m.backing = rec.Fields()
	m.working = nil
	m.setupDone = true
	m.owner.hooks().setupRecord(rec)
	for _, ext := range m.extensions {
		if err := ext.load(rec); err != nil {
			return err
		}
	}
	return nil
}

// ensureSetup fetches the record through the driver on first access.
func (m *FieldModel) ensureSetup() error {
	if m.setupDone {
		return nil
	}
	rec, err := m.driver.Fetch(m.owner.session.ctx)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", m.owner.self, err)
	}
	return m.Setup(rec, false)
}

// refresh adopts the result of a successful create or update. A nil record
// folds working into backing.
func (m *FieldModel) refresh(rec types.Record) {
	if rec != nil {
		m.backing = rec.Fields()
	} else {
		merged := m.backing.Clone()
		if merged == nil {
			merged = make(types.Fields)
		}
		for k, v := range m.working {
			merged[k] = v
		}
		m.backing = merged
	}
	m.working = nil
	m.exists = true
	m.setupDone = true
	for _, ext := range m.extensions {
		ext.commit(rec)
	}
}

// Get returns the working value of name if set, else its backing value.
func (m *FieldModel) Get(name string) (any, error) {
	if !m.spec.isKnown(name) {
		return nil, fmt.Errorf("%s: %s: %w", m.owner.self, name, ErrUnknownField)
	}
	if err := m.ensureSetup(); err != nil {
		return nil, err
	}
	if v, ok := m.working[name]; ok {
		return v, nil
	}
	if v, ok := m.backing[name]; ok {
		return v, nil
	}
	return nil, &UnsetFieldError{Entity: m.owner.self.String(), Field: name}
}

// Set writes a working value and re-evaluates the owner's state.
func (m *FieldModel) Set(name string, value any) error {
	if !m.spec.isWritable(name) {
		return &ReadOnlyFieldError{Entity: m.owner.self.String(), Field: name}
	}
	if err := m.ensureSetup(); err != nil {
		return err
	}
	if m.owner.state == types.StateDelete {
		return &InvalidStateError{Entity: m.owner.self.String(), State: m.owner.state, Op: "set " + name}
	}
	if m.working == nil {
		m.working = make(types.Fields, len(m.spec.writable))
		for _, f := range m.spec.writable {
			if v, ok := m.backing[f]; ok {
				m.working[f] = v
			}
		}
	}
	m.working[name] = value
	m.owner.checkState()
	return nil
}

// IsFieldChanged reports whether name differs between working and backing.
func (m *FieldModel) IsFieldChanged(name string) bool {
	if m.working == nil {
		return false
	}
	w, ok := m.working[name]
	if !ok {
		return false
	}
	b, ok := m.backing[name]
	return !ok || b != w
}

// ChangedFields returns the writable fields whose working value differs from
// backing.
func (m *FieldModel) ChangedFields() types.Fields {
	changed := make(types.Fields)
	for _, f := range m.spec.writable {
		if m.IsFieldChanged(f) {
			changed[f] = m.working[f]
		}
	}
	return changed
}

// IsChanged reports whether a flush has work to do. An entity in CREATE is
// always changed.
func (m *FieldModel) IsChanged() bool {
	if m.owner.state == types.StateCreate {
		return true
	}
	if len(m.ChangedFields()) > 0 {
		return true
	}
	for _, ext := range m.extensions {
		if ext.changed() {
			return true
		}
	}
	return false
}

// Flush issues the driver call selected by the owner's state and moves the
// owner to CLEAN. A not-found response to an update or delete means another
// actor already removed the record; it is logged and treated as done.
func (m *FieldModel) Flush(ctx context.Context, g *FlushGraph) error {
	e := m.owner
	state := e.state
	if state != types.StateCreate && state != types.StateDelete && !m.IsChanged() {
		e.setClean()
		return nil
	}

	if err := e.hooks().flushPrep(); err != nil {
		return err
	}
	logger := e.session.logger

	switch state {
	case types.StateCreate:
		logger.Debug("creating entity", "entity", e.self.String())
		rec, followup, err := m.driver.FlushCreate(ctx, g)
		if err != nil {
			return err
		}
		if e.id == "" && rec != nil {
			e.setID(rec.RecordID())
		}
		e.setClean()
		m.refresh(rec)
		if followup != nil {
			g.addFollowup(followup)
		}

	case types.StateUpdate:
		logger.Debug("updating entity", "entity", e.self.String())
		rec, err := m.driver.FlushUpdate(ctx, g)
		if err != nil {
			if !errors.Is(err, types.ErrNotFound) {
				return err
			}
			logger.Warn("entity to update was not found, assuming it was removed", "entity", e.self.String(), "error", err)
			e.setClean()
			return nil
		}
		e.setClean()
		m.refresh(rec)

	case types.StateDelete:
		logger.Debug("deleting entity", "entity", e.self.String())
		if err := m.driver.FlushDelete(ctx, g); err != nil {
			if !errors.Is(err, types.ErrNotFound) {
				return err
			}
			logger.Warn("entity to delete was not found, assuming it was removed", "entity", e.self.String(), "error", err)
		}
		m.exists = false
		e.setClean()
	}
	return nil
}

// GetString returns the named field as a string.
func (m *FieldModel) GetString(name string) (string, error) { return fieldAs[string](m, name) }

// GetInt returns the named field as an int.
func (m *FieldModel) GetInt(name string) (int, error) { return fieldAs[int](m, name) }

// GetBool returns the named field as a bool.
func (m *FieldModel) GetBool(name string) (bool, error) { return fieldAs[bool](m, name) }

func fieldAs[T any](m *FieldModel, name string) (T, error) {
	var zero T
	v, err := m.Get(name)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%s: %s has type %T, want %T", m.owner.self, name, v, zero)
	}
	return t, nil
}

// mustString is used by drivers on fields that setup guarantees.
func (m *FieldModel) mustString(name string) string {
	v, _ := m.GetString(name)
	return v
}

func (m *FieldModel) mustInt(name string) int {
	v, _ := m.GetInt(name)
	return v
}

func (m *FieldModel) mustBool(name string) bool {
	v, _ := m.GetBool(name)
	return v
}
