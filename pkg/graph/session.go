package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mesh-intelligence/notegraph/pkg/types"
)

// Session is one unit of work against a Remote. Entities obtained from a
// session are unique per (kind, id) within it.
type Session struct {
	ctx     context.Context
	remote  types.Remote
	cache   *Cache
	logger  *slog.Logger
	drivers DriverFactory
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger used for flush diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDriverFactory replaces the drivers that talk to the remote.
func WithDriverFactory(f DriverFactory) Option {
	return func(s *Session) {
		if f != nil {
			s.drivers = f
		}
	}
}

// NewSession starts a unit of work. ctx is used for the lazy fetches that
// entity accessors trigger; Flush takes its own context.
func NewSession(ctx context.Context, remote types.Remote, opts ...Option) *Session {
	s := &Session{
		ctx:     ctx,
		remote:  remote,
		logger:  slog.Default(),
		drivers: remoteDrivers(remote),
	}
	s.cache = newCache(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cache returns the session's identity map and dirty set.
func (s *Session) Cache() *Cache { return s.cache }

// Logger returns the session logger.
func (s *Session) Logger() *slog.Logger { return s.logger }

// Remote returns the collaborator the session flushes to.
func (s *Session) Remote() types.Remote { return s.remote }

// DirtyCount returns the number of entities waiting to be flushed.
func (s *Session) DirtyCount() int { return len(s.cache.dirty) }

// Summary describes the pending work per kind.
func (s *Session) Summary() string { return s.cache.Summary() }

// Flush commits the given entities and their dirty dependencies, or the
// whole dirty set when none are given.
func (s *Session) Flush(ctx context.Context, subset ...Entity) error {
	return s.cache.Flush(ctx, subset...)
}

// Root returns the root note.
func (s *Session) Root() *Note { return s.noteRef(types.RootNoteID) }

// Note returns the note with id, fetching it if needed. A note the remote
// does not know is reported as types.ErrNotFound.
func (s *Session) Note(id string) (*Note, error) {
	if id == "" {
		return nil, fmt.Errorf("note: %w", types.ErrInvalidID)
	}
	n := s.noteRef(id)
	if err := n.model.ensureSetup(); err != nil {
		return nil, err
	}
	return n, nil
}

// DeclareNote returns the note with id without fetching it. On first
// access the note is fetched, and created at the next flush if absent.
func (s *Session) DeclareNote(id string) *Note {
	if e, ok := s.cache.Lookup(KindNote, id); ok {
		n := e.(*Note)
		if !n.model.setupDone {
			n.declared = true
		}
		return n
	}
	return newNote(s, id, true)
}

// NoteOption sets a field of a note built by NewNote.
type NoteOption func(*Note) error

// NoteTitle sets the title.
func NoteTitle(v string) NoteOption { return func(n *Note) error { return n.SetTitle(v) } }

// NoteType sets the note type.
func NoteType(v string) NoteOption { return func(n *Note) error { return n.SetType(v) } }

// NoteMime sets the mime type.
func NoteMime(v string) NoteOption { return func(n *Note) error { return n.SetMime(v) } }

// NoteContent sets the content.
func NoteContent(b []byte) NoteOption { return func(n *Note) error { return n.SetContent(b) } }

// NewNote builds a note in CREATE with defaults applied. It must be placed
// under a parent before it can be flushed.
func (s *Session) NewNote(opts ...NoteOption) (*Note, error) {
	n := newNote(s, "", false)
	mustCreate(n)
	for _, opt := range opts {
		if err := opt(n); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// NewLabel builds an unbound label in CREATE.
func (s *Session) NewLabel(name, value string) *Attribute {
	a := newAttribute(s, "", false, types.AttributeLabel, name)
	mustCreate(a)
	a.model.working[types.FieldValue] = value
	return a
}

// NewRelation builds an unbound relation to target in CREATE.
func (s *Session) NewRelation(name string, target *Note) *Attribute {
	a := newAttribute(s, "", false, types.AttributeRelation, name)
	mustCreate(a)
	a.target = target
	if target != nil {
		a.model.working[types.FieldValue] = target.id
	}
	return a
}

// DeclareAttribute returns the attribute with id without fetching it. If the
// remote has no such attribute it is created with typ and name.
func (s *Session) DeclareAttribute(id, typ, name string) *Attribute {
	if e, ok := s.cache.Lookup(KindAttribute, id); ok {
		a := e.(*Attribute)
		if !a.model.setupDone {
			a.declared = true
		}
		return a
	}
	return newAttribute(s, id, true, typ, name)
}

// Attribute returns the attribute with id, fetching it if needed.
func (s *Session) Attribute(id string) (*Attribute, error) {
	if id == "" {
		return nil, fmt.Errorf("attribute: %w", types.ErrInvalidID)
	}
	a, ok := s.lookupAttribute(id)
	if !ok {
		a = newAttribute(s, id, false, "", "")
	}
	if err := a.model.ensureSetup(); err != nil {
		return nil, err
	}
	return a, nil
}

// NewBranch places child under parent, appending it to the parent's
// children.
func (s *Session) NewBranch(parent, child *Note) (*Branch, error) {
	b := newBranch(s, "", false)
	mustCreate(b)
	b.child = child
	if err := parent.children.Append(b); err != nil {
		return nil, err
	}
	return b, nil
}

// DeclareBranch returns the branch between parent and child under its
// conventional id, creating it at the next flush if the remote has none.
// Both notes must have ids.
func (s *Session) DeclareBranch(parent, child *Note) (*Branch, error) {
	if parent.id == "" || child.id == "" {
		return nil, fmt.Errorf("declare branch %s -> %s: %w", parent, child, types.ErrInvalidID)
	}
	id := types.BranchID(parent.id, child.id)
	if e, ok := s.cache.Lookup(KindBranch, id); ok {
		return e.(*Branch), nil
	}
	b := newBranch(s, id, true)
	b.parent = parent
	b.child = child
	if err := b.model.ensureSetup(); err != nil {
		return nil, err
	}
	if b.state == types.StateCreate {
		if err := parent.children.Append(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Branch returns the branch with id, fetching it if needed.
func (s *Session) Branch(id string) (*Branch, error) {
	if id == "" {
		return nil, fmt.Errorf("branch: %w", types.ErrInvalidID)
	}
	var b *Branch
	if e, ok := s.cache.Lookup(KindBranch, id); ok {
		b = e.(*Branch)
	} else {
		b = newBranch(s, id, false)
	}
	if err := b.model.ensureSetup(); err != nil {
		return nil, err
	}
	return b, nil
}

// Search runs query on the remote and returns the matching notes, set up
// from the returned records.
func (s *Session) Search(ctx context.Context, query string, opts types.SearchOptions) ([]*Note, error) {
	recs, err := s.remote.Search(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", query, err)
	}
	notes := make([]*Note, 0, len(recs))
	for _, r := range recs {
		n := s.noteRef(r.NoteID)
		if err := n.model.Setup(r, false); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, nil
}

// Backup asks the remote for a named backup.
func (s *Session) Backup(ctx context.Context, name string) error {
	if err := s.remote.Backup(ctx, name); err != nil {
		return fmt.Errorf("backup %s: %w", name, err)
	}
	return nil
}

// noteRef returns the registered note with id or binds a new one without
// fetching.
func (s *Session) noteRef(id string) *Note {
	if e, ok := s.cache.Lookup(KindNote, id); ok {
		return e.(*Note)
	}
	return newNote(s, id, false)
}

func (s *Session) lookupAttribute(id string) (*Attribute, bool) {
	e, ok := s.cache.Lookup(KindAttribute, id)
	if !ok {
		return nil, false
	}
	return e.(*Attribute), true
}

func (s *Session) attributeFromRecord(r *types.Attribute) (*Attribute, error) {
	a, ok := s.lookupAttribute(r.AttributeID)
	if !ok {
		a = newAttribute(s, r.AttributeID, false, r.Type, r.Name)
	}
	if err := a.model.Setup(r, false); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Session) branchFromRecord(r *types.Branch) (*Branch, error) {
	var b *Branch
	if e, ok := s.cache.Lookup(KindBranch, r.BranchID); ok {
		b = e.(*Branch)
	} else {
		b = newBranch(s, r.BranchID, false)
	}
	if err := b.model.Setup(r, false); err != nil {
		return nil, err
	}
	return b, nil
}

// mustCreate moves a freshly built entity into CREATE. Loading empty
// extensions cannot fail.
func mustCreate(e Entity) {
	if err := e.Model().Setup(nil, true); err != nil {
		panic(fmt.Sprintf("%s: %v", e, err))
	}
}
