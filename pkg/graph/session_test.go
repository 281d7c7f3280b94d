// Tests for the unit of work: identity, state tracking and flush ordering.
package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/mesh-intelligence/notegraph/pkg/ident"
	"github.com/mesh-intelligence/notegraph/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_IdentityMap(t *testing.T) {
	s, r, _ := newTestSession(t)
	r.seedNote("n1", types.RootNoteID, "one", 10)

	a, err := s.Note("n1")
	require.NoError(t, err)
	b, err := s.Note("n1")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, []string{"get notes n1"}, r.calls, "second lookup must not fetch")

	assert.Same(t, s.Root(), s.Root())

	_, err = s.Note("missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestSession_DeclaredIdentityIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r := newFakeRemote()

	apply := func() *Session {
		s := NewSession(ctx, r)
		id, ok := ident.NewDeriver("tests").Derive(ident.KindNote, "child")
		require.True(t, ok)
		n := s.DeclareNote(id)
		require.NoError(t, n.SetTitle("child"))
		_, err := s.DeclareBranch(s.Root(), n)
		require.NoError(t, err)
		require.NoError(t, s.Flush(ctx))
		return s
	}

	apply()
	require.Len(t, r.notes, 2)
	r.resetCalls()

	s := apply()
	assert.Empty(t, r.mutations(), "second apply must not write")
	assert.Len(t, r.notes, 2)
	assert.Equal(t, 0, s.DirtyCount())
}

func TestFieldModel_ReversionClosesDirtySet(t *testing.T) {
	s, r, _ := newTestSession(t)
	r.seedNote("n1", types.RootNoteID, "one", 10)

	n, err := s.Note("n1")
	require.NoError(t, err)

	require.NoError(t, n.SetTitle("changed"))
	assert.Equal(t, types.StateUpdate, n.State())
	assert.Equal(t, 1, s.DirtyCount())
	assert.Equal(t, types.Fields{types.FieldTitle: "changed"}, n.Model().ChangedFields())

	require.NoError(t, n.SetTitle("one"))
	assert.Equal(t, types.StateClean, n.State())
	assert.Equal(t, 0, s.DirtyCount())
	assert.False(t, n.Model().IsChanged())
}

func TestFieldModel_Errors(t *testing.T) {
	tests := []struct {
		name string
		run  func(s *Session) error
		want error
	}{
		{
			name: "read-only field",
			run: func(s *Session) error {
				n, err := s.Note("n1")
				if err != nil {
					return err
				}
				return n.Model().Set(types.FieldNoteID, "other")
			},
			want: ErrReadOnlyField,
		},
		{
			name: "unknown field",
			run: func(s *Session) error {
				_, err := s.Root().Model().Get("color")
				return err
			},
			want: ErrUnknownField,
		},
		{
			name: "write after delete",
			run: func(s *Session) error {
				n, err := s.Note("n1")
				if err != nil {
					return err
				}
				if err := n.Delete(); err != nil {
					return err
				}
				return n.SetTitle("late")
			},
			want: ErrInvalidState,
		},
		{
			name: "unset field on new note",
			run: func(s *Session) error {
				n, err := s.NewNote()
				if err != nil {
					return err
				}
				_, err = n.BlobID()
				return err
			},
			want: ErrUnsetField,
		},
		{
			name: "value of a relation",
			run: func(s *Session) error {
				return s.NewRelation("link", s.Root()).SetValue("x")
			},
			want: ErrWrongKind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, r, _ := newTestSession(t)
			r.seedNote("n1", types.RootNoteID, "one", 10)
			assert.ErrorIs(t, tt.run(s), tt.want)
		})
	}
}

func TestEntity_IllegalTransitionsPanic(t *testing.T) {
	s, r, _ := newTestSession(t)
	r.seedNote("n1", types.RootNoteID, "one", 10)
	n, err := s.Note("n1")
	require.NoError(t, err)

	assert.Panics(t, func() { n.setDirty(types.StateCreate) }, "create is not re-entered from clean")

	fresh, err := s.NewNote()
	require.NoError(t, err)
	assert.Panics(t, func() { fresh.setDirty(types.StateUpdate) })

	require.NoError(t, n.Delete())
	assert.Panics(t, func() { n.setDirty(types.StateUpdate) })
}

func TestNewNote_Defaults(t *testing.T) {
	s, _, _ := newTestSession(t)
	n, err := s.NewNote()
	require.NoError(t, err)

	assert.Equal(t, types.StateCreate, n.State())
	title, err := n.Title()
	require.NoError(t, err)
	assert.Equal(t, DefaultNoteTitle, title)
	mime, err := n.Mime()
	require.NoError(t, err)
	assert.Equal(t, DefaultNoteMime, mime)

	require.NoError(t, n.SetTitle("edited"))
	assert.Equal(t, types.StateCreate, n.State(), "edits stay in create")
}

func TestFlush_DependencyOrder(t *testing.T) {
	ctx := context.Background()
	s, r, _ := newTestSession(t)
	root := s.Root()

	a, err := s.NewNote(NoteTitle("a"))
	require.NoError(t, err)
	ba, err := root.AddChild(a)
	require.NoError(t, err)
	c, err := s.NewNote(NoteTitle("c"))
	require.NoError(t, err)
	_, err = a.AddChild(c)
	require.NoError(t, err)
	l := s.NewLabel("tag", "v")
	require.NoError(t, c.Attributes().Append(l))
	assert.Equal(t, "(create/update/delete) 2/1/0 notes, 1/0/0 attributes, 2/0/0 branches", s.Summary())

	r.resetCalls()
	require.NoError(t, s.Flush(ctx))

	assert.Equal(t, []string{
		"create notes ",
		"create notes ",
		"create attributes ",
		"refresh notes root",
		"refresh notes gen1",
	}, r.mutations())
	assert.Equal(t, 0, s.DirtyCount())
	assert.Equal(t, "gen1", a.ID())
	assert.Equal(t, "root_gen1", ba.ID())
	assert.Equal(t, types.StateClean, ba.State())
	assert.Equal(t, "gen2", c.ID())
	assert.Equal(t, "gen3", l.ID())
	assert.Equal(t, "c", r.notes["gen2"].Title)
	assert.Equal(t, "gen2", r.attrs["gen3"].NoteID)
}

func TestFlush_CreateThenDeleteIsElided(t *testing.T) {
	s, r, _ := newTestSession(t)

	n, err := s.NewNote()
	require.NoError(t, err)
	_, err = s.Root().AddChild(n)
	require.NoError(t, err)
	l := s.NewLabel("tag", "")
	require.NoError(t, n.Attributes().Append(l))
	require.NoError(t, n.Delete())

	r.resetCalls()
	require.NoError(t, s.Flush(context.Background()))
	assert.Empty(t, r.calls)
	assert.Equal(t, 0, s.DirtyCount())
	assert.Equal(t, types.StateClean, s.Root().State())
}

func TestFlush_AggregatesValidationErrors(t *testing.T) {
	s, r, _ := newTestSession(t)

	_, err := s.NewNote(NoteTitle("parentless"))
	require.NoError(t, err)
	s.NewLabel("loose", "x")
	require.NoError(t, s.Root().Attributes().Append(s.NewRelation("broken", nil)))

	r.resetCalls()
	err = s.Flush(context.Background())

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Len(t, verr.Violations, 3)
	assert.Empty(t, r.calls, "no remote call before validation passes")
	assert.Equal(t, 4, s.DirtyCount())
}

func TestFlush_OrphanIsSkippedWithWarning(t *testing.T) {
	ctx := context.Background()
	s, r, logs := newTestSession(t)
	r.seedNote("n1", types.RootNoteID, "one", 10)
	r.seedLabel("l1", "n1", "tag", "x", 10)

	n, err := s.Note("n1")
	require.NoError(t, err)
	label, err := n.Label("tag")
	require.NoError(t, err)
	require.NotNil(t, label)

	require.NoError(t, n.Delete())
	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, []string{"delete notes n1"}, r.mutations())

	require.NoError(t, label.SetValue("y"))
	assert.Equal(t, types.StateUpdate, label.State())

	r.resetCalls()
	require.NoError(t, s.Flush(ctx))
	assert.Empty(t, r.calls)
	assert.Equal(t, types.StateClean, label.State())
	assert.Contains(t, logs.String(), "orphaned entity")
}

func TestFlush_RenumbersAfterInsert(t *testing.T) {
	s, r, _ := newTestSession(t)
	r.seedNote("n1", types.RootNoteID, "one", 10)
	r.seedLabel("la", "n1", "a", "", 10)
	r.seedLabel("lb", "n1", "b", "", 20)
	r.seedLabel("lc", "n1", "c", "", 30)

	n, err := s.Note("n1")
	require.NoError(t, err)
	added := s.NewLabel("new", "")
	require.NoError(t, n.Attributes().Insert(1, added))

	attrs, err := n.Attributes().All()
	require.NoError(t, err)
	var positions []int
	for _, a := range attrs {
		p, err := a.Position()
		require.NoError(t, err)
		positions = append(positions, p)
	}
	assert.Equal(t, []int{10, 20, 30, 40}, positions)
	assert.Equal(t, types.StateClean, attrs[0].State())
	assert.Equal(t, types.StateUpdate, attrs[2].State())

	r.resetCalls()
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, []string{
		"create attributes ",
		"update attributes lb",
		"update attributes lc",
	}, r.mutations())
	assert.Equal(t, 30, r.attrs["lb"].Position)
	assert.Equal(t, 40, r.attrs["lc"].Position)
}

func TestFlush_AppendPositions(t *testing.T) {
	s, _, _ := newTestSession(t)
	n, err := s.NewNote()
	require.NoError(t, err)
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, n.Attributes().Append(s.NewLabel(name, "")))
	}
	attrs, err := n.Attributes().All()
	require.NoError(t, err)
	for i, a := range attrs {
		p, err := a.Position()
		require.NoError(t, err)
		assert.Equal(t, i*10, p)
	}
}

func TestFlush_MoveCreatesBeforeDeleting(t *testing.T) {
	s, r, _ := newTestSession(t)
	r.seedNote("p1", types.RootNoteID, "p1", 10)
	r.seedNote("p2", types.RootNoteID, "p2", 20)
	r.seedNote("n", "p1", "n", 10)

	n, err := s.Note("n")
	require.NoError(t, err)
	p2, err := s.Note("p2")
	require.NoError(t, err)

	parents, err := n.Parents().All()
	require.NoError(t, err)
	require.Len(t, parents, 1)
	old := parents[0]

	_, err = p2.AddChild(n)
	require.NoError(t, err)
	require.NoError(t, old.Delete())

	r.resetCalls()
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, []string{
		"create branches ",
		"delete branches p1_n",
		"refresh notes p2",
	}, r.mutations())

	parents, err = n.Parents().All()
	require.NoError(t, err)
	require.Len(t, parents, 1)
	assert.Equal(t, "p2_n", parents[0].ID())
}

func TestFlush_NotFoundOnUpdateIsTolerated(t *testing.T) {
	s, r, logs := newTestSession(t)
	r.seedNote("n1", types.RootNoteID, "one", 10)

	n, err := s.Note("n1")
	require.NoError(t, err)
	require.NoError(t, n.SetTitle("changed"))
	delete(r.notes, "n1")

	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, types.StateClean, n.State())
	assert.Contains(t, logs.String(), "was not found")
}

func TestFlush_TransportErrorLeavesRestDirty(t *testing.T) {
	ctx := context.Background()
	s, r, _ := newTestSession(t)
	r.seedNote("n1", types.RootNoteID, "one", 10)
	r.seedNote("n2", types.RootNoteID, "two", 20)
	r.failures["update notes n2"] = errors.New("connection reset")

	n1, err := s.Note("n1")
	require.NoError(t, err)
	n2, err := s.Note("n2")
	require.NoError(t, err)
	require.NoError(t, n1.SetTitle("uno"))
	require.NoError(t, n2.SetTitle("dos"))

	err = s.Flush(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, types.StateClean, n1.State())
	assert.Equal(t, types.StateUpdate, n2.State())
	assert.Equal(t, 1, s.DirtyCount())

	delete(r.failures, "update notes n2")
	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, "dos", r.notes["n2"].Title)
}

func TestFlush_CycleIsRejected(t *testing.T) {
	s, r, _ := newTestSession(t)
	a, err := s.NewNote()
	require.NoError(t, err)
	b, err := s.NewNote()
	require.NoError(t, err)
	_, err = a.AddChild(b)
	require.NoError(t, err)
	_, err = b.AddChild(a)
	require.NoError(t, err)

	r.resetCalls()
	err = s.Flush(context.Background())
	assert.ErrorIs(t, err, ErrDependencyCycle)
	assert.Empty(t, r.calls)
}

func TestFlush_SubsetPullsInDependencies(t *testing.T) {
	s, r, _ := newTestSession(t)
	r.seedNote("other", types.RootNoteID, "other", 20)

	n, err := s.NewNote(NoteTitle("sub"))
	require.NoError(t, err)
	_, err = s.Root().AddChild(n)
	require.NoError(t, err)
	l := s.NewLabel("tag", "v")
	require.NoError(t, n.Attributes().Append(l))

	other, err := s.Note("other")
	require.NoError(t, err)
	require.NoError(t, other.SetTitle("untouched"))

	require.NoError(t, l.Flush(context.Background()))
	assert.Equal(t, types.StateClean, n.State())
	assert.Equal(t, types.StateClean, l.State())
	assert.Equal(t, types.StateUpdate, other.State())
	assert.Equal(t, "other", r.notes["other"].Title)
}

func TestContent_DigestDrivesState(t *testing.T) {
	s, r, _ := newTestSession(t)
	r.seedNote("n1", types.RootNoteID, "one", 10)
	r.content["n1"] = []byte("<p>a</p>")
	r.notes["n1"].BlobID = ident.BlobID([]byte("<p>a</p>"))

	n, err := s.Note("n1")
	require.NoError(t, err)
	got, err := n.Content()
	require.NoError(t, err)
	assert.Equal(t, "<p>a</p>", string(got))

	require.NoError(t, n.SetContent([]byte("<p>a</p>")))
	assert.Equal(t, types.StateClean, n.State(), "same bytes, same digest")

	require.NoError(t, n.SetContent([]byte("<p>b</p>")))
	assert.Equal(t, types.StateUpdate, n.State())

	r.resetCalls()
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, []string{"set content n1"}, r.mutations())
	assert.Equal(t, ident.BlobID([]byte("<p>b</p>")), r.notes["n1"].BlobID)
	blob, err := n.BlobID()
	require.NoError(t, err)
	assert.Equal(t, r.notes["n1"].BlobID, blob)
}

func TestRelation_RetargetIsRecreated(t *testing.T) {
	s, r, _ := newTestSession(t)
	r.seedNote("t1", types.RootNoteID, "t1", 10)
	r.seedNote("t2", types.RootNoteID, "t2", 20)
	r.seedNote("n1", types.RootNoteID, "n1", 30)
	r.attrs["r1"] = &types.Attribute{
		AttributeID: "r1", NoteID: "n1", Type: types.AttributeRelation, Name: "link", Value: "t1", Position: 10,
	}

	n, err := s.Note("n1")
	require.NoError(t, err)
	rel, err := n.Relation("link")
	require.NoError(t, err)
	require.NotNil(t, rel)
	target, err := rel.Target()
	require.NoError(t, err)
	assert.Equal(t, "t1", target.ID())

	t2, err := s.Note("t2")
	require.NoError(t, err)
	require.NoError(t, rel.SetTarget(t2))

	r.resetCalls()
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, []string{"delete attributes r1", "create attributes r1"}, r.mutations())
	assert.Equal(t, "t2", r.attrs["r1"].Value)
}

func TestNote_SetLabel(t *testing.T) {
	s, r, _ := newTestSession(t)
	r.seedNote("n1", types.RootNoteID, "one", 10)
	r.seedLabel("l1", "n1", "status", "open", 10)

	n, err := s.Note("n1")
	require.NoError(t, err)

	a, err := n.SetLabel("status", "closed")
	require.NoError(t, err)
	assert.Equal(t, "l1", a.ID())
	assert.Equal(t, types.StateUpdate, a.State())

	b, err := n.SetLabel("owner", "me")
	require.NoError(t, err)
	assert.Equal(t, types.StateCreate, b.State())

	r.resetCalls()
	require.NoError(t, s.Flush(context.Background()))
	assert.ElementsMatch(t, []string{"update attributes l1", "create attributes "}, r.mutations())
	assert.Equal(t, "closed", r.attrs["l1"].Value)
}

func TestSession_SearchSetsUpNotes(t *testing.T) {
	s, r, _ := newTestSession(t)
	r.seedNote("n1", types.RootNoteID, "needle", 10)
	r.seedLabel("l1", "n1", "tag", "x", 10)

	notes, err := s.Search(context.Background(), "needle", types.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.True(t, notes[0].Model().SetupDone())

	r.resetCalls()
	label, err := notes[0].Label("tag")
	require.NoError(t, err)
	require.NotNil(t, label)
	assert.Empty(t, r.calls, "search results are already set up")
}

func TestOwnedAttributes_FilterByType(t *testing.T) {
	s, r, _ := newTestSession(t)
	r.seedNote("n1", types.RootNoteID, "one", 10)
	r.seedNote("t1", types.RootNoteID, "target", 20)
	r.seedLabel("l1", "n1", "tag", "x", 10)
	r.seedLabel("l2", "n1", "status", "open", 20)
	r.attrs["r1"] = &types.Attribute{
		AttributeID: "r1", NoteID: "n1", Type: types.AttributeRelation, Name: "tag", Value: "t1", Position: 30,
	}
	r.attrs["r2"] = &types.Attribute{
		AttributeID: "r2", NoteID: "n1", Type: types.AttributeRelation, Name: "link", Value: "t1", Position: 40,
	}

	n, err := s.Note("n1")
	require.NoError(t, err)

	ids := func(attrs []*Attribute) []string {
		var out []string
		for _, a := range attrs {
			out = append(out, a.ID())
		}
		return out
	}

	tests := []struct {
		name   string
		filter func(string) ([]*Attribute, error)
		arg    string
		want   []string
	}{
		{"all labels", n.Attributes().Labels, "", []string{"l1", "l2"}},
		{"labels by name", n.Attributes().Labels, "tag", []string{"l1"}},
		{"all relations", n.Attributes().Relations, "", []string{"r1", "r2"}},
		{"relations by name", n.Attributes().Relations, "tag", []string{"r1"}},
		{"no match", n.Attributes().Labels, "link", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.filter(tt.arg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

// orderCheckingDriver wraps a Driver and reports every dependency of its
// entity that is still dirty when a flush call reaches it.
type orderCheckingDriver struct {
	Driver
	entity Entity
	before func(e Entity)
}

func (d *orderCheckingDriver) FlushCreate(ctx context.Context, g *FlushGraph) (types.Record, PendingFollowup, error) {
	d.before(d.entity)
	return d.Driver.FlushCreate(ctx, g)
}

func (d *orderCheckingDriver) FlushUpdate(ctx context.Context, g *FlushGraph) (types.Record, error) {
	d.before(d.entity)
	return d.Driver.FlushUpdate(ctx, g)
}

func (d *orderCheckingDriver) FlushDelete(ctx context.Context, g *FlushGraph) error {
	d.before(d.entity)
	return d.Driver.FlushDelete(ctx, g)
}

func TestFlush_DriversRunAfterDependencies(t *testing.T) {
	ctx := context.Background()
	r := newFakeRemote()

	var order []Entity
	var early []string
	pending := make(map[Entity]bool)
	base := remoteDrivers(r)
	factory := func(e Entity) Driver {
		return &orderCheckingDriver{Driver: base(e), entity: e, before: func(e Entity) {
			order = append(order, e)
			for _, dep := range e.core().hooks().dependencies() {
				if pending[dep] && dep.State() != types.StateClean {
					early = append(early, fmt.Sprintf("%s flushed before %s", e, dep))
				}
			}
		}}
	}
	s := NewSession(ctx, r, WithDriverFactory(factory))

	a, err := s.NewNote(NoteTitle("a"))
	require.NoError(t, err)
	_, err = s.Root().AddChild(a)
	require.NoError(t, err)
	b, err := s.NewNote(NoteTitle("b"))
	require.NoError(t, err)
	_, err = a.AddChild(b)
	require.NoError(t, err)
	c, err := s.NewNote(NoteTitle("c"))
	require.NoError(t, err)
	_, err = b.AddChild(c)
	require.NoError(t, err)
	clone, err := c.Clone(a)
	require.NoError(t, err)
	next := s.NewRelation("next", c)
	require.NoError(t, a.Attributes().Append(next))
	prev := s.NewRelation("prev", a)
	require.NoError(t, c.Attributes().Append(prev))
	label := s.NewLabel("tag", "v")
	require.NoError(t, b.Attributes().Append(label))

	for _, e := range s.Cache().Dirty() {
		pending[e] = true
	}
	require.NoError(t, s.Flush(ctx))

	assert.Empty(t, early)
	assert.Equal(t, 0, s.DirtyCount())

	pos := func(t *testing.T, e Entity) int {
		t.Helper()
		i := slices.Index(order, e)
		require.GreaterOrEqual(t, i, 0, "%s was not flushed through its driver", e)
		return i
	}
	tests := []struct {
		name        string
		first, then Entity
	}{
		{"parent before child", a, b},
		{"nested child", b, c},
		{"clone after its child", c, clone},
		{"clone after earlier sibling", b, clone},
		{"relation after its owner", a, next},
		{"relation after its target", c, next},
		{"back relation after its owner", c, prev},
		{"back relation after its target", a, prev},
		{"label after its owner", b, label},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Less(t, pos(t, tt.first), pos(t, tt.then))
		})
	}
	assert.Equal(t, c.ID(), r.attrs[next.ID()].Value)
	assert.Equal(t, a.ID(), r.attrs[prev.ID()].Value)
}

func TestAttribute_FlushPrepReportsErrors(t *testing.T) {
	s, r, _ := newTestSession(t)
	r.seedNote("t1", types.RootNoteID, "target", 10)
	target, err := s.Note("t1")
	require.NoError(t, err)

	tests := []struct {
		name    string
		attr    func() *Attribute
		wantErr string
	}{
		{
			name: "label is untouched",
			attr: func() *Attribute { return s.NewLabel("tag", "x") },
		},
		{
			name: "relation without target",
			attr: func() *Attribute { return s.NewRelation("link", nil) },
		},
		{
			name: "relation already resolved",
			attr: func() *Attribute { return s.NewRelation("link", target) },
		},
		{
			name: "fetch failure surfaces",
			attr: func() *Attribute {
				r.failures["get attributes r9"] = errors.New("connection reset")
				a := s.DeclareAttribute("r9", types.AttributeRelation, "link")
				a.target = target
				return a
			},
			wantErr: "connection reset",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.attr().flushPrep()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
