package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldsClone(t *testing.T) {
	var nilFields Fields
	assert.Nil(t, nilFields.Clone())

	f := Fields{FieldTitle: "a", FieldPosition: 10}
	c := f.Clone()
	c[FieldTitle] = "b"
	assert.Equal(t, "a", f[FieldTitle])
	assert.Equal(t, 10, c[FieldPosition])
}

func TestRecordFields(t *testing.T) {
	t.Run("note", func(t *testing.T) {
		n := &Note{NoteID: "n1", Title: "t", Type: "text", Mime: "text/html"}
		assert.Equal(t, "n1", n.RecordID())
		assert.Equal(t, "t", n.Fields()[FieldTitle])
		assert.Equal(t, "text/html", n.Fields()[FieldMime])
	})
	t.Run("attribute", func(t *testing.T) {
		a := &Attribute{AttributeID: "a1", NoteID: "n1", Type: AttributeLabel, Name: "x", Position: 20, IsInheritable: true}
		assert.Equal(t, "a1", a.RecordID())
		assert.Equal(t, 20, a.Fields()[FieldPosition])
		assert.Equal(t, true, a.Fields()[FieldIsInheritable])
	})
	t.Run("branch", func(t *testing.T) {
		b := &Branch{BranchID: BranchID("p", "c"), NoteID: "c", ParentNoteID: "p", NotePosition: 10}
		assert.Equal(t, "p_c", b.RecordID())
		assert.Equal(t, "p", b.Fields()[FieldParentNoteID])
	})
	t.Run("note with branch", func(t *testing.T) {
		nb := &NoteWithBranch{Note: &Note{NoteID: "n2", Title: "x"}, Branch: &Branch{BranchID: "root_n2"}}
		assert.Equal(t, "n2", nb.RecordID())
		assert.Equal(t, "x", nb.Fields()[FieldTitle])
	})
}

func TestNotFoundError(t *testing.T) {
	err := fmt.Errorf("updating: %w", &NotFoundError{Table: NotesTable, ID: "n1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "notes n1")
}
