package types

import "time"

// RootNoteID is the identifier of the distinguished root note. Its single
// parent branch points at NoneNoteID.
const (
	RootNoteID   = "root"
	NoneNoteID   = "none"
	RootBranchID = "none_root"
)

// Note is the wire record for a note. Get returns the note with its owned
// attributes and both branch lists, each sorted by position.
type Note struct {
	NoteID         string       `json:"note_id"`
	Title          string       `json:"title"`
	Type           string       `json:"type"`
	Mime           string       `json:"mime"`
	BlobID         string       `json:"blob_id"`
	DateModified   time.Time    `json:"date_modified"`
	Attributes     []*Attribute `json:"-"`
	ParentBranches []*Branch    `json:"-"`
	ChildBranches  []*Branch    `json:"-"`
}

// RecordID returns the note ID.
func (n *Note) RecordID() string { return n.NoteID }

// Fields returns the persisted scalar fields of the note.
func (n *Note) Fields() Fields {
	return Fields{
		FieldNoteID:       n.NoteID,
		FieldTitle:        n.Title,
		FieldType:         n.Type,
		FieldMime:         n.Mime,
		FieldBlobID:       n.BlobID,
		FieldDateModified: n.DateModified,
	}
}

// NoteCreate is the payload for creating a note together with its first
// parent branch.
type NoteCreate struct {
	NoteID       string // optional; the store assigns one when empty
	ParentNoteID string
	Title        string
	Type         string
	Mime         string
	Content      []byte
	BranchID     string // optional; defaults to parent_child
	Prefix       string
	NotePosition int
	IsExpanded   bool
}

// NoteWithBranch is the result of a note create: the stored note and the
// branch that placed it under its parent.
type NoteWithBranch struct {
	Note   *Note
	Branch *Branch
}

// RecordID returns the created note ID.
func (nb *NoteWithBranch) RecordID() string { return nb.Note.NoteID }

// Fields returns the created note's fields.
func (nb *NoteWithBranch) Fields() Fields { return nb.Note.Fields() }
