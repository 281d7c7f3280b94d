package types

import "fmt"

// Branch is the wire record placing a child note under a parent.
type Branch struct {
	BranchID     string `json:"branch_id"`
	NoteID       string `json:"note_id"`
	ParentNoteID string `json:"parent_note_id"`
	Prefix       string `json:"prefix"`
	NotePosition int    `json:"note_position"`
	IsExpanded   bool   `json:"is_expanded"`
}

// RecordID returns the branch ID.
func (b *Branch) RecordID() string { return b.BranchID }

// Fields returns the persisted fields of the branch.
func (b *Branch) Fields() Fields {
	return Fields{
		FieldBranchID:     b.BranchID,
		FieldNoteID:       b.NoteID,
		FieldParentNoteID: b.ParentNoteID,
		FieldPrefix:       b.Prefix,
		FieldNotePosition: b.NotePosition,
		FieldIsExpanded:   b.IsExpanded,
	}
}

// BranchID returns the conventional branch identifier for a parent/child
// pair.
func BranchID(parentNoteID, childNoteID string) string {
	return fmt.Sprintf("%s_%s", parentNoteID, childNoteID)
}
