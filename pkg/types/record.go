package types

// Fields maps persisted field names to values. Values are strings, ints,
// bools or time.Time; nothing else crosses the wire.
type Fields map[string]any

// Clone returns a shallow copy of f. A nil map clones to nil.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	c := make(Fields, len(f))
	for k, v := range f {
		c[k] = v
	}
	return c
}

// Record is a remote record as seen by the graph: an identifier plus its
// persisted fields.
type Record interface {
	RecordID() string
	Fields() Fields
}

// Field names. Writable names are the ones the store accepts in Update.
const (
	FieldNoteID       = "note_id"
	FieldTitle        = "title"
	FieldType         = "type"
	FieldMime         = "mime"
	FieldBlobID       = "blob_id"
	FieldDateModified = "date_modified"

	FieldAttributeID   = "attribute_id"
	FieldAttributeType = "attribute_type"
	FieldName          = "name"
	FieldValue         = "value"
	FieldIsInheritable = "is_inheritable"
	FieldPosition      = "position"

	FieldBranchID     = "branch_id"
	FieldParentNoteID = "parent_note_id"
	FieldPrefix       = "prefix"
	FieldIsExpanded   = "is_expanded"
	FieldNotePosition = "note_position"
)
