package types

// Attribute types.
const (
	AttributeLabel    = "label"
	AttributeRelation = "relation"
)

// Attribute is the wire record for a label or relation. For relations Value
// holds the target note ID.
type Attribute struct {
	AttributeID   string `json:"attribute_id"`
	NoteID        string `json:"note_id"`
	Type          string `json:"type"`
	Name          string `json:"name"`
	Value         string `json:"value"`
	Position      int    `json:"position"`
	IsInheritable bool   `json:"is_inheritable"`
}

// RecordID returns the attribute ID.
func (a *Attribute) RecordID() string { return a.AttributeID }

// Fields returns the persisted fields of the attribute.
func (a *Attribute) Fields() Fields {
	return Fields{
		FieldAttributeID:   a.AttributeID,
		FieldNoteID:        a.NoteID,
		FieldAttributeType: a.Type,
		FieldName:          a.Name,
		FieldValue:         a.Value,
		FieldPosition:      a.Position,
		FieldIsInheritable: a.IsInheritable,
	}
}
