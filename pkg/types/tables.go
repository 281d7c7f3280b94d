package types

// Standard table names for Remote.GetTable.
const (
	NotesTable      = "notes"
	AttributesTable = "attributes"
	BranchesTable   = "branches"
)

// StandardTableNames lists all standard table names for enumeration.
var StandardTableNames = []string{
	NotesTable,
	AttributesTable,
	BranchesTable,
}
