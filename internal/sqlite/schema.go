package sqlite

// Table DDL. JSONL files stay the source of truth; the database is rebuilt
// from them on every Attach.
const (
	createNotes = `CREATE TABLE notes (
    note_id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    type TEXT NOT NULL,
    mime TEXT NOT NULL,
    blob_id TEXT NOT NULL,
    date_modified TEXT NOT NULL
);`

	createAttributes = `CREATE TABLE attributes (
    attribute_id TEXT PRIMARY KEY,
    note_id TEXT NOT NULL,
    type TEXT NOT NULL,
    name TEXT NOT NULL,
    value TEXT NOT NULL,
    position INTEGER NOT NULL,
    is_inheritable INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (note_id) REFERENCES notes(note_id) ON DELETE CASCADE
);`

	// parent_note_id is "none" for the root branch, so it carries no
	// foreign key.
	createBranches = `CREATE TABLE branches (
    branch_id TEXT PRIMARY KEY,
    note_id TEXT NOT NULL,
    parent_note_id TEXT NOT NULL,
    prefix TEXT NOT NULL DEFAULT '',
    note_position INTEGER NOT NULL,
    is_expanded INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (note_id) REFERENCES notes(note_id) ON DELETE CASCADE
);`

	// content holds standard base64 so the JSONL round trip is lossless.
	createBlobs = `CREATE TABLE blobs (
    blob_id TEXT PRIMARY KEY,
    content TEXT NOT NULL
);`
)

const (
	idxAttributesNote     = `CREATE INDEX idx_attributes_note ON attributes(note_id);`
	idxAttributesName     = `CREATE INDEX idx_attributes_name ON attributes(type, name);`
	idxBranchesNote       = `CREATE INDEX idx_branches_note ON branches(note_id);`
	idxBranchesParent     = `CREATE INDEX idx_branches_parent ON branches(parent_note_id);`
	idxBranchesPairUnique = `CREATE UNIQUE INDEX idx_branches_pair ON branches(parent_note_id, note_id);`
)

// schemaDDL lists all CREATE TABLE statements in dependency order.
var schemaDDL = []string{
	createNotes,
	createAttributes,
	createBranches,
	createBlobs,
}

var indexDDL = []string{
	idxAttributesNote,
	idxAttributesName,
	idxBranchesNote,
	idxBranchesParent,
	idxBranchesPairUnique,
}
