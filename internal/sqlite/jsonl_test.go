// Tests for JSONL persistence.
package sqlite

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadJSONL_SkipsBlankAndMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.jsonl")
	content := `{"note_id":"a"}

{broken
{"note_id":"b"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	records, err := readJSONL(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.JSONEq(t, `{"note_id":"a"}`, string(records[0]))
	assert.JSONEq(t, `{"note_id":"b"}`, string(records[1]))
}

func TestWriteJSONL_ReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))

	records := []json.RawMessage{
		json.RawMessage(`{"note_id":"a"}`),
		json.RawMessage(`{"note_id":"b"}`),
	}
	require.NoError(t, writeJSONL(path, records))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\"note_id\":\"a\"}\n{\"note_id\":\"b\"}\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp file left behind")
}

func TestInitJSONLFiles_KeepsExisting(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "notes.jsonl")
	require.NoError(t, os.WriteFile(existing, []byte("{}\n"), 0o644))

	require.NoError(t, initJSONLFiles(dir))

	for _, m := range jsonlTableMapping {
		_, err := os.Stat(filepath.Join(dir, m.file))
		assert.NoError(t, err, m.file)
	}
	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(data))
}

func TestPersistTableJSONL_WritesBooleans(t *testing.T) {
	db, dir := setupTestDB(t)
	_, err := db.Exec(`INSERT INTO notes (note_id, title, type, mime, blob_id, date_modified)
VALUES ('n1', 'Tasks', 'text', 'text/html', '', '2026-01-01T00:00:00Z')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO attributes (attribute_id, note_id, type, name, value, position, is_inheritable)
VALUES ('a1', 'n1', 'label', 'todo', '', 10, 1)`)
	require.NoError(t, err)

	require.NoError(t, persistTableJSONL(context.Background(), db, dir, "attributes"))

	data, err := os.ReadFile(filepath.Join(dir, "attributes.jsonl"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.JSONEq(t,
		`{"attribute_id":"a1","note_id":"n1","type":"label","name":"todo","value":"","position":10,"is_inheritable":true}`,
		lines[0])
	assert.NotContains(t, lines[0], "\n  ", "records are not pretty-printed")
}
