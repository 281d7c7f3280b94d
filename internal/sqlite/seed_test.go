package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/notegraph/pkg/ident"
	"github.com/mesh-intelligence/notegraph/pkg/types"
)

func TestSeedRoot(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()

	tbl, err := b.GetTable(types.NotesTable)
	require.NoError(t, err)
	got, err := tbl.Get(ctx, types.RootNoteID)
	require.NoError(t, err)
	root := got.(*types.Note)

	assert.Equal(t, "root", root.Title)
	assert.Equal(t, ident.BlobID(nil), root.BlobID)
	require.Len(t, root.ParentBranches, 1)
	assert.Equal(t, types.RootBranchID, root.ParentBranches[0].BranchID)
	assert.Equal(t, types.NoneNoteID, root.ParentBranches[0].ParentNoteID)
	assert.Empty(t, root.ChildBranches)

	content, err := b.GetContent(ctx, types.RootNoteID)
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestSeedRoot_Idempotent(t *testing.T) {
	dir := t.TempDir()
	cfg := types.Config{Backend: types.BackendSQLite, DataDir: dir}

	for range 3 {
		b := NewBackend()
		require.NoError(t, b.Attach(cfg))
		require.NoError(t, b.Detach())
	}

	data, err := os.ReadFile(filepath.Join(dir, "notes.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), `"note_id":"root"`))
}
