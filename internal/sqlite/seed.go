// This file implements first-run seeding of the root note.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mesh-intelligence/notegraph/pkg/types"
)

// Root note defaults.
const (
	rootTitle = "root"
	rootType  = "text"
	rootMime  = "text/html"
)

// seedRoot inserts the root note, its none_root branch and its empty blob
// when the loaded store has no root. Existing stores are left alone.
func seedRoot(db *sql.DB, dataDir string) error {
	ctx := context.Background()
	ok, err := noteExists(ctx, db, types.RootNoteID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning seed transaction: %w", err)
	}
	defer tx.Rollback()

	blobID, err := writeBlob(ctx, tx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(
		"INSERT INTO notes (note_id, title, type, mime, blob_id, date_modified) VALUES (?, ?, ?, ?, ?, ?)",
		types.RootNoteID, rootTitle, rootType, rootMime, blobID, formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("seeding root note: %w", err)
	}
	if _, err := tx.Exec(
		"INSERT OR IGNORE INTO branches (branch_id, note_id, parent_note_id, prefix, note_position, is_expanded) VALUES (?, ?, ?, '', 0, 1)",
		types.RootBranchID, types.RootNoteID, types.NoneNoteID,
	); err != nil {
		return fmt.Errorf("seeding root branch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing seed transaction: %w", err)
	}

	if err := persistTables(ctx, db, dataDir, types.NotesTable, types.BranchesTable, blobsTable); err != nil {
		return fmt.Errorf("persisting seeded data: %w", err)
	}
	return nil
}
