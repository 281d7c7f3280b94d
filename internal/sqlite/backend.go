// Package sqlite implements the note store on SQLite. JSONL files in the
// data directory are the source of truth; the database is the query engine
// and is rebuilt from the files on every Attach.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/notegraph/pkg/ident"
	"github.com/mesh-intelligence/notegraph/pkg/types"
)

// dbFile is the database file inside DataDir.
const dbFile = "notegraph.db"

var _ types.Backend = (*Backend)(nil)

// Backend implements types.Backend using SQLite as the query engine and
// JSONL files as the source of truth.
type Backend struct {
	mu        sync.RWMutex
	attached  bool
	config    types.Config
	db        *sql.DB
	tables    map[string]types.Table
	refreshes map[string]int
}

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend() *Backend {
	return &Backend{
		tables:    make(map[string]types.Table),
		refreshes: make(map[string]int),
	}
}

// GetTable returns the table accessor for name.
// Returns ErrTableNotFound if the table name is not recognized and
// ErrBackendDetached if the backend is not attached.
func (b *Backend) GetTable(name string) (types.Table, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return nil, types.ErrBackendDetached
	}

	table, ok := b.tables[name]
	if !ok {
		return nil, types.ErrTableNotFound
	}
	return table, nil
}

// Attach opens a fresh database in DataDir, loads the JSONL files into it
// and seeds the root note when the store is empty.
// Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}

	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	// The database is derived state; start from an empty one.
	dbPath := filepath.Join(dataDir, dbFile)
	_ = os.Remove(dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps PRAGMA settings and transactions on the same
	// handle.
	db.SetMaxOpenConns(1)

	if err := applySchema(db); err != nil {
		db.Close()
		return err
	}

	if err := initJSONLFiles(dataDir); err != nil {
		db.Close()
		return err
	}

	if err := loadAllJSONL(db, dataDir); err != nil {
		db.Close()
		return fmt.Errorf("load JSONL: %w", err)
	}

	if err := seedRoot(db, dataDir); err != nil {
		db.Close()
		return fmt.Errorf("seed root: %w", err)
	}

	b.db = db
	b.config = config
	b.config.DataDir = dataDir
	b.attached = true
	b.refreshes = make(map[string]int)

	b.tables[types.NotesTable] = &notesTable{backend: b}
	b.tables[types.AttributesTable] = &attributesTable{backend: b}
	b.tables[types.BranchesTable] = &branchesTable{backend: b}

	return nil
}

// Detach closes the database. After Detach, all operations return
// ErrBackendDetached. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}

	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return err
		}
		b.db = nil
	}

	b.attached = false
	b.tables = make(map[string]types.Table)

	return nil
}

// DataDir returns the directory the backend persists to.
func (b *Backend) DataDir() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.config.DataDir
}

// GetContent returns the content of the note's current blob.
func (b *Backend) GetContent(ctx context.Context, noteID string) ([]byte, error) {
	if noteID == "" {
		return nil, types.ErrInvalidID
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return nil, types.ErrBackendDetached
	}

	var blobID string
	err := b.db.QueryRowContext(ctx, "SELECT blob_id FROM notes WHERE note_id = ?", noteID).Scan(&blobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &types.NotFoundError{Table: types.NotesTable, ID: noteID}
	}
	if err != nil {
		return nil, fmt.Errorf("getting note %s: %w", noteID, err)
	}
	return readBlob(ctx, b.db, blobID)
}

// SetContent stores content under its digest and points the note at it.
func (b *Backend) SetContent(ctx context.Context, noteID string, content []byte) (*types.Note, error) {
	if noteID == "" {
		return nil, types.ErrInvalidID
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil, types.ErrBackendDetached
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if ok, err := noteExists(ctx, tx, noteID); err != nil {
		return nil, err
	} else if !ok {
		return nil, &types.NotFoundError{Table: types.NotesTable, ID: noteID}
	}

	blobID, err := writeBlob(ctx, tx, content)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE notes SET blob_id = ?, date_modified = ? WHERE note_id = ?",
		blobID, formatTime(time.Now()), noteID,
	); err != nil {
		return nil, fmt.Errorf("updating note %s content: %w", noteID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	if err := b.persist(ctx, types.NotesTable, blobsTable); err != nil {
		return nil, err
	}
	return loadNote(ctx, b.db, noteID)
}

// RefreshOrdering marks the parent's child order as changed.
func (b *Backend) RefreshOrdering(ctx context.Context, parentNoteID string) error {
	if parentNoteID == "" {
		return types.ErrInvalidID
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return types.ErrBackendDetached
	}

	res, err := b.db.ExecContext(ctx,
		"UPDATE notes SET date_modified = ? WHERE note_id = ?",
		formatTime(time.Now()), parentNoteID,
	)
	if err != nil {
		return fmt.Errorf("refreshing ordering of %s: %w", parentNoteID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &types.NotFoundError{Table: types.NotesTable, ID: parentNoteID}
	}
	b.refreshes[parentNoteID]++
	return b.persist(ctx, types.NotesTable)
}

// RefreshCount reports how often the ordering of parentNoteID was refreshed
// since Attach.
func (b *Backend) RefreshCount(parentNoteID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.refreshes[parentNoteID]
}

// Backup writes every JSONL file into DataDir/backup/backup-<name>/.
func (b *Backend) Backup(ctx context.Context, name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("backup name %q: %w", name, types.ErrInvalidID)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return types.ErrBackendDetached
	}

	dir := filepath.Join(b.config.DataDir, "backup", "backup-"+name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating backup dir: %w", err)
	}
	var tables []string
	for _, m := range jsonlTableMapping {
		tables = append(tables, m.table)
	}
	if err := persistTables(ctx, b.db, dir, tables...); err != nil {
		return fmt.Errorf("writing backup %s: %w", name, err)
	}
	return nil
}

// persist rewrites the JSONL files of the given tables. The caller must
// hold b.mu.
func (b *Backend) persist(ctx context.Context, tables ...string) error {
	if err := persistTables(ctx, b.db, b.config.DataDir, tables...); err != nil {
		return fmt.Errorf("persisting JSONL: %w", err)
	}
	return nil
}

func applySchema(db *sql.DB) error {
	for _, ddl := range schemaDDL {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	for _, ddl := range indexDDL {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("creating index: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enabling foreign keys: %w", err)
	}
	return nil
}

// generateID returns a UUID v7 without hyphens.
func generateID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return strings.ReplaceAll(id.String(), "-", "")
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

const blobsTable = "blobs"

// writeBlob stores content under its digest and returns the digest.
func writeBlob(ctx context.Context, q execer, content []byte) (string, error) {
	blobID := ident.BlobID(content)
	if _, err := q.ExecContext(ctx,
		"INSERT OR IGNORE INTO blobs (blob_id, content) VALUES (?, ?)",
		blobID, base64.StdEncoding.EncodeToString(content),
	); err != nil {
		return "", fmt.Errorf("storing blob %s: %w", blobID, err)
	}
	return blobID, nil
}

// readBlob returns the content stored under blobID, or nil when the blob is
// missing.
func readBlob(ctx context.Context, q querier, blobID string) ([]byte, error) {
	var enc string
	err := q.QueryRowContext(ctx, "SELECT content FROM blobs WHERE blob_id = ?", blobID).Scan(&enc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading blob %s: %w", blobID, err)
	}
	content, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return nil, fmt.Errorf("decoding blob %s: %w", blobID, err)
	}
	return content, nil
}
