// This file implements JSONL loading for startup.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// jsonlTableMapping maps JSONL filenames to their SQLite tables and column
// lists. Tables with foreign keys load after the tables they reference.
var jsonlTableMapping = []struct {
	file    string
	table   string
	columns []string
}{
	{"notes.jsonl", "notes", []string{"note_id", "title", "type", "mime", "blob_id", "date_modified"}},
	{"attributes.jsonl", "attributes", []string{"attribute_id", "note_id", "type", "name", "value", "position", "is_inheritable"}},
	{"branches.jsonl", "branches", []string{"branch_id", "note_id", "parent_note_id", "prefix", "note_position", "is_expanded"}},
	{"blobs.jsonl", "blobs", []string{"blob_id", "content"}},
}

// jsonlFile returns the JSONL filename backing table.
func jsonlFile(table string) string {
	for _, m := range jsonlTableMapping {
		if m.table == table {
			return m.file
		}
	}
	return table + ".jsonl"
}

// tableColumns returns the persisted columns of table in file order.
func tableColumns(table string) []string {
	for _, m := range jsonlTableMapping {
		if m.table == table {
			return m.columns
		}
	}
	return nil
}

// loadAllJSONL reads each JSONL file from dataDir and inserts its records
// into the matching table. Loading is transactional: either every file
// loads or the database stays empty. Malformed lines and records that
// violate a constraint are skipped; unknown fields are ignored.
func loadAllJSONL(db *sql.DB, dataDir string) error {
	// The pragma is a no-op inside a transaction, so it is toggled on the
	// (single) connection around it.
	if _, err := db.Exec("PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("disabling foreign keys for load: %w", err)
	}
	defer db.Exec("PRAGMA foreign_keys = ON")

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning load transaction: %w", err)
	}
	defer tx.Rollback()

	for _, mapping := range jsonlTableMapping {
		path := filepath.Join(dataDir, mapping.file)
		records, err := readJSONL(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", mapping.file, err)
		}

		if len(records) == 0 {
			continue
		}

		if err := insertRecords(tx, mapping.table, mapping.columns, records); err != nil {
			return fmt.Errorf("loading %s into %s: %w", mapping.file, mapping.table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing load transaction: %w", err)
	}

	return nil
}

// insertRecords inserts parsed JSONL records into a table. Only the mapped
// columns are extracted, so fields written by newer versions are ignored.
func insertRecords(tx *sql.Tx, table string, columns []string, records []json.RawMessage) error {
	placeholders := make([]string, len(columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	insertSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table,
		joinColumns(columns),
		joinColumns(placeholders),
	)

	stmt, err := tx.Prepare(insertSQL)
	if err != nil {
		return fmt.Errorf("preparing insert for %s: %w", table, err)
	}
	defer stmt.Close()

	for _, rec := range records {
		var obj map[string]any
		if err := json.Unmarshal(rec, &obj); err != nil {
			continue
		}

		args := make([]any, len(columns))
		for i, col := range columns {
			val, ok := obj[col]
			if !ok {
				args[i] = nil
				continue
			}
			switch v := val.(type) {
			case bool:
				args[i] = boolInt(v)
			case float64:
				args[i] = int64(v)
			default:
				args[i] = val
			}
		}

		if _, err := stmt.Exec(args...); err != nil {
			continue
		}
	}

	return nil
}

func joinColumns(cols []string) string {
	return strings.Join(cols, ", ")
}

func boolInt(v bool) int64 {
	if v {
		return 1
	}
	return 0
}
