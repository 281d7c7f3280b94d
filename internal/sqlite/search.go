// This file implements note search.
package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/notegraph/pkg/types"
)

// Search returns the notes matching every term of query, ordered by title.
//
// Terms are separated by whitespace:
//
//	#name          note has a label called name
//	#name=value    note has a label called name with that value
//	~name=noteId   note has a relation called name pointing at noteId
//	text           title contains text, case-insensitively
//
// An empty query matches every note. opts.Ancestor restricts the result to
// notes below that note; opts.Limit caps it when positive.
func (b *Backend) Search(ctx context.Context, query string, opts types.SearchOptions) ([]*types.Note, error) {
	sqlQuery, args, err := buildSearch(query, opts)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return nil, types.ErrBackendDetached
	}

	ids, err := queryAll(ctx, b.db, scanString, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", query, err)
	}
	notes := make([]*types.Note, 0, len(ids))
	for _, id := range ids {
		n, err := loadNote(ctx, b.db, id)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, nil
}

func buildSearch(query string, opts types.SearchOptions) (string, []any, error) {
	var sb strings.Builder
	var args []any

	if opts.Ancestor != "" {
		sb.WriteString(`WITH RECURSIVE sub(id) AS (
    SELECT note_id FROM branches WHERE parent_note_id = ?
    UNION
    SELECT b.note_id FROM branches b JOIN sub ON b.parent_note_id = sub.id
)
`)
		args = append(args, opts.Ancestor)
	}
	sb.WriteString("SELECT n.note_id FROM notes n WHERE 1 = 1")
	if opts.Ancestor != "" {
		sb.WriteString(" AND n.note_id IN (SELECT id FROM sub)")
	}

	for _, term := range strings.Fields(query) {
		switch term[0] {
		case '#', '~':
			typ := types.AttributeLabel
			if term[0] == '~' {
				typ = types.AttributeRelation
			}
			name, value, hasValue := strings.Cut(term[1:], "=")
			if name == "" || (typ == types.AttributeRelation && !hasValue) {
				return "", nil, fmt.Errorf("search term %q: %w", term, types.ErrInvalidFilter)
			}
			sb.WriteString(" AND EXISTS (SELECT 1 FROM attributes a WHERE a.note_id = n.note_id AND a.type = ? AND a.name = ?")
			args = append(args, typ, name)
			if hasValue {
				sb.WriteString(" AND a.value = ?")
				args = append(args, value)
			}
			sb.WriteString(")")
		default:
			sb.WriteString(` AND n.title LIKE ? ESCAPE '\'`)
			args = append(args, "%"+escapeLike(term)+"%")
		}
	}

	sb.WriteString(" ORDER BY n.title, n.note_id")
	if opts.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, opts.Limit)
	}
	return sb.String(), args, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}
