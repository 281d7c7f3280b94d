// Package mcptools exposes note operations as MCP tools.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mesh-intelligence/notegraph/internal/workspace"
	"github.com/mesh-intelligence/notegraph/pkg/declarative"
	"github.com/mesh-intelligence/notegraph/pkg/types"
)

// NewServer builds an MCP server with every note tool registered.
func NewServer(ws *workspace.Workspace, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"notegraph",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	search := NewSearchTool(ws)
	s.AddTool(search.Definition(), search.Handle)

	show := NewShowTool(ws)
	s.AddTool(show.Definition(), show.Handle)

	apply := NewApplyTool(ws)
	s.AddTool(apply.Definition(), apply.Handle)

	backup := NewBackupTool(ws)
	s.AddTool(backup.Definition(), backup.Handle)

	return s
}

// intArg extracts a numeric argument from a tool request.
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// SearchTool handles the note_search MCP tool.
type SearchTool struct {
	ws *workspace.Workspace
}

// NewSearchTool creates a SearchTool.
func NewSearchTool(ws *workspace.Workspace) *SearchTool {
	return &SearchTool{ws: ws}
}

// Definition returns the MCP tool definition for note_search.
func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("note_search",
		mcp.WithDescription(
			"Search the note graph. Terms are ANDed: #name or #name=value match labels, "+
				"~name=noteId matches relations, anything else matches titles.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query"),
		),
		mcp.WithString("ancestor",
			mcp.Description("Only return notes below this note id"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 20)"),
		),
	)
}

// Handle processes the note_search tool call.
func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	opts := types.SearchOptions{
		Ancestor: req.GetString("ancestor", ""),
		Limit:    intArg(req, "limit", 20),
	}

	notes, err := t.ws.Search(ctx, query, opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(notes) == 0 {
		return mcp.NewToolResultText("No notes found matching your query."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d notes:\n\n", len(notes))
	for _, n := range notes {
		if err := workspace.WriteTree(&b, n); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ShowTool handles the note_show MCP tool.
type ShowTool struct {
	ws *workspace.Workspace
}

// NewShowTool creates a ShowTool.
func NewShowTool(ws *workspace.Workspace) *ShowTool {
	return &ShowTool{ws: ws}
}

// Definition returns the MCP tool definition for note_show.
func (t *ShowTool) Definition() mcp.Tool {
	return mcp.NewTool("note_show",
		mcp.WithDescription("Show a note with its attributes and children as JSON."),
		mcp.WithString("note_id",
			mcp.Description("Note id (default: root)"),
		),
		mcp.WithNumber("depth",
			mcp.Description("Levels of children to include (default: 1)"),
		),
		mcp.WithBoolean("content",
			mcp.Description("Include the note content"),
		),
	)
}

// Handle processes the note_show tool call.
func (t *ShowTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("note_id", types.RootNoteID)
	view, err := t.ws.Show(ctx, id, intArg(req, "depth", 1))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("show failed: %v", err)), nil
	}
	if !boolArg(req, "content", false) {
		return jsonResult(view)
	}

	content, err := t.ws.Content(ctx, view.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reading content: %v", err)), nil
	}
	return jsonResult(struct {
		*workspace.NoteView
		Content string `json:"content"`
	}{view, string(content)})
}

// ApplyTool handles the note_apply MCP tool.
type ApplyTool struct {
	ws *workspace.Workspace
}

// NewApplyTool creates an ApplyTool.
func NewApplyTool(ws *workspace.Workspace) *ApplyTool {
	return &ApplyTool{ws: ws}
}

// Definition returns the MCP tool definition for note_apply.
func (t *ApplyTool) Definition() mcp.Tool {
	return mcp.NewTool("note_apply",
		mcp.WithDescription(
			"Apply a declarative YAML tree to the note graph. Applying the same tree twice changes nothing.",
		),
		mcp.WithString("tree",
			mcp.Required(),
			mcp.Description("YAML document with 'definitions' and 'tree' sections"),
		),
		mcp.WithString("parent",
			mcp.Description("Note id the tree is placed under (default: root)"),
		),
		mcp.WithBoolean("dry_run",
			mcp.Description("Report the changes without writing them"),
		),
	)
}

// Handle processes the note_apply tool call.
func (t *ApplyTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tree := req.GetString("tree", "")
	if tree == "" {
		return mcp.NewToolResultError("'tree' is required"), nil
	}
	defs, err := declarative.Load(strings.NewReader(tree))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid tree: %v", err)), nil
	}

	res, err := t.ws.Apply(ctx, defs, req.GetString("parent", ""), boolArg(req, "dry_run", false))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("apply failed: %v", err)), nil
	}
	return jsonResult(res)
}

// BackupTool handles the note_backup MCP tool.
type BackupTool struct {
	ws *workspace.Workspace
}

// NewBackupTool creates a BackupTool.
func NewBackupTool(ws *workspace.Workspace) *BackupTool {
	return &BackupTool{ws: ws}
}

// Definition returns the MCP tool definition for note_backup.
func (t *BackupTool) Definition() mcp.Tool {
	return mcp.NewTool("note_backup",
		mcp.WithDescription("Write a named backup of the note store."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Backup name, used as backup-<name>"),
		),
	)
}

// Handle processes the note_backup tool call.
func (t *BackupTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	if name == "" {
		return mcp.NewToolResultError("'name' is required"), nil
	}
	if err := t.ws.Backup(ctx, name); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("backup failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Backup %q written.", name)), nil
}
