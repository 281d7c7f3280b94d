package cli

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/notegraph/internal/mcptools"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the note graph as MCP tools over stdio",
		Long: "Run an MCP server on stdin/stdout exposing note_search, note_show,\n" +
			"note_apply and note_backup. Logs go to stderr.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, logger, err := openWorkspace(cmd.ErrOrStderr())
			if err != nil {
				return commandError(err)
			}
			defer ws.Close()

			logger.Info("Serving MCP over stdio", "version", Version)
			if err := server.ServeStdio(mcptools.NewServer(ws, Version)); err != nil {
				return commandError(err)
			}
			return nil
		},
	}
}
