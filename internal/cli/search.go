package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/notegraph/internal/workspace"
	"github.com/mesh-intelligence/notegraph/pkg/types"
)

func newSearchCmd() *cobra.Command {
	var opts types.SearchOptions
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search notes",
		Long: "Search notes. Terms are ANDed: #name and #name=value match labels,\n" +
			"~name=noteId matches relations and other words match titles.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Limit < 0 {
				return userError("--limit must not be negative")
			}

			ws, _, err := openWorkspace(cmd.ErrOrStderr())
			if err != nil {
				return commandError(err)
			}
			defer ws.Close()

			notes, err := ws.Search(cmd.Context(), strings.Join(args, " "), opts)
			if err != nil {
				return commandError(err)
			}
			if flags.jsonMode {
				if notes == nil {
					notes = []*workspace.NoteView{}
				}
				return printJSON(cmd.OutOrStdout(), notes)
			}
			out := cmd.OutOrStdout()
			if len(notes) == 0 {
				fmt.Fprintln(out, "No notes found.")
				return nil
			}
			for _, n := range notes {
				if err := workspace.WriteTree(out, n); err != nil {
					return commandError(err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Ancestor, "ancestor", "", "only match notes below this note id")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of results (0 for no limit)")
	return cmd
}
