package cli

import (
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/notegraph/internal/workspace"
	"github.com/mesh-intelligence/notegraph/pkg/types"
)

func newShowCmd() *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "show [noteId]",
		Short: "Print a note and its children",
		Long:  "Print a note, its labels and relations and --depth levels of children.\nWithout an id the root note is shown.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := types.RootNoteID
			if len(args) == 1 {
				id = args[0]
			}
			if depth < 0 {
				return userError("--depth must not be negative")
			}

			ws, _, err := openWorkspace(cmd.ErrOrStderr())
			if err != nil {
				return commandError(err)
			}
			defer ws.Close()

			view, err := ws.Show(cmd.Context(), id, depth)
			if err != nil {
				return commandError(err)
			}
			if flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), view)
			}
			return workspace.WriteTree(cmd.OutOrStdout(), view)
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 1, "levels of children to print")
	return cmd
}
