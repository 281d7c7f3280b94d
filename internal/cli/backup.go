package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup <name>",
		Short: "Write a named backup of the store",
		Long:  "Copy every store file into <data-dir>/backup/backup-<name>/.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, _, err := openWorkspace(cmd.ErrOrStderr())
			if err != nil {
				return commandError(err)
			}
			defer ws.Close()

			if err := ws.Backup(cmd.Context(), args[0]); err != nil {
				return commandError(err)
			}
			if flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), map[string]string{"backup": args[0]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backup %q written\n", args[0])
			return nil
		},
	}
}
