package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/notegraph/internal/paths"
	"github.com/mesh-intelligence/notegraph/internal/workspace"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize notegraph storage",
		Long: "Create the configuration and data directories, write a default\n" +
			"config.yaml if none exists and seed the store with the root note.",
		Args: cobra.NoArgs,
		RunE: runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	s, err := resolveSettings()
	if err != nil {
		return commandError(err)
	}

	if err := os.MkdirAll(s.configDir, 0o755); err != nil {
		return commandError(fmt.Errorf("create config directory: %w", err))
	}

	configPath := paths.ConfigFile(s.configDir)
	wrote, err := writeConfigIfMissing(configPath, s.dataDir)
	if err != nil {
		return commandError(fmt.Errorf("write config: %w", err))
	}

	logger, err := newLogger(cmd.ErrOrStderr(), s.logLevel, flags.verbose)
	if err != nil {
		return commandError(err)
	}
	// Attach seeds the data directory; detach flushes it to disk.
	ws, err := workspace.Open(s.config(), logger)
	if err != nil {
		return commandError(fmt.Errorf("initialize storage: %w", err))
	}
	if err := ws.Close(); err != nil {
		return commandError(fmt.Errorf("finalize storage: %w", err))
	}

	if flags.jsonMode {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"config_file":    configPath,
			"config_written": wrote,
			"data_dir":       s.dataDir,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "notegraph initialized\nconfig: %s\ndata:   %s\n", configPath, s.dataDir)
	return nil
}
