package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/notegraph/internal/workspace"
	"github.com/mesh-intelligence/notegraph/pkg/declarative"
)

type applyOptions struct {
	parent string
	dryRun bool
	watch  bool
}

func newApplyCmd() *cobra.Command {
	var opts applyOptions
	cmd := &cobra.Command{
		Use:   "apply <glob>...",
		Short: "Apply declarative YAML trees",
		Long: "Load the YAML tree files matched by the globs (which may use **) and\n" +
			"bring the note graph in line with them. Applying the same trees again\n" +
			"changes nothing. With --watch the trees are applied again whenever a\n" +
			"matched file changes.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := declarative.Glob(args...)
			if err != nil {
				return userError("%v", err)
			}
			if len(files) == 0 && !opts.watch {
				return userError("no files match %v", args)
			}

			ws, logger, err := openWorkspace(cmd.ErrOrStderr())
			if err != nil {
				return commandError(err)
			}
			defer ws.Close()

			apply := func(ctx context.Context) error {
				return runApply(ctx, ws, args, opts, cmd.OutOrStdout())
			}
			if !opts.watch {
				return commandError(apply(cmd.Context()))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if len(files) > 0 {
				logApplyError(logger, apply(ctx))
			}
			w := &treeWatcher{patterns: args, apply: apply, logger: logger}
			return commandError(w.Run(ctx))
		},
	}
	cmd.Flags().StringVar(&opts.parent, "parent", "", "note id the trees are placed under (default: root)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "report the changes without writing them")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "apply again when a matched file changes")
	return cmd
}

func runApply(ctx context.Context, ws *workspace.Workspace, patterns []string, opts applyOptions, out io.Writer) error {
	res, err := ws.ApplyFiles(ctx, patterns, opts.parent, opts.dryRun)
	if err != nil {
		return err
	}
	if flags.jsonMode {
		return printJSON(out, res)
	}
	verb := "applied"
	if res.DryRun {
		verb = "would apply"
	}
	_, err = fmt.Fprintf(out, "%s %d definitions: %d changes (%s)\n", verb, res.Definitions, res.Changes, res.Summary)
	return err
}

// logApplyError reports a failed re-apply without stopping the watch.
func logApplyError(logger *slog.Logger, err error) {
	if err != nil {
		logger.Error("Apply failed", "error", err)
	}
}
