package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/parley-chat/parley/internal/async"
	"github.com/parley-chat/parley/internal/output"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show store and index health",
		Long: `Display the number of stored and indexed messages and whether the
search index agrees with the message store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	return withApp(func(a *app) error {
		report, err := a.reporter.Report(ctx)
		if err != nil {
			return err
		}

		out := output.New(cmd.OutOrStdout())
		if jsonOutput {
			return out.JSON(report)
		}

		out.Statusf("📂", "Data directory: %s", a.cfg.Paths.DataDir)
		out.StatusReport(report)
		if async.HasIncompleteReconcile(a.cfg.Paths.DataDir) {
			out.Warning("A previous reconcile did not finish. Run 'parley reindex'.")
		}
		return nil
	})
}
