package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/parley-chat/parley/internal/output"
	"github.com/parley-chat/parley/internal/ui"
)

func newListCmd() *cobra.Command {
	var (
		format string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List messages, newest first",
		Example: `  parley list
  parley list --limit 5
  parley list --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd.Context(), cmd, format, limit)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show at most this many messages (0 for all)")

	return cmd
}

func runList(ctx context.Context, cmd *cobra.Command, format string, limit int) error {
	if err := checkFormat(format); err != nil {
		return err
	}

	return withApp(func(a *app) error {
		msgs, err := a.coordinator.List(ctx)
		if err != nil {
			return err
		}
		if limit > 0 && len(msgs) > limit {
			msgs = msgs[:limit]
		}

		if format == "json" {
			return output.New(cmd.OutOrStdout()).JSON(msgs)
		}
		ui.NewPrinter(cmd.OutOrStdout(), noColor).Messages(msgs)
		return nil
	})
}
