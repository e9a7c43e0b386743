package cmd

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/parley-chat/parley/internal/output"
	"github.com/parley-chat/parley/internal/ui"
)

func newSearchCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "search <query>...",
		Short: "Search messages",
		Long: `Search message bodies and sender names.

A message matches when its body contains the query anywhere, when its body
contains the query as a phrase (the last word may be incomplete), or when its
sender name matches the query. At most 10 results are returned, best first,
with the matching fragments highlighted.`,
		Example: `  parley search deploy
  parley search "lunch at no"
  parley search alice --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query, format string) error {
	if err := checkFormat(format); err != nil {
		return err
	}

	return withApp(func(a *app) error {
		start := time.Now()
		results, err := a.search.Search(ctx, query)
		if err != nil {
			return err
		}
		slog.Debug("cli_search",
			slog.String("query", query),
			slog.Int("results", len(results)),
			slog.Duration("duration", time.Since(start)))

		if format == "json" {
			return output.New(cmd.OutOrStdout()).JSON(results)
		}
		ui.NewPrinter(cmd.OutOrStdout(), noColor).Results(query, results)
		return nil
	})
}
