package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/parley-chat/parley/internal/index"
	"github.com/parley-chat/parley/internal/output"
)

func newPostCmd() *cobra.Command {
	var (
		sender string
		format string
	)

	cmd := &cobra.Command{
		Use:   "post --sender NAME <body>...",
		Short: "Post a message",
		Long: `Store a message and make it searchable.

The message is written to the store first. If indexing fails the message is
still kept and 'parley reconcile' makes it searchable later.`,
		Example: `  parley post --sender alice "deploy finished"
  parley post --sender bob lunch at noon --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPost(cmd.Context(), cmd, sender, strings.Join(args, " "), format)
		},
	}

	cmd.Flags().StringVarP(&sender, "sender", "s", "", "Sender name (required)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runPost(ctx context.Context, cmd *cobra.Command, sender, body, format string) error {
	if err := checkFormat(format); err != nil {
		return err
	}

	return withApp(func(a *app) error {
		msg, err := a.coordinator.Ingest(ctx, sender, body)
		if err != nil {
			return err
		}
		state, _ := a.coordinator.State(msg.ID)
		// The retry worker is not running here; anything queued is left to reconcile.
		a.coordinator.Stop()

		out := output.New(cmd.OutOrStdout())
		if format == "json" {
			return out.JSON(msg)
		}

		out.Successf("Posted message #%d", msg.ID)
		if state != index.StateIndexed {
			out.Warning("Stored, but not searchable yet. Run 'parley reconcile'.")
		}
		return nil
	})
}

func checkFormat(format string) error {
	switch format {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("invalid format: %s (use: text, json)", format)
	}
}
