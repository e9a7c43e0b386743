package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/parley-chat/parley/internal/async"
	"github.com/parley-chat/parley/internal/index"
	"github.com/parley-chat/parley/internal/output"
	"github.com/parley-chat/parley/internal/ui"
)

// progressInterval is how often a running reconcile redraws its progress bar.
const progressInterval = 100 * time.Millisecond

func newReconcileCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Repair the search index from the message store",
		Long: `Compare every stored message with the search index, index the messages
that are missing and remove index entries with no stored message.

Messages that could not be indexed when they were posted become searchable
after a reconcile. If a previous reconcile was interrupted the whole index is
rebuilt instead.`,
		Example: `  # Show what would change
  parley reconcile --dry-run

  # Repair the index
  parley reconcile`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReconcile(cmd.Context(), cmd, dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report differences without changing the index")

	return cmd
}

func newReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the whole search index from the message store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(func(a *app) error {
				out := output.New(cmd.OutOrStdout())
				out.Status("🔄", "Rebuilding index...")
				return reconcileAndReport(cmd.Context(), cmd, a, true)
			})
		},
	}
}

func runReconcile(ctx context.Context, cmd *cobra.Command, dryRun bool) error {
	return withApp(func(a *app) error {
		out := output.New(cmd.OutOrStdout())

		full := async.HasIncompleteReconcile(a.cfg.Paths.DataDir)
		if full && !dryRun {
			out.Warning("A previous reconcile did not finish; rebuilding the whole index")
			return reconcileAndReport(ctx, cmd, a, true)
		}

		result, err := a.checker.Check(ctx)
		if err != nil {
			return err
		}
		printCheck(out, result)

		if result.Consistent() {
			out.Success("Index is consistent with the message store")
			return nil
		}
		if dryRun {
			out.Status("💡", "Run 'parley reconcile' to repair")
			return nil
		}
		return reconcileAndReport(ctx, cmd, a, false)
	})
}

func printCheck(out *output.Writer, result *index.CheckResult) {
	out.Field("Stored", result.Checked)
	out.Field("Indexed", result.Indexed)
	out.Field("Missing", len(result.Missing))
	if len(result.Missing) > 0 {
		out.Field("Missing ids", formatIDs(result.Missing))
	}
	out.Field("Orphans", len(result.Orphans))
	if len(result.Orphans) > 0 {
		out.Field("Orphan ids", formatIDs(result.Orphans))
	}
}

// reconcileAndReport runs a reconcile in the background, drawing progress on
// terminals, then verifies the result.
func reconcileAndReport(ctx context.Context, cmd *cobra.Command, a *app, full bool) error {
	out := output.New(cmd.OutOrStdout())
	tty := ui.IsTTY(cmd.OutOrStdout())

	rec := async.NewBackgroundReconciler(async.ReconcilerConfig{DataDir: a.cfg.Paths.DataDir})
	rec.ReconcileFunc = a.checker.ReconcileFunc(full)
	rec.Start(ctx)

	done := make(chan error, 1)
	go func() { done <- rec.Wait() }()

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	var err error
wait:
	for {
		select {
		case err = <-done:
			break wait
		case <-ticker.C:
			if tty {
				out.Progress(rec.Progress().Snapshot())
			}
		}
	}
	if tty {
		out.Progress(rec.Progress().Snapshot())
		out.ProgressDone()
	}
	if err != nil {
		return err
	}

	ok, err := a.checker.QuickCheck(ctx)
	if err != nil {
		return err
	}
	snap := rec.Progress().Snapshot()
	if !ok {
		out.Warningf("Index still differs from the store after %s. Check the log file.", snap.Stage)
		return nil
	}
	out.Successf("Index is consistent (%d processed in %ds)", snap.Done, snap.ElapsedSeconds)
	return nil
}

func formatIDs(ids []int64) string {
	const shown = 10
	head := lo.Map(ids[:min(len(ids), shown)], func(id int64, _ int) string {
		return strconv.FormatInt(id, 10)
	})
	s := strings.Join(head, ", ")
	if len(ids) > shown {
		s += fmt.Sprintf(" … (+%d more)", len(ids)-shown)
	}
	return s
}
