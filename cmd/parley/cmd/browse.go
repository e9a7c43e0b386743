package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/parley-chat/parley/internal/search"
	"github.com/parley-chat/parley/internal/store"
	"github.com/parley-chat/parley/internal/ui"
)

func newBrowseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Search messages interactively as you type",
		Long: `Open a full-screen view that searches as you type.

With an empty query the most recent messages are shown. Press Esc or Ctrl+C
to quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(func(a *app) error {
				return ui.Browse(cmd.Context(), browseSource{a}, cmd.OutOrStdout(), noColor)
			})
		},
	}
}

// browseSource serves the browse view from an open app.
type browseSource struct {
	a *app
}

func (s browseSource) Search(ctx context.Context, query string) ([]*search.SearchResult, error) {
	return s.a.search.Search(ctx, query)
}

func (s browseSource) List(ctx context.Context) ([]*store.Message, error) {
	return s.a.coordinator.List(ctx)
}
