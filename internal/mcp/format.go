package mcp

import (
	"fmt"
	"strings"
	"time"

	"github.com/parley-chat/parley/internal/index"
	"github.com/parley-chat/parley/internal/search"
	"github.com/parley-chat/parley/internal/store"
)

// FormatSearchResults formats search results as markdown. Highlighted
// fragments are shown in place of the raw field when present.
func FormatSearchResults(query string, results []*search.SearchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No messages found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %s\n\n", plural(len(results), "message"))

	for i, r := range results {
		if r == nil {
			continue
		}
		fmt.Fprintf(&sb, "### %d. %s (#%d, %s)\n\n",
			i+1, r.DisplaySenderName(), r.ID, formatTime(r.CreatedAt))
		sb.WriteString(quote(r.DisplayBody()))
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// FormatMessages formats a message listing as markdown, newest first.
func FormatMessages(msgs []*store.Message) string {
	if len(msgs) == 0 {
		return "No messages yet."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Messages\n\n%s\n\n", plural(len(msgs), "message"))
	for _, m := range msgs {
		fmt.Fprintf(&sb, "**%s** (#%d, %s)\n\n", m.SenderName, m.ID, formatTime(m.CreatedAt))
		sb.WriteString(quote(m.Body))
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// FormatStatus formats a status report as markdown.
func FormatStatus(r *index.StatusReport) string {
	var sb strings.Builder
	sb.WriteString("## Index Status\n\n")
	fmt.Fprintf(&sb, "- **Messages:** %d\n", r.Messages)
	fmt.Fprintf(&sb, "- **Indexed:** %d\n", r.Indexed)
	if r.Consistent {
		sb.WriteString("- **Consistent:** yes\n")
	} else {
		sb.WriteString("- **Consistent:** no (run `parley reconcile`)\n")
	}
	fmt.Fprintf(&sb, "- **Retry queue:** %d\n", r.QueueDepth)
	if r.Breaker != "" {
		fmt.Fprintf(&sb, "- **Search breaker:** %s\n", r.Breaker)
	}
	if r.Reconcile != nil {
		fmt.Fprintf(&sb, "- **Reconcile:** %s", r.Reconcile.Status)
		if r.Reconcile.Stage != "" {
			fmt.Fprintf(&sb, " (%s, %.1f%%)", r.Reconcile.Stage, r.Reconcile.ProgressPct)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func quote(text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n")
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
