package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/parley-chat/parley/internal/search"
	"github.com/parley-chat/parley/internal/store"
)

// Printer writes messages and search results as styled text.
type Printer struct {
	out    io.Writer
	styles Styles
}

// NewPrinter creates a printer. Color is used only for terminals.
func NewPrinter(out io.Writer, noColor bool) *Printer {
	return &Printer{out: out, styles: GetStyles(noColor || !UseColor(out))}
}

// Messages prints messages in the given order.
func (p *Printer) Messages(msgs []*store.Message) {
	if len(msgs) == 0 {
		_, _ = fmt.Fprintln(p.out, p.styles.Dim.Render("No messages yet."))
		return
	}
	for _, m := range msgs {
		_, _ = fmt.Fprintln(p.out, p.line(m.ID, m.SenderName, m.Body, m.CreatedAt))
	}
}

// Results prints search results, showing highlighted fragments in place of
// the raw fields when the index returned them.
func (p *Printer) Results(query string, results []*search.SearchResult) {
	if len(results) == 0 {
		_, _ = fmt.Fprintf(p.out, "No messages found for %q\n", query)
		return
	}
	_, _ = fmt.Fprintln(p.out, p.styles.Header.Render(fmt.Sprintf("%d result(s) for %q", len(results), query)))
	for _, r := range results {
		_, _ = fmt.Fprintln(p.out, p.result(r))
	}
}

func (p *Printer) result(r *search.SearchResult) string {
	sender, body := resultFields(r, p.styles.Mark)
	return fmt.Sprintf("%s %s %s %s",
		p.styles.Dim.Render(fmt.Sprintf("#%d", r.ID)),
		p.styles.Time.Render(formatTime(r.CreatedAt)),
		p.styles.Sender.Render(sender+":"),
		body)
}

// resultFields renders the sender and body of r. Highlight fragments are
// HTML-escaped by the index; raw field values are printed as stored.
func resultFields(r *search.SearchResult, mark lipgloss.Style) (sender, body string) {
	sender, body = oneLine(r.SenderName), oneLine(r.Body)
	if r.Highlight == nil {
		return sender, body
	}
	if len(r.Highlight.SenderName) > 0 {
		sender = RenderMarks(oneLine(r.DisplaySenderName()), mark)
	}
	if len(r.Highlight.Body) > 0 {
		body = RenderMarks(oneLine(r.DisplayBody()), mark)
	}
	return sender, body
}

func (p *Printer) line(id int64, sender, body string, at time.Time) string {
	return fmt.Sprintf("%s %s %s %s",
		p.styles.Dim.Render(fmt.Sprintf("#%d", id)),
		p.styles.Time.Render(formatTime(at)),
		p.styles.Sender.Render(sender+":"),
		oneLine(body))
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

// oneLine collapses newlines so each message prints on one row.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
