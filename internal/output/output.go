// Package output provides consistent CLI status output: icon-prefixed
// lines, key/value blocks, JSON documents and reconcile progress.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/parley-chat/parley/internal/async"
	"github.com/parley-chat/parley/internal/index"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out io.Writer
}

// New creates a new output Writer.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Field prints an aligned "label: value" line.
func (w *Writer) Field(label string, value any) {
	_, _ = fmt.Fprintf(w.out, "   %-16s %v\n", label+":", value)
}

// JSON writes v as indented JSON followed by a newline.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// StatusReport prints a status report as a human-readable block.
func (w *Writer) StatusReport(r *index.StatusReport) {
	w.Field("Messages", r.Messages)
	w.Field("Indexed", r.Indexed)
	w.Field("Retry queue", r.QueueDepth)
	if r.Breaker != "" {
		w.Field("Search breaker", r.Breaker)
	}
	for _, state := range slices.Sorted(maps.Keys(r.States)) {
		w.Field("State "+state, r.States[state])
	}
	if r.Reconcile != nil {
		w.Field("Reconcile", r.Reconcile.Status)
	}
	if r.Consistent {
		w.Success("Index is consistent with the message store")
	} else {
		w.Warningf("Index differs from the message store by %d. Run 'parley reconcile'.",
			abs(r.Messages-r.Indexed))
	}
}

// Progress prints an in-place progress bar for a reconcile snapshot.
func (w *Writer) Progress(snap async.ReconcileProgressSnapshot) {
	if snap.Total <= 0 {
		_, _ = fmt.Fprintf(w.out, "\r%s…", snap.Stage)
		return
	}

	bar := renderProgressBar(snap.Done, snap.Total, 30)
	_, _ = fmt.Fprintf(w.out, "\r[%s] %3.0f%% %s %d/%d", bar, snap.ProgressPct, snap.Stage, snap.Done, snap.Total)
}

// ProgressDone completes a progress line with newline.
func (w *Writer) ProgressDone() {
	_, _ = fmt.Fprintln(w.out)
}

// renderProgressBar creates a text progress bar.
func renderProgressBar(current, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}

	filled := int(float64(current) / float64(total) * float64(width))
	filled = max(0, min(filled, width))

	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
