// Package ui renders messages and search results in the terminal, including
// the interactive browse view.
package ui

import (
	"html"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

const (
	markOpen  = "<mark>"
	markClose = "</mark>"
)

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}

	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}

	return false
}

// DetectNoColor checks if NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}

// UseColor reports whether w should receive colored output.
func UseColor(w io.Writer) bool {
	return IsTTY(w) && !DetectNoColor() && !DetectCI()
}

// RenderMarks replaces <mark>…</mark> spans in a highlight fragment with
// mark-styled text and decodes the HTML entities the highlighter escaped.
// Unbalanced tags are dropped.
func RenderMarks(fragment string, mark lipgloss.Style) string {
	var sb strings.Builder
	rest := fragment
	for {
		start := strings.Index(rest, markOpen)
		if start < 0 {
			sb.WriteString(unescape(rest))
			return sb.String()
		}
		sb.WriteString(unescape(rest[:start]))
		rest = rest[start+len(markOpen):]

		end := strings.Index(rest, markClose)
		if end < 0 {
			sb.WriteString(mark.Render(unescape(rest)))
			return sb.String()
		}
		sb.WriteString(mark.Render(unescape(rest[:end])))
		rest = rest[end+len(markClose):]
	}
}

func unescape(s string) string {
	return html.UnescapeString(strings.ReplaceAll(s, markClose, ""))
}
