package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	perrors "github.com/parley-chat/parley/internal/errors"
	"github.com/parley-chat/parley/internal/search"
	"github.com/parley-chat/parley/internal/store"
)

// searchDebounce is how long typing must pause before a query runs.
const searchDebounce = 250 * time.Millisecond

// recentLimit caps the messages shown while the query is empty.
const recentLimit = 20

// BrowseSource provides data to the browse view.
type BrowseSource interface {
	Search(ctx context.Context, query string) ([]*search.SearchResult, error)
	List(ctx context.Context) ([]*store.Message, error)
}

// Browse runs the interactive search view until the user quits.
func Browse(ctx context.Context, source BrowseSource, out io.Writer, noColor bool) error {
	if !IsTTY(out) {
		return fmt.Errorf("browse needs an interactive terminal")
	}

	model := newBrowseModel(ctx, source)
	if noColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}

	var opts []tea.ProgramOption
	if f, ok := out.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	opts = append(opts, tea.WithAltScreen(), tea.WithContext(ctx))

	_, err := tea.NewProgram(model, opts...).Run()
	return err
}

// Message types for bubbletea
type debounceMsg struct{ seq int }

type resultsMsg struct {
	seq     int
	query   string
	results []*search.SearchResult
	err     error
}

type recentMsg struct {
	msgs []*store.Message
	err  error
}

// browseModel is the bubbletea model for interactive search.
type browseModel struct {
	ctx     context.Context
	source  BrowseSource
	input   textinput.Model
	spinner spinner.Model
	styles  Styles
	width   int
	height  int

	seq       int // bumped on every edit; stale replies are dropped
	searching bool
	query     string
	results   []*search.SearchResult
	recent    []*store.Message
	errText   string
}

func newBrowseModel(ctx context.Context, source BrowseSource) *browseModel {
	in := textinput.New()
	in.Placeholder = "search messages"
	in.Prompt = "› "
	in.CharLimit = search.DefaultMaxQueryLength
	in.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime))

	return &browseModel{
		ctx:     ctx,
		source:  source,
		input:   in,
		spinner: s,
		styles:  DefaultStyles(),
		width:   80,
		height:  24,
	}
}

// Init implements tea.Model.
func (m *browseModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.loadRecent())
}

// Update implements tea.Model.
func (m *browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			return m, m.runSearch()
		}

		var cmd tea.Cmd
		before := m.input.Value()
		m.input, cmd = m.input.Update(msg)
		if m.input.Value() == before {
			return m, cmd
		}
		m.seq++
		seq := m.seq
		return m, tea.Batch(cmd, tea.Tick(searchDebounce, func(time.Time) tea.Msg {
			return debounceMsg{seq: seq}
		}))

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = msg.Width - 6

	case debounceMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		return m, m.runSearch()

	case resultsMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		m.searching = false
		m.query = msg.query
		m.results = msg.results
		m.errText = ""
		if msg.err != nil {
			m.results = nil
			m.errText = describeError(msg.err)
		}

	case recentMsg:
		if msg.err != nil {
			m.errText = describeError(msg.err)
			return m, nil
		}
		m.recent = msg.msgs

	case spinner.TickMsg:
		if !m.searching {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// runSearch queries the current input. A blank input shows recent messages
// instead of asking the search service.
func (m *browseModel) runSearch() tea.Cmd {
	query := m.input.Value()
	seq := m.seq
	if strings.TrimSpace(query) == "" {
		m.query = ""
		m.results = nil
		m.errText = ""
		m.searching = false
		return m.loadRecent()
	}

	m.searching = true
	ctx, source := m.ctx, m.source
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		results, err := source.Search(ctx, query)
		return resultsMsg{seq: seq, query: query, results: results, err: err}
	})
}

func (m *browseModel) loadRecent() tea.Cmd {
	ctx, source := m.ctx, m.source
	return func() tea.Msg {
		msgs, err := source.List(ctx)
		if len(msgs) > recentLimit {
			msgs = msgs[:recentLimit]
		}
		return recentMsg{msgs: msgs, err: err}
	}
}

// View implements tea.Model.
func (m *browseModel) View() string {
	contentWidth := m.width - 4
	if contentWidth < 40 {
		contentWidth = 40
	}

	var sections []string
	sections = append(sections, m.input.View())
	sections = append(sections, m.styles.Dim.Render(strings.Repeat("─", contentWidth-2)))

	switch {
	case m.errText != "":
		sections = append(sections, m.styles.Error.Render(m.errText))
	case m.searching:
		sections = append(sections, m.spinner.View()+" searching…")
	case m.query != "":
		sections = append(sections, m.renderResults()...)
	default:
		sections = append(sections, m.renderRecent()...)
	}

	panel := m.styles.Panel.Width(contentWidth).Render(strings.Join(sections, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Header.Render("Parley"),
		panel,
		m.styles.Dim.Render("enter search now  │  esc quit"),
	)
}

func (m *browseModel) renderResults() []string {
	if len(m.results) == 0 {
		return []string{m.styles.Label.Render(fmt.Sprintf("No messages found for %q", m.query))}
	}
	lines := []string{m.styles.Label.Render(fmt.Sprintf("%d result(s)", len(m.results)))}
	for _, r := range m.results {
		sender, body := resultFields(r, m.styles.Mark)
		lines = append(lines, fmt.Sprintf("%s %s %s",
			m.styles.Time.Render(formatTime(r.CreatedAt)),
			m.styles.Sender.Render(sender+":"),
			body))
	}
	return lines
}

func (m *browseModel) renderRecent() []string {
	if len(m.recent) == 0 {
		return []string{m.styles.Label.Render("No messages yet.")}
	}
	lines := []string{m.styles.Label.Render("Recent messages")}
	for _, msg := range m.recent {
		lines = append(lines, fmt.Sprintf("%s %s %s",
			m.styles.Time.Render(formatTime(msg.CreatedAt)),
			m.styles.Sender.Render(msg.SenderName+":"),
			oneLine(msg.Body)))
	}
	return lines
}

// describeError renders an error for the status line. Unavailability is
// expected and gets a short message.
func describeError(err error) string {
	switch {
	case perrors.IsSearchUnavailable(err):
		return "Search is temporarily unavailable. Try again shortly."
	case perrors.IsValidation(err):
		if pe, ok := perrors.As(err); ok {
			return pe.Message
		}
	}
	return err.Error()
}
