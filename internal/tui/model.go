// Package tui is a full-screen alternative to the line-oriented query loop.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kailas-cloud/knnsearch/internal/domain"
	"github.com/kailas-cloud/knnsearch/internal/present"
)

// Searcher is the TUI-facing subset of the query engine.
type Searcher interface {
	Search(ctx context.Context, indexName, text string, k, returnCount int) (domain.SearchResult, error)
}

// Options holds the fixed query parameters of a session.
type Options struct {
	Index string
	K     int
	Size  int
}

// resultMsg carries a finished query back into Update.
type resultMsg struct {
	query  string
	result domain.SearchResult
	err    error
}

// Model is the Bubble Tea model for the search screen.
type Model struct {
	ctx      context.Context
	searcher Searcher
	opts     Options
	input    textinput.Model
	viewport viewport.Model
	result   *domain.SearchResult
	status   string
	pending  bool
	ready    bool
}

// New creates a model; ctx bounds every query it issues.
func New(ctx context.Context, searcher Searcher, opts Options) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Enter search query (or 'exit' to quit)"
	ti.Focus()
	ti.CharLimit = 0
	return Model{
		ctx:      ctx,
		searcher: searcher,
		opts:     opts,
		input:    ti,
		viewport: viewport.New(0, 0),
		status:   fmt.Sprintf("Index %s. Type to search.", opts.Index),
	}
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and result events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.viewport.SetContent(m.renderResult())
		return m, nil
	case resultMsg:
		m.pending = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.result = nil
		} else {
			m.status = fmt.Sprintf("Results for %q", msg.query)
			m.result = &msg.result
		}
		m.viewport.SetContent(m.renderResult())
		m.viewport.GotoTop()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if strings.EqualFold(q, "exit") {
				return m, tea.Quit
			}
			if q == "" || m.pending {
				return m, nil
			}
			m.pending = true
			m.status = fmt.Sprintf("Searching %q...", q)
			m.input.SetValue("")
			return m, m.search(q)
		case "up", "down", "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) search(q string) tea.Cmd {
	ctx, searcher, opts := m.ctx, m.searcher, m.opts
	return func() tea.Msg {
		res, err := searcher.Search(ctx, opts.Index, q, opts.K, opts.Size)
		return resultMsg{query: q, result: res, err: err}
	}
}

// View renders the layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("knnsearch · " + m.opts.Index)
	results := resultBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	if strings.HasPrefix(m.status, "Error: ") {
		status = errorStyle.Render(m.status)
	}
	return header + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderResult() string {
	if m.result == nil {
		return "No results yet."
	}
	lines := present.Format(*m.result)
	var b strings.Builder
	b.WriteString(summaryStyle.Render(lines[0]))
	for i, l := range lines[1:] {
		b.WriteString("\n")
		if i == 0 {
			b.WriteString(bestStyle.Render(l))
			continue
		}
		b.WriteString(l)
	}
	return b.String()
}

var (
	headerStyle    = lipgloss.NewStyle().Bold(true)
	summaryStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	bestStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
