package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"pdf-analyzer/internal/models"
	"pdf-analyzer/internal/session"
)

// Asker is the TUI-facing subset of the pipeline service.
type Asker interface {
	Ask(ctx context.Context, sess *session.Session, question string) (models.Turn, error)
}

type answerMsg struct {
	turn models.Turn
	err  error
}

// Model is the Bubble Tea model for the interactive question loop.
type Model struct {
	ctx      context.Context
	asker    Asker
	sess     *session.Session
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	markdown *glamour.TermRenderer
	turn     *models.Turn
	summary  string
	status   string
	thinking bool
	ready    bool
}

// New creates the model for an already processed session.
func New(ctx context.Context, asker Asker, sess *session.Session, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question about your documents and press Enter"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctx:      ctx,
		asker:    asker,
		sess:     sess,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		summary:  summary,
		status:   "Documents processed. Ask away.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, bh := answerBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header and summary, status, spacer
		m.viewport.Width = max(20, msg.Width-answerBoxStyle.GetHorizontalFrameSize())
		m.viewport.Height = max(3, msg.Height-reserved-bh)
		m.markdown, _ = glamour.NewTermRenderer(
			glamour.WithStylePath("dracula"),
			glamour.WithWordWrap(m.viewport.Width),
		)
		m.viewport.SetContent(m.renderTurn())
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.thinking {
				return m, nil
			}
			m.thinking = true
			m.status = fmt.Sprintf("Thinking about %q", q)
			m.input.Reset()
			return m, tea.Batch(m.spinner.Tick, m.ask(q))
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case answerMsg:
		m.thinking = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		m.turn = &msg.turn
		m.status = fmt.Sprintf("%d question(s) answered", m.sess.Len())
		if warnings := msg.turn.Record.Links.Warnings(); len(warnings) > 0 {
			m.status += " | " + strings.Join(warnings, "; ")
		}
		m.viewport.SetContent(m.renderTurn())
		m.viewport.GotoTop()
		return m, nil

	case spinner.TickMsg:
		if !m.thinking {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("PDF Analyzer")
	summary := dimStyle.Render(m.summary)
	body := answerBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	if m.thinking {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + summary + "\n" + body + "\n" + input + "\n" + status
}

func (m Model) ask(question string) tea.Cmd {
	return func() tea.Msg {
		turn, err := m.asker.Ask(m.ctx, m.sess, question)
		return answerMsg{turn: turn, err: err}
	}
}

func (m Model) renderTurn() string {
	if m.turn == nil {
		return "No questions yet."
	}
	rec := m.turn.Record

	var b strings.Builder
	b.WriteString(labelStyle.Render("Question: ") + rec.Question + "\n\n")
	b.WriteString(m.renderMarkdown(rec.Answer))
	b.WriteString("\n" + renderLinks("Web links", rec.Links.Web))
	b.WriteString(renderLinks("Video links", rec.Links.Video))

	if len(m.turn.Previous) > 0 {
		b.WriteString("\n" + labelStyle.Render("Previous questions") + "\n")
		for _, prev := range m.turn.Previous {
			b.WriteString(dimStyle.Render("Q: "+prev.Question) + "\n")
			b.WriteString("A: " + prev.Answer + "\n")
			b.WriteString(renderLinks("Web links", prev.Links.Web))
			b.WriteString(renderLinks("Video links", prev.Links.Video) + "\n")
		}
	}
	return b.String()
}

func (m Model) renderMarkdown(text string) string {
	if m.markdown == nil {
		return text + "\n"
	}
	out, err := m.markdown.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}

func renderLinks(title string, res models.LinkResult) string {
	var b strings.Builder
	b.WriteString(labelStyle.Render(title) + "\n")
	switch {
	case res.Failed():
		b.WriteString(dimStyle.Render("  unavailable") + "\n")
	case len(res.URLs) == 0:
		b.WriteString(dimStyle.Render("  none found") + "\n")
	default:
		for _, u := range res.URLs {
			b.WriteString("  " + u + "\n")
		}
	}
	return b.String()
}

var (
	answerBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	headerStyle    = lipgloss.NewStyle().Bold(true)
	labelStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)
