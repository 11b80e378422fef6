// Package tui is the interactive chat front end.
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"sedar-analyst/internal/agent"
)

// Greeting opens every chat.
const Greeting = "Hello! I'm your financial analyst agent. How can I help you analyze the document?"

// Asker is the TUI-facing subset of the analyst service.
type Asker interface {
	QueryDetailed(ctx context.Context, question string) (agent.Result, error)
}

type role int

const (
	roleAssistant role = iota
	roleUser
	roleError
)

type message struct {
	role role
	text string
}

type answerMsg struct {
	result agent.Result
	err    error
}

// Model is the Bubble Tea model for the chat.
type Model struct {
	asker     Asker
	ctx       context.Context
	input     textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	messages  []message
	lastTrace *agent.Trace
	showTrace bool
	waiting   bool
	ready     bool
	width     int
}

// New creates a chat bound to asker. Queries run under ctx.
func New(ctx context.Context, asker Asker) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the filing and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		asker:    asker,
		ctx:      ctx,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		messages: []message{{role: roleAssistant, text: Greeting}},
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		_, fh := chatBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header, status, input line
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-fh)
		m.refresh()
		return m, nil

	case answerMsg:
		m.waiting = false
		if msg.err != nil {
			m.messages = append(m.messages, message{role: roleError, text: "Error: " + msg.err.Error()})
		} else {
			m.messages = append(m.messages, message{role: roleAssistant, text: msg.result.Answer})
			m.lastTrace = msg.result.Trace
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "ctrl+t":
			m.showTrace = !m.showTrace
			m.refresh()
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.waiting {
				return m, nil
			}
			m.input.SetValue("")
			m.messages = append(m.messages, message{role: roleUser, text: q})
			m.waiting = true
			m.refresh()
			return m, tea.Batch(m.ask(q), m.spinner.Tick)
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(q string) tea.Cmd {
	asker, ctx := m.asker, m.ctx
	return func() tea.Msg {
		res, err := asker.QueryDetailed(ctx, q)
		return answerMsg{result: res, err: err}
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("SEDAR+ Financial Analyst")
	status := "Enter to send · ctrl+t trace · ctrl+c quit"
	if m.waiting {
		status = m.spinner.View() + " Analyzing..."
	}
	return header + "\n" +
		chatBoxStyle.Render(m.viewport.View()) + "\n" +
		queryBoxStyle.Render(m.input.View()) + "\n" +
		statusStyle.Render(status)
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.render())
	m.viewport.GotoBottom()
}

func (m Model) render() string {
	width := max(20, m.width-4)
	var b strings.Builder
	for i, msg := range m.messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch msg.role {
		case roleUser:
			b.WriteString(userStyle.Render("You: "))
			b.WriteString(lipgloss.NewStyle().Width(width).Render(msg.text))
		case roleError:
			b.WriteString(errorStyle.Width(width).Render(msg.text))
		default:
			b.WriteString(agentStyle.Render("Analyst: "))
			b.WriteString(lipgloss.NewStyle().Width(width).Render(msg.text))
		}
	}
	if m.showTrace && m.lastTrace != nil {
		b.WriteString("\n\n")
		b.WriteString(traceStyle.Width(width).Render(m.lastTrace.String()))
	}
	return b.String()
}

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	chatBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	agentStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	traceStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)
