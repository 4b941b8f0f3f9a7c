// Package tui is the terminal chat front end.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/0xcro3dile/neuroscholar/internal/domain/entities"
	"github.com/0xcro3dile/neuroscholar/internal/domain/ports"
	"github.com/0xcro3dile/neuroscholar/internal/domain/usecases"
)

// ErrEmptyLibrary is returned when there is nothing to chat about.
var ErrEmptyLibrary = errors.New("upload documents and run the index command first")

// Asker runs one chat turn.
type Asker interface {
	Ask(ctx context.Context, question string) (*entities.ChatResponse, error)
}

// Session binds a conversation to the library and a provider.
type Session struct {
	Library      *usecases.Library
	Chat         *usecases.ChatUseCase
	Conversation *usecases.Conversation
	Provider     *ports.Provider
}

// Ask opens the index on first use and answers question.
func (s *Session) Ask(ctx context.Context, question string) (*entities.ChatResponse, error) {
	res := s.Library.Open(ctx, s.Provider)
	switch res.State {
	case usecases.IndexEmpty:
		return nil, ErrEmptyLibrary
	case usecases.IndexFailed:
		return nil, res.Err
	}
	return s.Conversation.Ask(ctx, s.Chat, s.Provider, s.Library, question)
}

// answerMsg carries the result of an Ask back into Update.
type answerMsg struct {
	resp *entities.ChatResponse
	err  error
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	ctx      context.Context
	asker    Asker
	input    textinput.Model
	viewport viewport.Model
	messages []entities.ChatMessage
	summary  string
	status   string
	busy     bool
	ready    bool
}

// New creates the chat model. The welcome message opens the transcript.
func New(ctx context.Context, asker Asker, welcome, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about methods, results or conclusions"
	ti.Focus()
	ti.CharLimit = 0

	m := Model{
		ctx:      ctx,
		asker:    asker,
		input:    ti,
		viewport: viewport.New(0, 0),
		summary:  summary,
		status:   "Ready. Enter sends, Ctrl+C quits.",
	}
	if welcome != "" {
		m.messages = append(m.messages, entities.ChatMessage{Role: entities.RoleAssistant, Content: welcome})
	}
	return m
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles window, key and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		reserved := 2 + 1 + ih + 1 // header and summary, status, spacer
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil

	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			// The question was not recorded.
			m.messages = m.messages[:len(m.messages)-1]
		} else {
			m.messages = append(m.messages, entities.ChatMessage{Role: entities.RoleAssistant, Content: msg.resp.Answer})
			m.status = sourcesLine(msg.resp.Sources)
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.input.Reset()
			m.busy = true
			m.status = "Thinking..."
			m.messages = append(m.messages, entities.ChatMessage{Role: entities.RoleUser, Content: q})
			m.refresh()
			return m, m.ask(q)
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(question string) tea.Cmd {
	return func() tea.Msg {
		resp, err := m.asker.Ask(m.ctx, question)
		return answerMsg{resp: resp, err: err}
	}
}

// View renders the transcript, input and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("NeuroScholar")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	transcript := transcriptStyle.Render(m.viewport.View())
	input := inputStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	return header + "\n" + summary + "\n" + transcript + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	width := max(10, m.viewport.Width-2)
	parts := make([]string, 0, len(m.messages))
	for _, msg := range m.messages {
		label, style := "assistant", assistantStyle
		if msg.Role == entities.RoleUser {
			label, style = "you", userStyle
		}
		parts = append(parts, style.Render(label)+"\n"+lipgloss.NewStyle().Width(width).Render(msg.Content))
	}
	return strings.Join(parts, "\n\n")
}

func sourcesLine(sources []entities.QueryResult) string {
	if len(sources) == 0 {
		return "No sources retrieved."
	}
	seen := make(map[string]bool, len(sources))
	var names []string
	for _, s := range sources {
		if !seen[s.SourceDoc] {
			seen[s.SourceDoc] = true
			names = append(names, s.SourceDoc)
		}
	}
	return fmt.Sprintf("Sources: %s", strings.Join(names, ", "))
}

var (
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)
