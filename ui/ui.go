// Package ui is the interactive shell: a live transcript view over a
// call session with a text input for typed turns.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"voxline.dev/call"
	"voxline.dev/transcript"
	"voxline.dev/wire"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#874BFD")).
			Padding(0, 1)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#268BD2"))

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#859900"))

	streamingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#DC322F"))
)

type sessionUpdate struct{}

type model struct {
	session   *call.Session
	viewport  viewport.Model
	textInput textinput.Model
	ready     bool
	notice    string
}

func initialModel(session *call.Session) model {
	ti := textinput.New()
	ti.Placeholder = "Say something..."
	ti.Focus()
	ti.CharLimit = 512
	ti.Width = 80

	return model{
		session:   session,
		textInput: ti,
	}
}

func waitForUpdate(session *call.Session) tea.Cmd {
	return func() tea.Msg {
		<-session.Updates()
		return sessionUpdate{}
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForUpdate(m.session))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.session.Disconnect()
			return m, tea.Quit

		case "ctrl+r":
			m.session.Reset()
			m.notice = ""

		case "enter":
			text := strings.TrimSpace(m.textInput.Value())
			if text == "" {
				break
			}
			if err := m.session.Send(text); err != nil {
				m.notice = errorStyle.Render(err.Error())
			} else {
				m.notice = ""
				m.textInput.SetValue("")
			}
		}

	case tea.WindowSizeMsg:
		headerHeight := lipgloss.Height(m.headerView())
		footerHeight := lipgloss.Height(m.footerView())
		verticalMarginHeight := headerHeight + footerHeight

		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-verticalMarginHeight)
			m.viewport.YPosition = headerHeight
			m.viewport.SetContent(m.transcriptView())
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - verticalMarginHeight
		}
		m.textInput.Width = msg.Width - 4

	case sessionUpdate:
		m.viewport.SetContent(m.transcriptView())
		m.viewport.GotoBottom()
		cmds = append(cmds, waitForUpdate(m.session))
	}

	m.textInput, cmd = m.textInput.Update(msg)
	cmds = append(cmds, cmd)

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}
	return fmt.Sprintf(
		"%s\n%s\n%s",
		m.headerView(),
		m.viewport.View(),
		m.footerView(),
	)
}

func (m model) headerView() string {
	status := m.session.Status().String()
	if ev := m.session.LastEventType(); ev != "" {
		status = fmt.Sprintf("%s · %s", status, ev)
	}
	title := titleStyle.Render(status)
	line := strings.Repeat(
		"─",
		max(0, m.viewport.Width-lipgloss.Width(title)),
	)
	return lipgloss.JoinHorizontal(lipgloss.Center, title, line)
}

func (m model) footerView() string {
	if m.notice != "" {
		return fmt.Sprintf("%s\n%s", m.notice, m.textInput.View())
	}
	return m.textInput.View()
}

func (m model) transcriptView() string {
	var b strings.Builder
	for _, turn := range m.session.Conversation() {
		b.WriteString(renderTurn(turn))
		b.WriteString("\n")
	}
	return b.String()
}

func renderTurn(turn transcript.Turn) string {
	label := "you"
	style := userStyle
	if turn.Role == wire.RoleAssistant {
		label = "assistant"
		style = assistantStyle
	}
	text := turn.Text
	if turn.Phase == transcript.Streaming {
		text = streamingStyle.Render(text + "…")
	}
	return fmt.Sprintf("%s %s", style.Render(label+":"), text)
}

// Run blocks inside the bubbletea program until the user quits.
func Run(session *call.Session) error {
	p := tea.NewProgram(initialModel(session), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
