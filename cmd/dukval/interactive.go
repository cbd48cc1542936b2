package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ThomasKrenn/dukglue/roots"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const historyLimit = 12

type interactiveModel struct {
	session *session
	input   textinput.Model
	history []string
}

func newInteractiveModel(s *session) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = "push 42"
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = 64

	return &interactiveModel{
		session: s,
		input:   ti,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if line == "" {
				return m, nil
			}
			if line == "quit" || line == "exit" {
				return m, tea.Quit
			}

			m.record(promptStyle.Render("> " + line))
			out, err := m.session.exec(line)
			switch {
			case err != nil:
				m.record(errorStyle.Render(err.Error()))
			case out != "":
				for _, l := range strings.Split(out, "\n") {
					m.record(resultStyle.Render(l))
				}
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *interactiveModel) record(line string) {
	m.history = append(m.history, line)
	if len(m.history) > historyLimit {
		m.history = m.history[len(m.history)-historyLimit:]
	}
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("dukval - script value bridge inspector"))
	b.WriteString("\n\n")

	b.WriteString(panelStyle.Render("stack (top first):"))
	b.WriteByte('\n')
	b.WriteString(panelStyle.Render(indent(m.session.describeStack())))
	b.WriteString("\n\n")

	b.WriteString(panelStyle.Render(fmt.Sprintf("roots: table length %d, free head %d",
		roots.Len(m.session.ctx), roots.FreeHead(m.session.ctx))))
	b.WriteString("\n\n")

	for _, line := range m.history {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	b.WriteString(m.input.View())
	b.WriteByte('\n')
	b.WriteString(helpStyle.Render("'help' for commands, esc to quit"))
	b.WriteByte('\n')

	return b.String()
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}

func runInteractive(s *session) error {
	p := tea.NewProgram(newInteractiveModel(s))
	_, err := p.Run()
	return err
}
