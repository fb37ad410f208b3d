// Package tui hosts the interactive run dashboard.
package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"vuload/internal/tui/live"
	"vuload/internal/tui/styles"
)

// DoneMsg is sent once the run, teardown included, has finished.
type DoneMsg struct{}

// Model wraps the live dashboard with a header and the stop key. Stop is
// called once when the user asks to end the run early.
type Model struct {
	Plan    string
	BaseURL string
	Live    live.Model
	Stop    func()

	Stopping bool
	Done     bool
	Width    int
	Height   int
}

func NewModel(plan, baseURL string, stop func()) Model {
	return Model{
		Plan:    plan,
		BaseURL: baseURL,
		Live:    live.NewModel(),
		Stop:    stop,
	}
}

func (m Model) Init() tea.Cmd {
	return m.Live.Init()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if !m.Stopping && m.Stop != nil {
				m.Stop()
			}
			m.Stopping = true
			return m, nil
		}

	case DoneMsg:
		m.Done = true
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.Live, cmd = m.Live.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.Done {
		return ""
	}

	s := strings.Builder{}
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Center,
		styles.Title.Render("vuload · "+m.Plan),
		"  ",
		styles.Subtle.Render(m.BaseURL),
	))
	s.WriteString("\n\n")
	s.WriteString(m.Live.View())
	s.WriteString("\n\n")

	if m.Stopping {
		s.WriteString(styles.Warn.Render("Stopping: waiting for iterations and teardown..."))
	} else {
		s.WriteString(styles.RenderKey("q", "stop run"))
	}
	return s.String()
}
