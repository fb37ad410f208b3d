// Package history browses stored runs.
package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"vuload/internal/storage"
	"vuload/internal/tui/styles"
)

// Lister is the part of the store the view needs.
type Lister interface {
	List() ([]storage.Record, error)
}

type Model struct {
	Store   Lister
	Table   table.Model
	Records []storage.Record
	Err     error

	// Detail is set while a record is expanded with enter.
	Detail *storage.Record

	Width  int
	Height int
}

func NewModel(store Lister) Model {
	columns := []table.Column{
		{Title: "Time", Width: 20},
		{Title: "Plan", Width: 8},
		{Title: "Result", Width: 6},
		{Title: "Reqs", Width: 10},
		{Title: "Failed", Width: 8},
		{Title: "p(95)", Width: 10},
		{Title: "VUs", Width: 6},
		{Title: "Target", Width: 30},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	m := Model{
		Store: store,
		Table: t,
	}
	m.Refresh()
	return m
}

func (m *Model) Refresh() {
	m.Records, m.Err = m.Store.List()
	rows := make([]table.Row, len(m.Records))

	for i, rec := range m.Records {
		result := "pass"
		if !rec.Passed {
			result = "fail"
		}
		rows[i] = table.Row{
			rec.Timestamp.Local().Format(time.DateTime),
			rec.Plan,
			result,
			fmt.Sprintf("%d", rec.Summary.Requests),
			fmt.Sprintf("%.2f%%", rec.Summary.FailedRate*100),
			fmt.Sprintf("%.1f ms", rec.Summary.P95LatencyMs),
			fmt.Sprintf("%d", rec.Summary.MaxVUs),
			rec.BaseURL,
		}
	}
	m.Table.SetRows(rows)
}

// Selected returns the highlighted record, if any.
func (m Model) Selected() *storage.Record {
	i := m.Table.Cursor()
	if i < 0 || i >= len(m.Records) {
		return nil
	}
	return &m.Records[i]
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Table.SetWidth(msg.Width - 4)
		m.Table.SetHeight(max(msg.Height-8, 5))

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "esc":
			m.Detail = nil
			return m, nil
		case "enter":
			m.Detail = m.Selected()
			return m, nil
		case "r":
			m.Refresh()
			return m, nil
		}
	}

	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	var s strings.Builder
	s.WriteString(styles.Title.Render("Run history"))
	s.WriteString("\n")
	if m.Err != nil {
		s.WriteString(styles.Error.Render(m.Err.Error()))
		s.WriteString("\n")
	}
	if m.Detail != nil {
		s.WriteString(styles.Box.Render(Detail(*m.Detail)))
	} else {
		s.WriteString(styles.Box.Render(m.Table.View()))
	}
	s.WriteString("\n")
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Center,
		styles.RenderKey("enter", "details"), "  ",
		styles.RenderKey("esc", "back"), "  ",
		styles.RenderKey("r", "refresh"), "  ",
		styles.RenderKey("q", "quit"),
	))
	return s.String()
}

// Detail renders every field of one record.
func Detail(rec storage.Record) string {
	sum := rec.Summary
	rows := []string{
		fmt.Sprintf("ID:         %s", rec.ID),
		fmt.Sprintf("Time:       %s", rec.Timestamp.Local().Format(time.RFC1123)),
		fmt.Sprintf("Plan:       %s  %s", rec.Plan, styles.Verdict(rec.Passed)),
		fmt.Sprintf("Target:     %s", rec.BaseURL),
		fmt.Sprintf("Duration:   %s", sum.Duration.Round(time.Second)),
		fmt.Sprintf("Requests:   %d", sum.Requests),
		fmt.Sprintf("Iterations: %d", sum.Iterations),
		fmt.Sprintf("Max VUs:    %d", sum.MaxVUs),
		fmt.Sprintf("Failed:     %.2f%%", sum.FailedRate*100),
		fmt.Sprintf("Errors:     %.2f%%", sum.ErrorRate*100),
		fmt.Sprintf("Latency:    avg %.2f  p(95) %.2f  p(99) %.2f ms", sum.AvgLatencyMs, sum.P95LatencyMs, sum.P99LatencyMs),
		fmt.Sprintf("Checks:     %d ✓ %d ✗", sum.ChecksPassed, sum.ChecksFailed),
	}
	if rec.SetupErr != "" {
		rows = append(rows, styles.Warn.Render("Setup:      "+rec.SetupErr))
	}
	for _, f := range rec.Failed {
		rows = append(rows, styles.Error.Render("✗ "+f))
	}
	return strings.Join(rows, "\n")
}
