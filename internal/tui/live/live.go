// Package live is the dashboard shown while a run is in progress.
package live

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"vuload/internal/runner"
	"vuload/internal/stats"
	"vuload/internal/tui/components"
	"vuload/internal/tui/styles"
)

// UpdateMsg carries one scheduler tick and the registry snapshot taken with it.
type UpdateMsg struct {
	Tick     runner.Tick
	Snapshot *stats.Snapshot
	At       time.Time
}

// StateMsg reports a lifecycle state change by name.
type StateMsg string

type Model struct {
	Tick     runner.Tick
	Snap     *stats.Snapshot
	State    string
	Progress progress.Model

	RpsLine     components.Sparkline
	LatencyLine components.Sparkline

	LastUpdate time.Time
	LastReqs   float64

	Width  int
	Height int
}

func NewModel() Model {
	return Model{
		Progress:    progress.New(progress.WithDefaultGradient()),
		RpsLine:     components.NewSparkline(40, "req/s", styles.Active),
		LatencyLine: components.NewSparkline(40, "http_req_duration p(95) ms", styles.Warn),
		State:       "not started",
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case UpdateMsg:
		reqs := 0.0
		if msg.Snapshot != nil {
			if v, ok := msg.Snapshot.Get(stats.MetricHTTPReqs); ok {
				reqs = v.Sum
			}
			if v, ok := msg.Snapshot.Get(stats.MetricHTTPReqDuration); ok {
				p95, _ := v.Percentile(95)
				m.LatencyLine.Add(p95)
			}
		}
		if !m.LastUpdate.IsZero() {
			dt := max(msg.At.Sub(m.LastUpdate).Seconds(), 0.01)
			m.RpsLine.Add((reqs - m.LastReqs) / dt)
		}

		m.Tick = msg.Tick
		m.Snap = msg.Snapshot
		m.LastReqs = reqs
		m.LastUpdate = msg.At
		return m, m.Progress.SetPercent(m.Percent())

	case StateMsg:
		m.State = string(msg)
		return m, nil

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Progress.Width = msg.Width - 4

		half := max(msg.Width/2-6, 10)
		m.RpsLine.Width = half
		m.LatencyLine.Width = half
		return m, nil

	case progress.FrameMsg:
		prog, cmd := m.Progress.Update(msg)
		m.Progress = prog.(progress.Model)
		return m, cmd
	}

	return m, nil
}

// Percent is the elapsed fraction of the profile.
func (m Model) Percent() float64 {
	if m.Tick.Total <= 0 {
		return 0
	}
	return min(float64(m.Tick.Elapsed)/float64(m.Tick.Total), 1)
}

func (m Model) rate(name string) float64 {
	if m.Snap == nil {
		return 0
	}
	v, _ := m.Snap.Get(name)
	r, _ := v.Rate()
	return r
}

func (m Model) View() string {
	s := strings.Builder{}

	var iterations float64
	if m.Snap != nil {
		if v, ok := m.Snap.Get(stats.MetricIterations); ok {
			iterations = v.Sum
		}
	}

	col1 := fmt.Sprintf("VUs:  %d/%d\nSTAGE: %d", m.Tick.Live, m.Tick.Target, m.Tick.Stage+1)
	col2 := fmt.Sprintf("REQ:  %.0f\nITER: %.0f", m.LastReqs, iterations)

	failed := m.rate(stats.MetricHTTPReqFailed) * 100
	errColor := styles.Active
	if failed > 5.0 {
		errColor = styles.Error
	} else if failed > 1.0 {
		errColor = styles.Warn
	}
	col3 := fmt.Sprintf("FAILED: %.2f%%\nERRORS: %.2f%%", failed, m.rate(stats.MetricErrors)*100)
	col4 := fmt.Sprintf("CHECKS: %.2f%%\nSTATE:  %s", m.rate(stats.MetricChecks)*100, m.State)

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(col1),
		styles.Box.Render(col2),
		styles.Box.Render(errColor.Render(col3)),
		styles.Box.Render(col4),
	))
	s.WriteString("\n\n")

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(m.RpsLine.View()),
		styles.Box.Render(m.LatencyLine.View()),
	))
	s.WriteString("\n\n")

	s.WriteString(styles.Subtle.Render(fmt.Sprintf("%s / %s",
		m.Tick.Elapsed.Round(time.Second), m.Tick.Total.Round(time.Second))))
	s.WriteString("\n")
	s.WriteString(m.Progress.ViewAs(m.Percent()))

	return s.String()
}
