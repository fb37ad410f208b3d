package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"vuload/internal/stats"
	"vuload/internal/tui/styles"
)

// Text renders the end-of-test summary for a terminal.
func Text(s *Summary) string {
	var b strings.Builder

	title := fmt.Sprintf("📊 %s run complete", s.Plan)
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Center, styles.Title.Render(title), " ", styles.Verdict(s.Passed)))
	b.WriteString("\n\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, overviewBox(s), latencyBox(s)))
	b.WriteString("\n")

	if s.SetupError != "" {
		b.WriteString(styles.Warn.Render("setup: " + s.SetupError))
		b.WriteString("\n")
	}
	if s.TeardownError != "" {
		b.WriteString(styles.Warn.Render("teardown: " + s.TeardownError))
		b.WriteString("\n")
	}

	if len(s.Checks) > 0 {
		b.WriteString("\n")
		b.WriteString(styles.Active.Render("Checks"))
		b.WriteString("\n")
		for _, c := range s.Checks {
			line := fmt.Sprintf("  %s %s", styles.Mark(c.Fails == 0), c.Name)
			if c.Fails > 0 {
				line += styles.Subtle.Render(fmt.Sprintf("  %d/%d passed (%.1f%%)", c.Passes, c.Passes+c.Fails, c.Rate()*100))
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	if len(s.Thresholds) > 0 {
		b.WriteString("\n")
		b.WriteString(styles.Active.Render("Thresholds"))
		b.WriteString("\n")
		for _, r := range s.Thresholds {
			detail := fmt.Sprintf("observed %s", formatFloat(r.Observed))
			switch {
			case r.NoData:
				detail = "no data"
			case r.Note != "":
				detail = r.Note
			}
			b.WriteString(fmt.Sprintf("  %s %s: %s  %s\n", styles.Mark(r.Passed), r.Metric, r.Expr, styles.Subtle.Render(detail)))
		}
	}

	return b.String()
}

// WriteText writes Text(s) to w.
func WriteText(w io.Writer, s *Summary) error {
	_, err := io.WriteString(w, Text(s)+"\n")
	return err
}

func overviewBox(s *Summary) string {
	passes, fails := s.CheckTotals()
	rows := []string{
		fmt.Sprintf("Target:     %s", s.BaseURL),
		fmt.Sprintf("Duration:   %s", s.Duration.Round(time.Second)),
		fmt.Sprintf("Max VUs:    %d", s.MaxVUs),
		fmt.Sprintf("Iterations: %d", s.Iterations),
		fmt.Sprintf("Requests:   %.0f (%.1f/s)", s.Value(stats.MetricHTTPReqs, "count"), s.Value(stats.MetricHTTPReqs, "rate")),
		fmt.Sprintf("Failed:     %.2f%%", s.Value(stats.MetricHTTPReqFailed, "rate")*100),
		fmt.Sprintf("Errors:     %.2f%%", s.Value(stats.MetricErrors, "rate")*100),
		fmt.Sprintf("Checks:     %d ✓ %d ✗", passes, fails),
	}
	return lipgloss.JoinVertical(lipgloss.Left, styles.Active.Render("Overview"), styles.Box.Render(strings.Join(rows, "\n")))
}

func latencyBox(s *Summary) string {
	var rows []string
	for _, key := range []string{"avg", "min", "med", "p(90)", "p(95)", "p(99)", "max"} {
		rows = append(rows, fmt.Sprintf("%-6s %8.2f ms", key+":", s.Value(stats.MetricHTTPReqDuration, key)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, styles.Active.Render("Latency (http_req_duration)"), styles.Box.Render(strings.Join(rows, "\n")))
}

func formatFloat(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.4g", v)
}
