package styles

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	ColorPrimary   = lipgloss.Color("#7D56F4")
	ColorSecondary = lipgloss.Color("#04B575")
	ColorError     = lipgloss.Color("#FF5F87")
	ColorWarning   = lipgloss.Color("#FFAF00")
	ColorText      = lipgloss.Color("#FAFAFA")
	ColorSubtle    = lipgloss.Color("#767676")
	ColorBorder    = lipgloss.Color("#3C3C3C")
	ColorBanner    = lipgloss.Color("#AD8CFF")
)

var (
	Title = lipgloss.NewStyle().
		Foreground(ColorPrimary).
		Bold(true).
		Padding(0, 1).
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(ColorSubtle)

	Subtle = lipgloss.NewStyle().Foreground(ColorSubtle)
	Active = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)

	Error   = lipgloss.NewStyle().Foreground(ColorError)
	Warn    = lipgloss.NewStyle().Foreground(ColorWarning)
	Success = lipgloss.NewStyle().Foreground(ColorSecondary).Bold(true)

	keyKey  = lipgloss.NewStyle().Foreground(ColorText).Bold(true)
	keyDesc = lipgloss.NewStyle().Foreground(ColorSubtle)

	// Box is the card around every dashboard and summary block.
	Box = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(0, 1).
		Margin(0, 1)

	pass = lipgloss.NewStyle().Foreground(lipgloss.Color("#1A1A1A")).Background(ColorSecondary).Bold(true).Padding(0, 1)
	fail = lipgloss.NewStyle().Foreground(ColorText).Background(ColorError).Bold(true).Padding(0, 1)
)

// RenderKey renders a key hint like "<q> quit".
func RenderKey(key, desc string) string {
	return lipgloss.JoinHorizontal(lipgloss.Center,
		keyKey.Render("<"+key+">"),
		" ",
		keyDesc.Render(desc),
	)
}

func Mark(ok bool) string {
	if ok {
		return Success.Render("✓")
	}
	return Error.Render("✗")
}

// Verdict renders the PASS/FAIL badge of a run.
func Verdict(passed bool) string {
	if passed {
		return pass.Render("PASS")
	}
	return fail.Render("FAIL")
}
