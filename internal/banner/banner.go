package banner

import (
	"vuload/internal/tui/styles"

	"github.com/charmbracelet/lipgloss"
)

func GetString() string {
	renderer := lipgloss.DefaultRenderer()

	style := renderer.NewStyle().
		Foreground(styles.ColorBanner).
		Bold(true)

	ascii := `
                 __                __
 _   ____  __   / /   ____  ____ _/ /
| | / / / / /  / /   / __ \/ __ '/ __ /
| |/ / /_/ /  / /___/ /_/ / /_/ / /_/ /
|___/\__,_/  /_____/\____/\__,_/\__,_/ `

	return "\n" + style.Render(ascii) + "\n"
}
