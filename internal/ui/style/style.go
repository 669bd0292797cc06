// Package style provides shared UI styling primitives for log and status output.
package style

import "github.com/charmbracelet/lipgloss"

// Colors.
var (
	Slate  = lipgloss.Color("#667085")
	Green  = lipgloss.Color("#22A06B")
	Red    = lipgloss.Color("#D93025")
	Yellow = lipgloss.Color("#F59E0B")
	Iris   = lipgloss.Color("#8B5CF6")
)

// Icons.
const (
	Check   = "✓"
	Cross   = "✗"
	Warning = "!"
	Dot     = "●"
	Circle  = "○"
)

// StateColor returns the color used to render an install state name.
func StateColor(state string) lipgloss.Color {
	switch state {
	case "installed":
		return Green
	case "installing-error":
		return Red
	case "installing", "to-install":
		return Yellow
	default:
		return Slate
	}
}
