package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Terminal colors shared by every view.
const (
	ColorAccent  = "12"
	ColorSuccess = "10"
	ColorWarning = "11"
	ColorError   = "9"
	ColorMuted   = "8"
	ColorPlain   = "7"
)

var (
	Title  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent))
	Header = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)).Padding(0, 1)
	Footer = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorMuted)).Italic(true)
	Muted  = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorMuted))
)

// Colorize renders text in one of the terminal colors above.
func Colorize(text string, color string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(text)
}

// StateColor maps a download state or event kind to a color.
func StateColor(state string) string {
	switch state {
	case "completed", "complete", "installed":
		return ColorSuccess
	case "cancelled", "progress":
		return ColorWarning
	case "interrupted", "failed", "missing":
		return ColorError
	default:
		return ColorPlain
	}
}

// PhaseColor maps a scan phase to a color. Unknown phases use the accent.
func PhaseColor(phase string) string {
	switch phase {
	case "complete":
		return ColorSuccess
	case "fallback":
		return ColorWarning
	default:
		return ColorAccent
	}
}
