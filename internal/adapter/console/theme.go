package console

import "github.com/charmbracelet/lipgloss"

var (
	colorSuccess = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"}
	colorError   = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#e65100", Dark: "#ffa726"}
	colorInfo    = lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"}
	colorAccent  = lipgloss.AdaptiveColor{Light: "#6a1b9a", Dark: "#ce93d8"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}
	colorBorder  = lipgloss.AdaptiveColor{Light: "#bdbdbd", Dark: "#616161"}
)

var (
	styleCompanion = lipgloss.NewStyle().Foreground(colorAccent)
	styleUser      = lipgloss.NewStyle().Bold(true)
	styleInfo      = lipgloss.NewStyle().Foreground(colorInfo)
	styleSuccess   = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	styleWarning   = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	styleError     = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	styleMuted     = lipgloss.NewStyle().Foreground(colorMuted)

	styleStatus = lipgloss.NewStyle().
			Foreground(colorMuted).
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(colorBorder)
	stylePrompt = lipgloss.NewStyle().Foreground(colorInfo).Bold(true)
)
