package cli

import "github.com/charmbracelet/lipgloss"

const appVersion = "0.3.0"

// terminal color palette for status and table rendering.
var (
	colorCyan    = lipgloss.Color("#00D7FF")
	colorDimCyan = lipgloss.Color("#00AFAF")
	colorGray    = lipgloss.Color("#6C6C6C")
	colorWhite   = lipgloss.Color("#FFFFFF")
	colorDim     = lipgloss.Color("#4E4E4E")
	colorGreen   = lipgloss.Color("#00FF87")
	colorYellow  = lipgloss.Color("#FFD75F")
	colorRed     = lipgloss.Color("#FF5F5F")
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(colorCyan).Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(colorGray)
	valueStyle = lipgloss.NewStyle().Foreground(colorWhite)
	dimStyle   = lipgloss.NewStyle().Foreground(colorDim)
	greenStyle = lipgloss.NewStyle().Foreground(colorGreen)
	yellowStyle = lipgloss.NewStyle().Foreground(colorYellow)
	redStyle   = lipgloss.NewStyle().Foreground(colorRed)
)

// statusStyle colors a session/run status word consistently across every
// rendered table.
func statusStyle(status string) lipgloss.Style {
	switch status {
	case "running":
		return yellowStyle.Bold(true)
	case "completed":
		return greenStyle.Bold(true)
	case "failed", "error":
		return redStyle.Bold(true)
	case "stopped":
		return dimStyle
	default:
		return valueStyle
	}
}
