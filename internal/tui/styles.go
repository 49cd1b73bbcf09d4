package tui

import "github.com/charmbracelet/lipgloss"

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#4D96FF"))

	SuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6BCB77"))
	WarningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD93D"))
	ErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	MutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#4D96FF"))

	// BoxStyle 最终摘要的边框
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4D96FF")).
			Padding(0, 1)
)
