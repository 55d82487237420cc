package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4")).
			MarginBottom(1)

	statusOnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	statusOffStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true)
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	matchStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	missStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))

	fieldStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
)
