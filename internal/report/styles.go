// Package report renders the structured run summary emitted after every
// pipeline run, regardless of partial failure.
package report

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	// SuccessColor indicates successful operations.
	SuccessColor = lipgloss.Color("#4ECDC4") // Teal
	// WarningColor indicates warnings or caution messages.
	WarningColor = lipgloss.Color("#FFE66D") // Yellow
	// ErrorColor indicates errors or failure messages.
	ErrorColor = lipgloss.Color("#FF6B6B") // Red
	// SubtleColor indicates less prominent UI elements.
	SubtleColor = lipgloss.Color("#666666") // Gray

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#95E1D3")).
			MarginBottom(1)

	successStyle = lipgloss.NewStyle().
			Foreground(SuccessColor)

	warningStyle = lipgloss.NewStyle().
			Foreground(WarningColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor)

	subtleStyle = lipgloss.NewStyle().
			Foreground(SubtleColor)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#333")).
			Padding(1, 2)
)
