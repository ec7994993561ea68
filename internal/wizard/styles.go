package wizard

import (
	"github.com/charmbracelet/lipgloss"
)

// Palette shared with the status table of the CLI.
var (
	cyan  = lipgloss.Color("86")
	green = lipgloss.Color("42")
	red   = lipgloss.Color("196")
	blue  = lipgloss.Color("75")
	gray  = lipgloss.Color("240")
)

var (
	labelStyle    = lipgloss.NewStyle().Foreground(gray)
	infoStyle     = lipgloss.NewStyle().Foreground(blue)
	errorStyle    = lipgloss.NewStyle().Foreground(red).Bold(true)
	selectedStyle = lipgloss.NewStyle().Foreground(green).Bold(true)

	// borderStyle frames every wizard screen.
	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(gray).
			Padding(1, 2)

	titleStyle   = lipgloss.NewStyle().Foreground(cyan).Bold(true).Padding(0, 1)
	sectionStyle = lipgloss.NewStyle().Foreground(cyan).Bold(true).MarginTop(1)
	doneStyle    = lipgloss.NewStyle().Foreground(green).Bold(true)
	hintStyle    = lipgloss.NewStyle().Foreground(gray).Italic(true).MarginTop(1)
	noteStyle    = lipgloss.NewStyle().
			Foreground(blue).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1).
			MarginTop(1)
)

const (
	iconCheck   = "✓"
	iconSpinner = "⏳"
	iconArrow   = "►"
)

func renderHeader(text string) string        { return titleStyle.Render("🔧 " + text) }
func renderSectionHeader(text string) string { return sectionStyle.Render("📋 " + text) }
func renderSuccess(text string) string       { return doneStyle.Render(iconCheck + " " + text) }
func renderError(text string) string         { return errorStyle.Render("✗ " + text) }
func renderInfo(text string) string          { return noteStyle.Render("💡 " + text) }
func renderStatusBar(text string) string     { return hintStyle.Render(text) }

func renderOption(selected bool, text string) string {
	if selected {
		return selectedStyle.Render(iconArrow + " " + text)
	}
	return labelStyle.Render("  " + text)
}
