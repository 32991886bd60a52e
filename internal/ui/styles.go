// Package ui provides consistent styling for the displaymgr CLI
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette - consistent across the application
var (
	// Primary colors
	ColorPrimary = lipgloss.Color("39")  // Bright blue
	ColorSuccess = lipgloss.Color("82")  // Green
	ColorWarning = lipgloss.Color("214") // Orange
	ColorError   = lipgloss.Color("196") // Red
	ColorInfo    = lipgloss.Color("86")  // Cyan

	// Neutral colors
	ColorText   = lipgloss.Color("252") // Light gray
	ColorSubtle = lipgloss.Color("241") // Medium gray
	ColorMuted  = lipgloss.Color("238") // Dark gray
)

// Base styles
var (
	textStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	SubtleStyle = lipgloss.NewStyle().
			Foreground(ColorSubtle)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	SubheaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorText)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	warningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	InfoStyle = lipgloss.NewStyle().
			Foreground(ColorInfo)

	keyStyle = lipgloss.NewStyle().
			Foreground(ColorSubtle).
			Width(16)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorSubtle).
			Padding(0, 1)
)

// Icons used across commands
var (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
	IconOn      = "●"
	IconOff     = "○"
)

// FormatAppHeader renders a bold title, an optional subtitle and a separator.
func FormatAppHeader(title, subtitle string) string {
	header := headerStyle.Render(title)
	if subtitle != "" {
		header += " " + SubtleStyle.Render(subtitle)
	}
	return header + "\n" + CreateSeparator(50, "─")
}

// FormatKeyValue renders one aligned "key value" line.
func FormatKeyValue(key, value string) string {
	return keyStyle.Render(key) + textStyle.Render(value)
}

// FormatStatus prefixes status with a filled or hollow indicator.
func FormatStatus(on bool, status string) string {
	if on {
		return SuccessStyle.Render(IconOn) + " " + status
	}
	return ErrorStyle.Render(IconOff) + " " + status
}

// FormatResult renders a one-line outcome.
func FormatResult(ok bool, message string) string {
	if ok {
		return SuccessStyle.Render(iconSuccess) + " " + message
	}
	return ErrorStyle.Render(iconError) + " " + message
}

// FormatWarning renders a one-line warning.
func FormatWarning(message string) string {
	return warningStyle.Render(iconWarning+" "+message)
}

// CreateSeparator creates a horizontal line separator
func CreateSeparator(width int, char string) string {
	if width <= 0 {
		width = 50
	}
	if char == "" {
		char = "─"
	}
	return lipgloss.NewStyle().
		Foreground(ColorSubtle).
		Render(strings.Repeat(char, width))
}
