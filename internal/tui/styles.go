package tui

import (
	"strings"

	"charm.land/lipgloss/v2"
)

// Corvid purple for branding.
const corvidPurple = "#7D56F4"

// CORVID ASCII art banner.
var corvidArt = []string{
	" ██████╗ ██████╗ ██████╗ ██╗   ██╗██╗██████╗ ",
	"██╔════╝██╔═══██╗██╔══██╗██║   ██║██║██╔══██╗",
	"██║     ██║   ██║██████╔╝██║   ██║██║██║  ██║",
	"██║     ██║   ██║██╔══██╗╚██╗ ██╔╝██║██║  ██║",
	"╚██████╗╚██████╔╝██║  ██║ ╚████╔╝ ██║██████╔╝",
	" ╚═════╝ ╚═════╝ ╚═╝  ╚═╝  ╚═══╝  ╚═╝╚═════╝ ",
}

// Styles contains all lipgloss styles for the TUI.
type Styles struct {
	Banner    lipgloss.Style
	User      lipgloss.Style
	Assistant lipgloss.Style
	System    lipgloss.Style
	Tips      lipgloss.Style
	Error     lipgloss.Style
	Prompt    lipgloss.Style
	Separator lipgloss.Style
	StatusBar lipgloss.Style
}

// DefaultStyles returns the default style configuration.
func DefaultStyles() Styles {
	return Styles{
		Banner:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(corvidPurple)),
		User:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		Assistant: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		System:    lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("240")),
		Tips:      lipgloss.NewStyle().Foreground(lipgloss.Color("255")),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Prompt:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		Separator: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		StatusBar: lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
	}
}

// RenderBanner returns the CORVID ASCII art banner.
func (s Styles) RenderBanner() string {
	var b strings.Builder
	for _, line := range corvidArt {
		_, _ = b.WriteString(s.Banner.Render(line))
		_, _ = b.WriteString("\n")
	}
	return b.String()
}

var welcomeTips = []string{
	"Tips for getting started:",
	"  • Ask about products, orders, or anything in the knowledge base",
	"  • Use /new to start a fresh conversation, /help for commands",
	"  • Press Ctrl+C to cancel, Ctrl+D to exit",
	"  • Up/Down arrows navigate message history",
}

// RenderWelcomeTips returns the styled tips shown under the banner.
func (s Styles) RenderWelcomeTips() string {
	var b strings.Builder
	for _, tip := range welcomeTips {
		_, _ = b.WriteString(s.Tips.Render(tip))
		_, _ = b.WriteString("\n")
	}
	return b.String()
}
