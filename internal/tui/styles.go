package tui

import "github.com/charmbracelet/lipgloss"

type styles struct {
	header   lipgloss.Style
	selected lipgloss.Style
	dim      lipgloss.Style
	date     lipgloss.Style
	self     lipgloss.Style
	peer     lipgloss.Style
	unread   lipgloss.Style
	online   lipgloss.Style
	status   lipgloss.Style
	errStyle lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")).Padding(0, 1),
		selected: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		dim:      lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		date:     lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true),
		self:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		peer:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		unread:   lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("212")).Padding(0, 1),
		online:   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		status:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1),
		errStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Padding(0, 1),
	}
}
