package ui

import "github.com/charmbracelet/lipgloss"

type Style struct {
	UnselectedMessage lipgloss.Style
	SelectedMessage   lipgloss.Style
	FocusedMessage    lipgloss.Style

	Header       lipgloss.Style
	Viewer       lipgloss.Style
	Sidebar      lipgloss.Style
	ActiveThread lipgloss.Style
	Cursor       lipgloss.Style
	Reference    lipgloss.Style
	Status       lipgloss.Style
	Error        lipgloss.Style
}

type BorderColors struct {
	Unselected string
	Selected   string
	Focused    string
}

func DefaultStyles() *Style {
	lightModeColors := BorderColors{
		Unselected: "#CCCCCC",
		Selected:   "#FFB6C1", // Light pink
		Focused:    "#FFFF99", // Light yellow
	}

	darkModeColors := BorderColors{
		Unselected: "#444444",
		Selected:   "#DD7090",
		Focused:    "#DDDD77",
	}

	unselected := lipgloss.AdaptiveColor{Light: lightModeColors.Unselected, Dark: darkModeColors.Unselected}
	selected := lipgloss.AdaptiveColor{Light: lightModeColors.Selected, Dark: darkModeColors.Selected}
	focused := lipgloss.AdaptiveColor{Light: lightModeColors.Focused, Dark: darkModeColors.Focused}

	return &Style{
		UnselectedMessage: lipgloss.NewStyle().Border(lipgloss.NormalBorder()).
			Padding(0, 1).
			BorderForeground(unselected),
		SelectedMessage: lipgloss.NewStyle().Border(lipgloss.ThickBorder()).
			Padding(0, 1).
			BorderForeground(selected),
		FocusedMessage: lipgloss.NewStyle().Border(lipgloss.NormalBorder()).
			Padding(0, 1).
			BorderForeground(focused),

		Header: lipgloss.NewStyle().Bold(true),
		Viewer: lipgloss.NewStyle().Foreground(selected),
		Sidebar: lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, true, false, false).
			BorderForeground(unselected).
			PaddingRight(1),
		ActiveThread: lipgloss.NewStyle().Bold(true),
		Cursor:       lipgloss.NewStyle().Foreground(selected),
		Reference:    lipgloss.NewStyle().Faint(true),
		Status:       lipgloss.NewStyle().Faint(true),
		Error:        lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
}
