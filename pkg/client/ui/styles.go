package ui

import "github.com/charmbracelet/lipgloss"

var (
	PrimaryColor   = lipgloss.Color("205")
	SecondaryColor = lipgloss.Color("86")
	MutedColor     = lipgloss.Color("240")
	SuccessColor   = lipgloss.Color("46")
	WarningColor   = lipgloss.Color("214")
	ErrorColor     = lipgloss.Color("#FF5555")
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor).
			Padding(0, 1)

	StatusStyle = lipgloss.NewStyle().
			Foreground(SecondaryColor).
			Padding(0, 1)

	FooterStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Padding(0, 1)

	MutedTextStyle = lipgloss.NewStyle().Foreground(MutedColor)

	SidebarStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(MutedColor).
			Padding(0, 1)

	TranscriptStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(MutedColor).
			Padding(0, 1)

	ActiveTargetStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(PrimaryColor)

	UnreadStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(WarningColor)

	MessageAuthorStyle    = lipgloss.NewStyle().Foreground(SecondaryColor)
	MessageOwnAuthorStyle = lipgloss.NewStyle().Bold(true).Foreground(SuccessColor)
	NoticeStyle           = lipgloss.NewStyle().Italic(true).Foreground(WarningColor)
	TypingStyle           = lipgloss.NewStyle().Italic(true).Foreground(MutedColor)
	FileStyle             = lipgloss.NewStyle().Underline(true).Foreground(SecondaryColor)
)

// stateStyle colors the connection indicator
func stateStyle(open, failed bool) lipgloss.Style {
	switch {
	case open:
		return lipgloss.NewStyle().Foreground(SuccessColor)
	case failed:
		return lipgloss.NewStyle().Foreground(ErrorColor)
	default:
		return lipgloss.NewStyle().Foreground(WarningColor)
	}
}
