package modal

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// NoticeModal displays a message that must be acknowledged
type NoticeModal struct {
	title   string
	message string
	onClose func() tea.Cmd
}

// NewNoticeModal creates a notice; onClose runs when it is dismissed
func NewNoticeModal(title, message string, onClose func() tea.Cmd) *NoticeModal {
	return &NoticeModal{
		title:   title,
		message: message,
		onClose: onClose,
	}
}

func (m *NoticeModal) Type() ModalType {
	return ModalNotice
}

func (m *NoticeModal) HandleKey(msg tea.KeyMsg) (bool, Modal, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc", " ":
		var cmd tea.Cmd
		if m.onClose != nil {
			cmd = m.onClose()
		}
		return true, nil, cmd
	}
	return true, m, nil
}

func (m *NoticeModal) Render(width, height int) string {
	errorColor := lipgloss.Color("#FF5555")

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(errorColor).
		Align(lipgloss.Center)

	messageStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("252"))

	hintStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	content := titleStyle.Render(m.title) + "\n\n" +
		messageStyle.Render(m.message) + "\n\n" +
		hintStyle.Render("Press Enter or Esc to dismiss")

	modalWidth := 50
	if width < modalWidth+4 {
		modalWidth = width - 4
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(errorColor).
		Padding(1, 2).
		Width(modalWidth - 4).
		Render(content)

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}
