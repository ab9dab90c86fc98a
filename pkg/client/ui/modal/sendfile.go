package modal

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// SendFileModal asks for the path of a local file to upload into the active chat
type SendFileModal struct {
	target string
	input  textinput.Model
	onSend func(path string) tea.Cmd
}

// NewSendFileModal creates the prompt. target labels the destination chat.
func NewSendFileModal(target string, onSend func(path string) tea.Cmd) *SendFileModal {
	input := textinput.New()
	input.Placeholder = "/path/to/file"
	input.CharLimit = 4096
	input.Width = 44
	input.Focus()
	return &SendFileModal{target: target, input: input, onSend: onSend}
}

func (m *SendFileModal) Type() ModalType {
	return ModalSendFile
}

// Path returns the path typed so far
func (m *SendFileModal) Path() string {
	return strings.TrimSpace(m.input.Value())
}

func (m *SendFileModal) HandleKey(msg tea.KeyMsg) (bool, Modal, tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+c":
		return true, nil, nil
	case "enter":
		path := m.Path()
		if path == "" || m.onSend == nil {
			return true, m, nil
		}
		return true, nil, m.onSend(path)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return true, m, cmd
}

func (m *SendFileModal) Render(width, height int) string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205"))

	hintStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	content := lipgloss.JoinVertical(
		lipgloss.Left,
		titleStyle.Render("Send File to "+m.target),
		"",
		m.input.View(),
		"",
		hintStyle.Render("[Enter] Upload  [Esc] Cancel"),
	)

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("205")).
		Padding(1, 2).
		Width(54).
		Render(content)

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}
