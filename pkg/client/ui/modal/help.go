package modal

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Shortcut is one line of the help overlay
type Shortcut struct {
	Keys        string
	Description string
}

// HelpModal lists keyboard shortcuts
type HelpModal struct {
	shortcuts []Shortcut
}

func NewHelpModal(shortcuts []Shortcut) *HelpModal {
	return &HelpModal{shortcuts: shortcuts}
}

func (m *HelpModal) Type() ModalType {
	return ModalHelp
}

func (m *HelpModal) HandleKey(msg tea.KeyMsg) (bool, Modal, tea.Cmd) {
	switch msg.String() {
	case "esc", "enter", "?", "q":
		return true, nil, nil
	}
	return true, m, nil
}

func (m *HelpModal) Render(width, height int) string {
	keyStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	descStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("252"))

	var lines []string
	for _, s := range m.shortcuts {
		lines = append(lines, fmt.Sprintf("%s  %s", keyStyle.Render(fmt.Sprintf("%-12s", s.Keys)), descStyle.Render(s.Description)))
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("205")).
		Padding(1, 2).
		Render(lipgloss.NewStyle().Bold(true).Render("Keyboard Shortcuts") + "\n\n" + strings.Join(lines, "\n"))

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}
