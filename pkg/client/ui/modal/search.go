package modal

import (
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// MinSearchLength is the shortest prefix sent to the server
const MinSearchLength = 2

// SearchModal looks users up by prefix and opens a private chat with the
// selected one. Results arrive asynchronously through SetResults.
type SearchModal struct {
	query         string
	results       []string
	selectedIndex int
	onQuery       func(prefix string) tea.Cmd
	onSelect      func(user string) tea.Cmd
}

// NewSearchModal creates a search modal. onQuery runs on every query
// change; onSelect runs when a result is chosen.
func NewSearchModal(onQuery func(prefix string) tea.Cmd, onSelect func(user string) tea.Cmd) *SearchModal {
	return &SearchModal{onQuery: onQuery, onSelect: onSelect}
}

func (m *SearchModal) Type() ModalType {
	return ModalSearch
}

// Query returns the current search text
func (m *SearchModal) Query() string {
	return m.query
}

// Results returns the results shown for the current query
func (m *SearchModal) Results() []string {
	return m.results
}

// SetResults shows users for prefix. Results for any other prefix are stale and dropped.
func (m *SearchModal) SetResults(prefix string, users []string) {
	if prefix != m.query {
		return
	}
	m.results = users
	if m.selectedIndex >= len(m.results) {
		m.selectedIndex = max(0, len(m.results)-1)
	}
}

func (m *SearchModal) HandleKey(msg tea.KeyMsg) (bool, Modal, tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+c":
		return true, nil, nil

	case "up", "ctrl+p":
		if m.selectedIndex > 0 {
			m.selectedIndex--
		}
		return true, m, nil

	case "down", "ctrl+n":
		if m.selectedIndex < len(m.results)-1 {
			m.selectedIndex++
		}
		return true, m, nil

	case "enter":
		if len(m.results) > 0 && m.onSelect != nil {
			return true, nil, m.onSelect(m.results[m.selectedIndex])
		}
		return true, m, nil

	case "backspace":
		if m.query == "" {
			return true, m, nil
		}
		_, size := utf8.DecodeLastRuneInString(m.query)
		return true, m, m.setQuery(m.query[:len(m.query)-size])

	default:
		if msg.Type == tea.KeyRunes {
			return true, m, m.setQuery(m.query + string(msg.Runes))
		}
		return true, m, nil
	}
}

func (m *SearchModal) setQuery(query string) tea.Cmd {
	m.query = query
	m.results = nil
	m.selectedIndex = 0
	if m.onQuery == nil {
		return nil
	}
	return m.onQuery(query)
}

func (m *SearchModal) Render(width, height int) string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205"))

	searchStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("170")).
		Padding(0, 1).
		Width(46)

	hintStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	selectedStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205"))

	userStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("46"))

	modalStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("205")).
		Padding(1, 2).
		Width(54).
		Height(min(height-4, 20))

	var searchDisplay string
	if m.query == "" {
		searchDisplay = "█" + hintStyle.Render(" Type at least 2 characters...")
	} else {
		searchDisplay = m.query + "█"
	}

	var userLines []string
	switch {
	case utf8.RuneCountInString(m.query) < MinSearchLength:
		userLines = append(userLines, hintStyle.Render("Keep typing to search"))
	case len(m.results) == 0:
		userLines = append(userLines, hintStyle.Render("No users match your search"))
	default:
		maxVisible := 10
		start := 0
		if len(m.results) > maxVisible {
			start = m.selectedIndex - maxVisible/2
			if start < 0 {
				start = 0
			}
			if start+maxVisible > len(m.results) {
				start = len(m.results) - maxVisible
			}
		}
		end := min(start+maxVisible, len(m.results))

		for i := start; i < end; i++ {
			if i == m.selectedIndex {
				userLines = append(userLines, "> "+selectedStyle.Render(m.results[i]))
			} else {
				userLines = append(userLines, "  "+userStyle.Render(m.results[i]))
			}
		}
		if start > 0 {
			userLines = append([]string{hintStyle.Render("  ↑ more users above")}, userLines...)
		}
		if end < len(m.results) {
			userLines = append(userLines, hintStyle.Render("  ↓ more users below"))
		}
	}

	content := lipgloss.JoinVertical(
		lipgloss.Left,
		titleStyle.Render("Find User"),
		"",
		searchStyle.Render(searchDisplay),
		"",
		lipgloss.JoinVertical(lipgloss.Left, userLines...),
		"",
		hintStyle.Render("[↑/↓] Navigate  [Enter] Open chat  [Esc] Cancel"),
	)

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, modalStyle.Render(content))
}
