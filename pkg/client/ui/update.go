package ui

import (
	"strings"

	"github.com/aeolun/chatsync/pkg/client"
	"github.com/aeolun/chatsync/pkg/client/ui/modal"
	tea "github.com/charmbracelet/bubbletea"
)

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		// header, typing line, input and footer plus the transcript border
		m.transcript.Width = max(20, msg.Width-sidebarWidth-6)
		m.transcript.Height = max(3, msg.Height-7)
		m.input.Width = max(10, msg.Width-4)
		m.refreshTranscript()
		return m, nil

	case ConnectionStateMsg:
		m.connection = msg.Update
		return m, nil

	case ClearTranscriptMsg:
		m.active = msg.Target
		m.lines = nil
		m.typing = ""
		m.refreshTranscript()
		return m, nil

	case TranscriptMsg:
		if msg.Target != m.active {
			m.logf("Dropping transcript entry for inactive chat %s", msg.Target)
			return m, nil
		}
		m.lines = append(m.lines, transcriptLine{entry: msg.Entry})
		m.refreshTranscript()
		return m, nil

	case NoticeMsg:
		if msg.Target != m.active {
			return m, nil
		}
		m.lines = append(m.lines, transcriptLine{notice: msg.Text})
		m.refreshTranscript()
		return m, nil

	case TypingMsg:
		m.typing = msg.Text
		return m, nil

	case ContactsMsg:
		m.active = msg.Active
		m.contacts = msg.Contacts
		return m, nil

	case SearchResultsMsg:
		if search, ok := m.modalStack.Top().(*modal.SearchModal); ok {
			search.SetResults(msg.Prefix, msg.Users)
		}
		return m, nil

	case RedirectMsg:
		if m.redirected {
			return m, nil
		}
		m.redirected = true
		m.modalStack.Clear()
		m.modalStack.Push(modal.NewNoticeModal(
			"Session ended",
			redirectMessage(msg.Reason),
			func() tea.Cmd { return tea.Quit },
		))
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func redirectMessage(reason string) string {
	switch reason {
	case "logged out":
		return "You have been logged out. Press Enter to exit."
	default:
		return "Your session has expired or is invalid. Please log in again."
	}
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	if top := m.modalStack.Top(); top != nil {
		_, next, cmd := top.HandleKey(msg)
		if next != top {
			m.modalStack.Replace(next)
		}
		return m, cmd
	}
	if m.redirected {
		return m, nil
	}

	switch msg.String() {
	case "enter":
		text := m.input.Value()
		if strings.TrimSpace(text) == "" {
			return m, nil
		}
		m.intents.SendMessage(text)
		m.input.Reset()
		return m, nil

	case "tab":
		m.intents.SwitchChat(m.neighbor(1))
		return m, nil

	case "shift+tab":
		m.intents.SwitchChat(m.neighbor(-1))
		return m, nil

	case "ctrl+g":
		m.intents.SwitchChat(client.General)
		return m, nil

	case "ctrl+n":
		m.modalStack.Push(modal.NewSearchModal(
			func(prefix string) tea.Cmd {
				m.intents.Search(prefix)
				return nil
			},
			func(user string) tea.Cmd {
				m.intents.SwitchChat(client.Private(user))
				return nil
			},
		))
		return m, nil

	case "ctrl+f":
		m.modalStack.Push(modal.NewSendFileModal(m.active.String(), func(path string) tea.Cmd {
			m.intents.SendFile(path)
			return nil
		}))
		return m, nil

	case "ctrl+l":
		m.intents.Logout()
		return m, nil

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.transcript, cmd = m.transcript.Update(msg)
		return m, cmd

	case "?":
		if m.input.Value() == "" {
			m.modalStack.Push(modal.NewHelpModal(shortcuts()))
			return m, nil
		}
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if after := m.input.Value(); after != before {
		if after == "" {
			m.intents.InputCleared()
		} else {
			m.intents.Keystroke()
		}
	}
	return m, cmd
}

// refreshTranscript re-renders the transcript and follows the newest line
func (m *Model) refreshTranscript() {
	m.transcript.SetContent(m.buildTranscript())
	m.transcript.GotoBottom()
}
