package ui

import (
	"log"

	"github.com/aeolun/chatsync/pkg/client"
	"github.com/aeolun/chatsync/pkg/client/ui/modal"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// Intents are the user actions the model forwards to the client.
// Every method must return without waiting on the network.
type Intents interface {
	SendMessage(text string)
	SwitchChat(target client.ChatTarget)
	Keystroke()
	InputCleared()
	SendFile(path string)
	Search(prefix string)
	Logout()
}

var _ Intents = (*client.Client)(nil)

const sidebarWidth = 24

// transcriptLine is either a chat entry or a local notice
type transcriptLine struct {
	entry  client.TranscriptEntry
	notice string
}

// Model represents the terminal client state
type Model struct {
	intents Intents
	self    string
	logger  *log.Logger

	width  int
	height int

	connection client.ConnectionStateUpdate
	active     client.ChatTarget
	contacts   []client.Contact
	lines      []transcriptLine
	typing     string
	redirected bool

	input      textinput.Model
	transcript viewport.Model
	modalStack modal.ModalStack
}

// NewModel creates the model for self; intents receives every user action
func NewModel(intents Intents, self string, logger *log.Logger) Model {
	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.CharLimit = 4096
	input.Prompt = "> "
	input.Focus()

	return Model{
		intents:    intents,
		self:       self,
		logger:     logger,
		active:     client.General,
		input:      input,
		transcript: viewport.New(0, 0),
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) logf(format string, args ...interface{}) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}

// Active returns the chat shown in the transcript
func (m Model) Active() client.ChatTarget {
	return m.active
}

// Redirected reports whether the session ended and the user must log in again
func (m Model) Redirected() bool {
	return m.redirected
}

// targets lists General followed by the contacts in sidebar order
func (m Model) targets() []client.ChatTarget {
	targets := make([]client.ChatTarget, 0, len(m.contacts)+1)
	targets = append(targets, client.General)
	for _, c := range m.contacts {
		targets = append(targets, client.Private(c.ID))
	}
	return targets
}

// neighbor returns the target delta steps from the active one, wrapping around
func (m Model) neighbor(delta int) client.ChatTarget {
	targets := m.targets()
	current := 0
	for i, t := range targets {
		if t == m.active {
			current = i
			break
		}
	}
	next := (current + delta + len(targets)) % len(targets)
	return targets[next]
}

func shortcuts() []modal.Shortcut {
	return []modal.Shortcut{
		{Keys: "enter", Description: "Send message"},
		{Keys: "tab/shift+tab", Description: "Next/previous chat"},
		{Keys: "ctrl+n", Description: "Find a user"},
		{Keys: "ctrl+f", Description: "Send a file"},
		{Keys: "ctrl+g", Description: "Back to general"},
		{Keys: "pgup/pgdown", Description: "Scroll transcript"},
		{Keys: "ctrl+l", Description: "Log out"},
		{Keys: "?", Description: "This help (empty input)"},
		{Keys: "ctrl+c", Description: "Quit"},
	}
}
