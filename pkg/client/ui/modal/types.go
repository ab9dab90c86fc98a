package modal

import (
	tea "github.com/charmbracelet/bubbletea"
)

// ModalType uniquely identifies each modal type
type ModalType int

const (
	ModalNone ModalType = iota // no modal active
	ModalSearch
	ModalSendFile
	ModalNotice
	ModalHelp
)

func (m ModalType) String() string {
	switch m {
	case ModalNone:
		return "None"
	case ModalSearch:
		return "Search"
	case ModalSendFile:
		return "SendFile"
	case ModalNotice:
		return "Notice"
	case ModalHelp:
		return "Help"
	default:
		return "Unknown"
	}
}

// Modal represents a modal dialog
type Modal interface {
	Type() ModalType

	// HandleKey processes keyboard input when this modal is active.
	// newModal is nil to close, the same modal to stay open, or a replacement.
	HandleKey(msg tea.KeyMsg) (handled bool, newModal Modal, cmd tea.Cmd)

	// Render returns the modal content placed within width x height
	Render(width, height int) string
}

// ModalStack manages the stack of active modals
type ModalStack struct {
	stack []Modal
}

// Push adds m on top, replacing any open modal of the same type
func (ms *ModalStack) Push(m Modal) {
	ms.RemoveByType(m.Type())
	ms.stack = append(ms.stack, m)
}

// Pop removes and returns the top modal, nil when empty
func (ms *ModalStack) Pop() Modal {
	if len(ms.stack) == 0 {
		return nil
	}
	m := ms.stack[len(ms.stack)-1]
	ms.stack = ms.stack[:len(ms.stack)-1]
	return m
}

// Top returns the active modal without removing it
func (ms *ModalStack) Top() Modal {
	if len(ms.stack) == 0 {
		return nil
	}
	return ms.stack[len(ms.stack)-1]
}

// TopType returns the type of the active modal, or ModalNone if empty
func (ms *ModalStack) TopType() ModalType {
	if m := ms.Top(); m != nil {
		return m.Type()
	}
	return ModalNone
}

// Replace swaps the top modal for next; a nil next closes it
func (ms *ModalStack) Replace(next Modal) {
	ms.Pop()
	if next != nil {
		ms.stack = append(ms.stack, next)
	}
}

func (ms *ModalStack) RemoveByType(t ModalType) {
	filtered := ms.stack[:0]
	for _, m := range ms.stack {
		if m.Type() != t {
			filtered = append(filtered, m)
		}
	}
	ms.stack = filtered
}

func (ms *ModalStack) Clear() {
	ms.stack = nil
}

func (ms *ModalStack) IsEmpty() bool {
	return len(ms.stack) == 0
}

func (ms *ModalStack) Size() int {
	return len(ms.stack)
}
