package ui

import (
	"context"
	"log"
	"sync"

	"github.com/aeolun/chatsync/pkg/client"
	tea "github.com/charmbracelet/bubbletea"
)

// Messages delivered from the client loop into the bubbletea program

type ConnectionStateMsg struct {
	Update client.ConnectionStateUpdate
}

type NoticeMsg struct {
	Target client.ChatTarget
	Text   string
}

type TranscriptMsg struct {
	Target client.ChatTarget
	Entry  client.TranscriptEntry
}

type ClearTranscriptMsg struct {
	Target client.ChatTarget
}

type TypingMsg struct {
	Text string
}

type ContactsMsg struct {
	Active   client.ChatTarget
	Contacts []client.Contact
}

type SearchResultsMsg struct {
	Prefix string
	Users  []string
}

type RedirectMsg struct {
	Reason string
}

// rendererQueueSize bounds how far the client may run ahead of the program
const rendererQueueSize = 1024

// ProgramRenderer implements client.Renderer by posting messages to a
// bubbletea program. Messages are queued in order so the client loop never
// waits on the program; calls made before Attach are delivered once attached.
type ProgramRenderer struct {
	queue  chan tea.Msg
	once   sync.Once
	logger *log.Logger
}

var _ client.Renderer = (*ProgramRenderer)(nil)

func NewProgramRenderer() *ProgramRenderer {
	return &ProgramRenderer{queue: make(chan tea.Msg, rendererQueueSize)}
}

// SetLogger sets the logger for dropped messages
func (r *ProgramRenderer) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// Attach starts delivering queued messages to send, normally
// (*tea.Program).Send, until ctx is done. Only the first call has effect.
func (r *ProgramRenderer) Attach(ctx context.Context, send func(tea.Msg)) {
	r.once.Do(func() {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case msg := <-r.queue:
					send(msg)
				}
			}
		}()
	})
}

func (r *ProgramRenderer) post(msg tea.Msg) {
	select {
	case r.queue <- msg:
	default:
		if r.logger != nil {
			r.logger.Printf("Renderer queue full, dropping %T", msg)
		}
	}
}

func (r *ProgramRenderer) ShowConnectionState(update client.ConnectionStateUpdate) {
	r.post(ConnectionStateMsg{Update: update})
}

func (r *ProgramRenderer) ShowNotice(target client.ChatTarget, text string) {
	r.post(NoticeMsg{Target: target, Text: text})
}

func (r *ProgramRenderer) ShowMessage(target client.ChatTarget, entry client.TranscriptEntry) {
	r.post(TranscriptMsg{Target: target, Entry: entry})
}

func (r *ProgramRenderer) ClearTranscript(target client.ChatTarget) {
	r.post(ClearTranscriptMsg{Target: target})
}

func (r *ProgramRenderer) ShowTyping(text string) {
	r.post(TypingMsg{Text: text})
}

func (r *ProgramRenderer) ShowContacts(active client.ChatTarget, contacts []client.Contact) {
	r.post(ContactsMsg{Active: active, Contacts: append([]client.Contact(nil), contacts...)})
}

func (r *ProgramRenderer) ShowSearchResults(prefix string, users []string) {
	r.post(SearchResultsMsg{Prefix: prefix, Users: users})
}

func (r *ProgramRenderer) RedirectToLogin(reason string) {
	r.post(RedirectMsg{Reason: reason})
}
