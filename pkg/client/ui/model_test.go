package ui

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/aeolun/chatsync/pkg/client"
	"github.com/aeolun/chatsync/pkg/client/ui/modal"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingIntents records every user action forwarded by the model
type recordingIntents struct {
	sent     []string
	switches []client.ChatTarget
	keys     int
	cleared  int
	files    []string
	searches []string
	logouts  int
}

func (r *recordingIntents) SendMessage(text string) { r.sent = append(r.sent, text) }
func (r *recordingIntents) SwitchChat(target client.ChatTarget) {
	r.switches = append(r.switches, target)
}
func (r *recordingIntents) Keystroke()           { r.keys++ }
func (r *recordingIntents) InputCleared()        { r.cleared++ }
func (r *recordingIntents) SendFile(path string) { r.files = append(r.files, path) }
func (r *recordingIntents) Search(prefix string) { r.searches = append(r.searches, prefix) }
func (r *recordingIntents) Logout()              { r.logouts++ }

func newTestModel(t *testing.T) (Model, *recordingIntents) {
	t.Helper()
	intents := &recordingIntents{}
	m := NewModel(intents, "alice", log.New(io.Discard, "", 0))
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model), intents
}

func update(t *testing.T, m Model, msgs ...tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, msg := range msgs {
		var next tea.Model
		next, cmd = m.Update(msg)
		m = next.(Model)
	}
	return m, cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func key(k tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: k}
}

func TestTypingForwardsKeystrokes(t *testing.T) {
	m, intents := newTestModel(t)

	m, _ = update(t, m, runes("h"), runes("i"))
	assert.Equal(t, 2, intents.keys)
	assert.Equal(t, 0, intents.cleared)

	m, _ = update(t, m, key(tea.KeyBackspace), key(tea.KeyBackspace))
	assert.Equal(t, 3, intents.keys)
	assert.Equal(t, 1, intents.cleared)

	// nothing left to delete
	_, _ = update(t, m, key(tea.KeyBackspace))
	assert.Equal(t, 1, intents.cleared)
}

func TestEnterSendsAndResetsInput(t *testing.T) {
	m, intents := newTestModel(t)

	m, _ = update(t, m, key(tea.KeyEnter))
	assert.Empty(t, intents.sent)

	m, _ = update(t, m, runes("hello"), key(tea.KeyEnter))
	assert.Equal(t, []string{"hello"}, intents.sent)
	assert.Empty(t, m.input.Value())
}

func TestTranscriptFollowsActiveChat(t *testing.T) {
	m, _ := newTestModel(t)
	entry := client.TranscriptEntry{Sender: "bob", Content: "hi", Timestamp: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)}

	m, _ = update(t, m, TranscriptMsg{Target: client.General, Entry: entry})
	require.Len(t, m.lines, 1)

	m, _ = update(t, m,
		TranscriptMsg{Target: client.Private("bob"), Entry: entry},
		NoticeMsg{Target: client.Private("bob"), Text: "User not found."},
	)
	assert.Len(t, m.lines, 1)

	m, _ = update(t, m, ClearTranscriptMsg{Target: client.Private("bob")})
	assert.Equal(t, client.Private("bob"), m.Active())
	assert.Empty(t, m.lines)

	m, _ = update(t, m, NoticeMsg{Target: client.Private("bob"), Text: "User not found."})
	require.Len(t, m.lines, 1)
	assert.Contains(t, m.buildTranscript(), "User not found.")
}

func TestTabCyclesTargets(t *testing.T) {
	m, intents := newTestModel(t)
	m, _ = update(t, m, ContactsMsg{Active: client.General, Contacts: []client.Contact{{ID: "bob"}, {ID: "carol", HasUnread: true}}})

	m, _ = update(t, m, key(tea.KeyTab))
	m, _ = update(t, m, ContactsMsg{Active: client.Private("carol"), Contacts: m.contacts})
	m, _ = update(t, m, key(tea.KeyTab))
	_, _ = update(t, m, key(tea.KeyShiftTab))

	assert.Equal(t, []client.ChatTarget{client.Private("bob"), client.General, client.Private("bob")}, intents.switches)
}

func TestSearchModalFlow(t *testing.T) {
	m, intents := newTestModel(t)

	m, _ = update(t, m, key(tea.KeyCtrlN))
	require.Equal(t, modal.ModalSearch, m.modalStack.TopType())

	m, _ = update(t, m, runes("a"), runes("l"))
	assert.Equal(t, []string{"a", "al"}, intents.searches)
	assert.Equal(t, 0, intents.keys, "typing in the search box is not chat typing")

	// results for an older prefix are stale
	m, _ = update(t, m, SearchResultsMsg{Prefix: "a", Users: []string{"anna"}})
	search := m.modalStack.Top().(*modal.SearchModal)
	assert.Empty(t, search.Results())

	m, _ = update(t, m, SearchResultsMsg{Prefix: "al", Users: []string{"albert", "alfred"}})
	assert.Equal(t, []string{"albert", "alfred"}, search.Results())

	m, _ = update(t, m, key(tea.KeyDown), key(tea.KeyEnter))
	assert.Equal(t, []client.ChatTarget{client.Private("alfred")}, intents.switches)
	assert.True(t, m.modalStack.IsEmpty())
}

func TestSendFileModal(t *testing.T) {
	m, intents := newTestModel(t)

	m, _ = update(t, m, key(tea.KeyCtrlF))
	require.Equal(t, modal.ModalSendFile, m.modalStack.TopType())

	m, _ = update(t, m, runes("/tmp/a.png"), key(tea.KeyEnter))
	assert.Equal(t, []string{"/tmp/a.png"}, intents.files)
	assert.True(t, m.modalStack.IsEmpty())
}

func TestRedirectShowsNoticeAndQuits(t *testing.T) {
	m, intents := newTestModel(t)

	m, _ = update(t, m, RedirectMsg{Reason: "session rejected"}, RedirectMsg{Reason: "again"})
	assert.True(t, m.Redirected())
	require.Equal(t, modal.ModalNotice, m.modalStack.TopType())
	assert.Contains(t, m.View(), "Session ended")

	m, cmd := update(t, m, key(tea.KeyEnter))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Empty(t, intents.sent)

	// input stays locked after the notice
	_, _ = update(t, m, runes("x"), key(tea.KeyEnter))
	assert.Equal(t, 0, intents.keys)
	assert.Empty(t, intents.sent)
}

func TestLogoutShortcut(t *testing.T) {
	m, intents := newTestModel(t)
	_, _ = update(t, m, key(tea.KeyCtrlL))
	assert.Equal(t, 1, intents.logouts)
}

func TestViewShowsStateAndUnread(t *testing.T) {
	m, _ := newTestModel(t)
	m, _ = update(t, m,
		ConnectionStateMsg{Update: client.ConnectionStateUpdate{State: client.StateReconnecting, Attempt: 1}},
		ContactsMsg{Active: client.General, Contacts: []client.Contact{{ID: "bob", HasUnread: true}}},
		TypingMsg{Text: "bob está digitando..."},
	)

	view := m.View()
	assert.Contains(t, view, "reconnecting (attempt 2)")
	assert.Contains(t, view, "• @bob")
	assert.Contains(t, view, "bob está digitando...")
}

func TestFormatEntry(t *testing.T) {
	m, _ := newTestModel(t)

	file := m.formatEntry(client.TranscriptEntry{Sender: "bob", Filename: "a.png", Path: "/uploads/a.png"})
	assert.Contains(t, file, "a.png")
	assert.Contains(t, file, "/uploads/a.png")

	text := m.formatEntry(client.TranscriptEntry{Sender: "alice", Content: "hi", Timestamp: time.Date(2024, 1, 1, 9, 5, 0, 0, time.UTC)})
	assert.Contains(t, text, "[09:05]")
	assert.Contains(t, text, "hi")

	raw := m.formatEntry(client.TranscriptEntry{Sender: "alice", Content: "hey", RawTimestamp: "27/10/2023 10:30"})
	assert.Contains(t, raw, "[27/10/2023 10:30]")
	assert.Contains(t, raw, "hey")
}

func TestWrapText(t *testing.T) {
	assert.Equal(t, []string{"one two", "three"}, wrapText("one two three", 8))
	assert.Equal(t, []string{""}, wrapText("   ", 8))
	assert.Equal(t, []string{"a", "verylongword", "b"}, wrapText("a verylongword b", 5))
	assert.Equal(t, []string{"x y"}, wrapText("x y", 0))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "abcd…", truncateString("abcdefgh", 5))
}

func TestProgramRendererDeliversInOrder(t *testing.T) {
	r := NewProgramRenderer()
	r.ShowTyping("early")

	var mu sync.Mutex
	var got []tea.Msg
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Attach(ctx, func(msg tea.Msg) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, msg)
	})

	r.ClearTranscript(client.Private("bob"))
	r.ShowMessage(client.Private("bob"), client.TranscriptEntry{Sender: "bob", Content: "hi"})
	r.RedirectToLogin("session rejected")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 4
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, TypingMsg{Text: "early"}, got[0])
	assert.Equal(t, ClearTranscriptMsg{Target: client.Private("bob")}, got[1])
	assert.IsType(t, TranscriptMsg{}, got[2])
	assert.Equal(t, RedirectMsg{Reason: "session rejected"}, got[3])
}
