package client

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/aeolun/chatsync/pkg/restapi"
)

// MockRenderer records everything the client asks it to show
type MockRenderer struct {
	mu sync.Mutex

	States    []ConnectionStateUpdate
	Notices   []MockNotice
	Messages  []MockMessage
	Cleared   []ChatTarget
	Typing    []string
	Contacts  [][]Contact
	Searches  []MockSearch
	Redirects []string
}

// MockNotice is one ShowNotice call
type MockNotice struct {
	Target ChatTarget
	Text   string
}

// MockMessage is one ShowMessage call
type MockMessage struct {
	Target ChatTarget
	Entry  TranscriptEntry
}

// MockSearch is one ShowSearchResults call
type MockSearch struct {
	Prefix string
	Users  []string
}

// NewMockRenderer creates an empty recorder
func NewMockRenderer() *MockRenderer {
	return &MockRenderer{}
}

func (r *MockRenderer) ShowConnectionState(update ConnectionStateUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.States = append(r.States, update)
}

func (r *MockRenderer) ShowNotice(target ChatTarget, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Notices = append(r.Notices, MockNotice{Target: target, Text: text})
}

func (r *MockRenderer) ShowMessage(target ChatTarget, entry TranscriptEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Messages = append(r.Messages, MockMessage{Target: target, Entry: entry})
}

func (r *MockRenderer) ClearTranscript(target ChatTarget) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Cleared = append(r.Cleared, target)
}

func (r *MockRenderer) ShowTyping(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Typing = append(r.Typing, text)
}

func (r *MockRenderer) ShowContacts(active ChatTarget, contacts []Contact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Contacts = append(r.Contacts, contacts)
}

func (r *MockRenderer) ShowSearchResults(prefix string, users []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Searches = append(r.Searches, MockSearch{Prefix: prefix, Users: users})
}

func (r *MockRenderer) RedirectToLogin(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Redirects = append(r.Redirects, reason)
}

// MessageCount returns how many messages were rendered
func (r *MockRenderer) MessageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Messages)
}

// RedirectCount returns how many login redirects were requested
func (r *MockRenderer) RedirectCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Redirects)
}

// LastState returns the most recent connection state shown
func (r *MockRenderer) LastState() (ConnectionStateUpdate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.States) == 0 {
		return ConnectionStateUpdate{}, false
	}
	return r.States[len(r.States)-1], true
}

// NoticeTexts returns the text of every notice
func (r *MockRenderer) NoticeTexts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Notices))
	for i, n := range r.Notices {
		out[i] = n.Text
	}
	return out
}

// LastTyping returns the most recent typing indicator text
func (r *MockRenderer) LastTyping() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Typing) == 0 {
		return ""
	}
	return r.Typing[len(r.Typing)-1]
}

// MockCollaborator is an in-memory Collaborator with canned responses
type MockCollaborator struct {
	mu sync.Mutex

	ContactList []string
	Users       []string
	General     []restapi.HistoryMessage
	Private     map[string][]restapi.HistoryMessage
	Uploaded    []string
	LoggedOut   int

	contactsErr error
	historyErr  error
	searchErr   error
	uploadErr   error
	searches    []string
}

// NewMockCollaborator creates a collaborator with no data
func NewMockCollaborator() *MockCollaborator {
	return &MockCollaborator{Private: make(map[string][]restapi.HistoryMessage)}
}

func (m *MockCollaborator) Contacts(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.contactsErr != nil {
		return nil, m.contactsErr
	}
	return append([]string(nil), m.ContactList...), nil
}

func (m *MockCollaborator) SearchUsers(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches = append(m.searches, prefix)
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return append([]string(nil), m.Users...), nil
}

func (m *MockCollaborator) GeneralHistory(ctx context.Context) ([]restapi.HistoryMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	return append([]restapi.HistoryMessage(nil), m.General...), nil
}

func (m *MockCollaborator) PrivateHistory(ctx context.Context, counterpart string) ([]restapi.HistoryMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	msgs, ok := m.Private[counterpart]
	if !ok {
		return nil, &restapi.StatusError{Op: "private history", Status: 404}
	}
	return append([]restapi.HistoryMessage(nil), msgs...), nil
}

func (m *MockCollaborator) Upload(ctx context.Context, path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploadErr != nil {
		return "", m.uploadErr
	}
	m.Uploaded = append(m.Uploaded, path)
	return filepath.Base(path), nil
}

func (m *MockCollaborator) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LoggedOut++
	return nil
}

// SetContactsError injects an error for Contacts
func (m *MockCollaborator) SetContactsError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contactsErr = err
}

// SetHistoryError injects an error for both history calls
func (m *MockCollaborator) SetHistoryError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.historyErr = err
}

// SetSearchError injects an error for SearchUsers
func (m *MockCollaborator) SetSearchError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchErr = err
}

// SetUploadError injects an error for Upload
func (m *MockCollaborator) SetUploadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadErr = err
}

// Searches returns every prefix that reached SearchUsers
func (m *MockCollaborator) Searches() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.searches...)
}
