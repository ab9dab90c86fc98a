package client

import (
	"context"
	"time"

	"github.com/aeolun/chatsync/pkg/restapi"
)

// TranscriptEntry is one line of a conversation as handed to the renderer
type TranscriptEntry struct {
	Sender    string
	Content   string
	Timestamp time.Time
	// RawTimestamp is the server's timestamp text; Timestamp is zero when it did not parse
	RawTimestamp string
	// Filename and Path are set for file announcements
	Filename string
	Path     string
	// Live is set for entries that arrived over the connection, unset for history
	Live bool
}

// IsFile reports whether the entry announces a file
func (e TranscriptEntry) IsFile() bool {
	return e.Filename != ""
}

// Renderer is the presentation collaborator. The client calls it from its
// loop goroutine; implementations must not block.
type Renderer interface {
	ShowConnectionState(update ConnectionStateUpdate)
	ShowNotice(target ChatTarget, text string)
	ShowMessage(target ChatTarget, entry TranscriptEntry)
	ClearTranscript(target ChatTarget)
	ShowTyping(text string)
	ShowContacts(active ChatTarget, contacts []Contact)
	ShowSearchResults(prefix string, users []string)
	RedirectToLogin(reason string)
}

// Collaborator is the REST side of the chat server. *restapi.Client implements it.
type Collaborator interface {
	Contacts(ctx context.Context) ([]string, error)
	SearchUsers(ctx context.Context, prefix string) ([]string, error)
	GeneralHistory(ctx context.Context) ([]restapi.HistoryMessage, error)
	PrivateHistory(ctx context.Context, counterpart string) ([]restapi.HistoryMessage, error)
	Upload(ctx context.Context, path string) (string, error)
	Logout(ctx context.Context) error
}

// Notifier raises a desktop notification
type Notifier interface {
	Notify(title, body string) error
}

// StateInterface defines the interface for client state persistence
// This allows for mocking in tests while the real State implements all these methods
type StateInterface interface {
	ContactStore

	// Configuration
	GetConfig(key string) (string, error)
	SetConfig(key, value string) error

	// Identity of the last session
	GetLastIdentity() string
	SetLastIdentity(identity string) error

	// Contacts, in display order
	LoadContacts(owner string) ([]Contact, error)

	// Connection history
	GetLastSuccessfulEndpoint(identity string) (string, error)
	SaveSuccessfulConnection(identity, endpoint string) error

	// State directory
	GetStateDir() string

	// Close the state
	Close() error
}

var _ Collaborator = (*restapi.Client)(nil)
