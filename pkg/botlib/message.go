// Package botlib provides a headless chatsync renderer for building bots.
package botlib

import (
	"strings"
	"time"

	"github.com/aeolun/chatsync/pkg/client"
)

// Message represents a live chat message received by the bot.
type Message struct {
	Target    client.ChatTarget
	Sender    string
	Content   string
	Timestamp time.Time
	// Filename is set when the message announces a file
	Filename string
	Path     string

	// the bot's identity for mention detection
	botNickname string
}

// IsPrivate returns true if the message was received in a private chat.
func (m *Message) IsPrivate() bool {
	return !m.Target.IsGeneral()
}

// IsFile returns true if the message announces a file.
func (m *Message) IsFile() bool {
	return m.Filename != ""
}

// MentionsMe returns true if the message content mentions the bot.
// Checks for @nickname patterns (case-insensitive).
func (m *Message) MentionsMe() bool {
	if m.botNickname == "" {
		return false
	}

	content := strings.ToLower(m.Content)
	nickname := strings.ToLower(m.botNickname)

	if strings.Contains(content, "@"+nickname) {
		return true
	}

	// nickname at start of message
	return strings.HasPrefix(content, nickname+":") ||
		strings.HasPrefix(content, nickname+",") ||
		strings.HasPrefix(content, nickname+" ")
}

// MentionedContent returns the message content with the bot mention removed.
func (m *Message) MentionedContent() string {
	if m.botNickname == "" {
		return m.Content
	}

	content := m.Content
	nickname := m.botNickname

	content = strings.ReplaceAll(content, "@"+nickname, "")
	content = strings.ReplaceAll(content, "@"+strings.ToLower(nickname), "")

	lower := strings.ToLower(content)
	lowerNick := strings.ToLower(nickname)
	for _, sep := range []string{":", ",", " "} {
		if strings.HasPrefix(lower, lowerNick+sep) {
			content = content[len(nickname)+1:]
			break
		}
	}

	return strings.TrimSpace(content)
}
