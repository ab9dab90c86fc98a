package botlib

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/aeolun/chatsync/pkg/client"
)

// MessageHandler is called when a live message is received.
type MessageHandler func(ctx *Context, msg *Message)

// Intents are the client actions the bot uses to answer. *client.Client implements it.
type Intents interface {
	SendMessage(text string)
	SwitchChat(target client.ChatTarget)
}

var _ Intents = (*client.Client)(nil)

// Config holds the bot configuration.
type Config struct {
	// Self is the bot's user id, used to ignore its own echoes and detect mentions
	Self string

	// Logger for event output (optional, defaults to stderr)
	Logger *log.Logger

	// FollowUnread switches to a private chat as soon as it is flagged unread,
	// so later messages from that user arrive live
	FollowUnread bool

	// QueueSize bounds pending handler invocations (default: 256)
	QueueSize int
}

// Bot is a headless client.Renderer. It logs every event and runs handlers
// for live messages on its own goroutine, never on the client loop.
type Bot struct {
	self         string
	logger       *log.Logger
	followUnread bool

	mu      sync.Mutex
	intents Intents
	active  client.ChatTarget
	ended   string

	onMessage MessageHandler
	onMention MessageHandler
	onPrivate MessageHandler

	events   chan func()
	stopCh   chan struct{}
	stopOnce sync.Once
}

var _ client.Renderer = (*Bot)(nil)

// New creates a new Bot with the given configuration.
func New(config Config) *Bot {
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[bot] ", log.LstdFlags)
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}
	return &Bot{
		self:         config.Self,
		logger:       config.Logger,
		followUnread: config.FollowUnread,
		active:       client.General,
		events:       make(chan func(), config.QueueSize),
		stopCh:       make(chan struct{}),
	}
}

// Attach sets the client the bot answers through.
func (b *Bot) Attach(intents Intents) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.intents = intents
}

// OnMessage registers a handler for messages not claimed by another handler.
func (b *Bot) OnMessage(handler MessageHandler) {
	b.onMessage = handler
}

// OnMention registers a handler for messages that mention the bot.
func (b *Bot) OnMention(handler MessageHandler) {
	b.onMention = handler
}

// OnPrivate registers a handler for private messages that do not mention the bot.
func (b *Bot) OnPrivate(handler MessageHandler) {
	b.onPrivate = handler
}

// Active returns the chat the bot currently has open.
func (b *Bot) Active() client.ChatTarget {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// Run processes handler invocations until ctx is done, Stop is called or
// the session ends. A session end is returned as an error.
func (b *Bot) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.stopCh:
			b.mu.Lock()
			ended := b.ended
			b.mu.Unlock()
			if ended != "" {
				return fmt.Errorf("session ended: %s", ended)
			}
			return nil
		case f := <-b.events:
			f()
		}
	}
}

// Stop gracefully stops the bot.
func (b *Bot) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

func (b *Bot) logf(format string, args ...interface{}) {
	if b.logger != nil {
		b.logger.Printf(format, args...)
	}
}

func (b *Bot) enqueue(f func()) {
	select {
	case b.events <- f:
	default:
		b.logf("Handler queue full, dropping event")
	}
}

func (b *Bot) ShowConnectionState(update client.ConnectionStateUpdate) {
	if update.Err != nil {
		b.logf("Connection %s -> %s (attempt %d, %s): %v", update.Previous, update.State, update.Attempt, update.AttemptID, update.Err)
		return
	}
	b.logf("Connection %s -> %s (attempt %d, %s)", update.Previous, update.State, update.Attempt, update.AttemptID)
}

func (b *Bot) ShowNotice(target client.ChatTarget, text string) {
	b.logf("[%s] * %s", target, text)
}

func (b *Bot) ShowMessage(target client.ChatTarget, entry client.TranscriptEntry) {
	if entry.IsFile() {
		b.logf("[%s] %s sent %s (%s)", target, entry.Sender, entry.Filename, entry.Path)
	} else {
		b.logf("[%s] %s: %s", target, entry.Sender, entry.Content)
	}
	if !entry.Live || entry.Sender == b.self {
		return
	}

	msg := &Message{
		Target:      target,
		Sender:      entry.Sender,
		Content:     entry.Content,
		Timestamp:   entry.Timestamp,
		Filename:    entry.Filename,
		Path:        entry.Path,
		botNickname: b.self,
	}
	handler := b.handlerFor(msg)
	if handler == nil {
		return
	}
	b.enqueue(func() {
		handler(&Context{bot: b, message: msg}, msg)
	})
}

func (b *Bot) handlerFor(msg *Message) MessageHandler {
	switch {
	case b.onMention != nil && msg.MentionsMe():
		return b.onMention
	case b.onPrivate != nil && msg.IsPrivate():
		return b.onPrivate
	default:
		return b.onMessage
	}
}

func (b *Bot) ClearTranscript(target client.ChatTarget) {
	b.mu.Lock()
	b.active = target
	b.mu.Unlock()
	b.logf("Switched to %s", target)
}

func (b *Bot) ShowTyping(text string) {
	if text != "" {
		b.logf("Typing: %s", text)
	}
}

func (b *Bot) ShowContacts(active client.ChatTarget, contacts []client.Contact) {
	b.mu.Lock()
	b.active = active
	intents := b.intents
	b.mu.Unlock()

	var unread []string
	for _, c := range contacts {
		if c.HasUnread {
			unread = append(unread, c.ID)
		}
	}
	b.logf("Contacts: %d (%d unread)", len(contacts), len(unread))

	if !b.followUnread || len(unread) == 0 || intents == nil {
		return
	}
	target := client.Private(unread[0])
	// the client loop is calling us; switch from the bot goroutine
	b.enqueue(func() {
		if b.Active() != target {
			intents.SwitchChat(target)
		}
	})
}

func (b *Bot) ShowSearchResults(prefix string, users []string) {
	b.logf("Search %q: %v", prefix, users)
}

func (b *Bot) RedirectToLogin(reason string) {
	b.logf("Session ended: %s", reason)
	b.mu.Lock()
	if b.ended == "" {
		b.ended = reason
	}
	b.mu.Unlock()
	b.Stop()
}
