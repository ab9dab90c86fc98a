package client

import (
	"log"
	"strings"

	"github.com/aeolun/chatsync/pkg/protocol"
)

// ChatTarget is the conversation shown to the user: General or a counterpart id
type ChatTarget string

// General is the shared chat every connected user sees
const General ChatTarget = ""

// Private returns the target for a conversation with id
func Private(id string) ChatTarget {
	return ChatTarget(strings.TrimSpace(id))
}

// IsGeneral reports whether t is the general chat
func (t ChatTarget) IsGeneral() bool {
	return t == General
}

func (t ChatTarget) String() string {
	if t.IsGeneral() {
		return "general"
	}
	return string(t)
}

// Contact is one private conversation in the sidebar
type Contact struct {
	ID        string
	HasUnread bool
}

// Disposition tells the caller what to do with an applied inbound event
type Disposition int

const (
	// Ignored events have no visible effect
	Ignored Disposition = iota
	// Rendered events belong to the active chat and go to the transcript
	Rendered
	// Flagged events belong to another chat whose contact is now unread
	Flagged
)

func (d Disposition) String() string {
	switch d {
	case Rendered:
		return "rendered"
	case Flagged:
		return "flagged"
	default:
		return "ignored"
	}
}

// ContactStore persists the contact list between runs
type ContactStore interface {
	SaveContact(owner string, contact Contact, position int) error
	SetContactUnread(owner, id string, unread bool) error
}

// ChatStateStore owns the active target and the contact list. A contact is
// never unread while it is the active target.
type ChatStateStore struct {
	self     string
	active   ChatTarget
	contacts []*Contact
	index    map[string]*Contact

	beforeSwitch func()
	persist      ContactStore
	metrics      *Metrics
	logger       *log.Logger
}

// NewChatStateStore creates a store for self with General active
func NewChatStateStore(self string) *ChatStateStore {
	return &ChatStateStore{
		self:   self,
		active: General,
		index:  make(map[string]*Contact),
	}
}

// SetLogger sets a logger for debugging
func (s *ChatStateStore) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// SetPersistence stores contact changes in cs
func (s *ChatStateStore) SetPersistence(cs ContactStore) {
	s.persist = cs
}

// SetMetrics attaches prometheus collectors
func (s *ChatStateStore) SetMetrics(metrics *Metrics) {
	s.metrics = metrics
}

// OnBeforeSwitch registers f to run before the active target changes; the
// typing coordinator uses it so nothing is sent under the old target.
func (s *ChatStateStore) OnBeforeSwitch(f func()) {
	s.beforeSwitch = f
}

func (s *ChatStateStore) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

// Self returns the session identity
func (s *ChatStateStore) Self() string {
	return s.self
}

// Active returns the active target
func (s *ChatStateStore) Active() ChatTarget {
	return s.active
}

// SwitchTo makes target active. It reports false when target already was.
func (s *ChatStateStore) SwitchTo(target ChatTarget) bool {
	if target == s.active {
		return false
	}
	if s.beforeSwitch != nil {
		s.beforeSwitch()
	}
	if !target.IsGeneral() {
		if c, ok := s.index[string(target)]; ok && c.HasUnread {
			c.HasUnread = false
			s.saveUnread(c)
		}
	}
	s.logf("Switching chat %s -> %s", s.active, target)
	s.active = target
	s.metrics.setUnread(s.UnreadCount())
	return true
}

// EnsureContact adds id to the contact list if it is not there yet and
// reports whether it was added
func (s *ChatStateStore) EnsureContact(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	if _, ok := s.index[id]; ok {
		return false
	}
	c := &Contact{ID: id}
	s.contacts = append(s.contacts, c)
	s.index[id] = c
	if s.persist != nil {
		if err := s.persist.SaveContact(s.self, *c, len(s.contacts)-1); err != nil {
			s.logf("Failed to save contact %s: %v", id, err)
		}
	}
	return true
}

// restoreContact adds a persisted contact with its unread flag
func (s *ChatStateStore) restoreContact(c Contact) {
	if !s.EnsureContact(c.ID) {
		return
	}
	if c.HasUnread && ChatTarget(c.ID) != s.active {
		s.index[c.ID].HasUnread = true
		s.metrics.setUnread(s.UnreadCount())
	}
}

// ApplyInbound routes one event against the active target and returns what
// the caller should do with it plus the conversation it belongs to.
func (s *ChatStateStore) ApplyInbound(event protocol.InboundEvent) (Disposition, ChatTarget) {
	switch e := event.(type) {
	case protocol.GeneralMessage:
		return s.applyGeneral()
	case protocol.PrivateMessage:
		return s.applyPrivate(e.Sender, e.Receiver)
	case protocol.FileMessage:
		if e.IsGeneral() {
			return s.applyGeneral()
		}
		return s.applyPrivate(e.Sender, e.Receiver)
	default:
		return Ignored, s.active
	}
}

func (s *ChatStateStore) applyGeneral() (Disposition, ChatTarget) {
	if s.active.IsGeneral() {
		return Rendered, General
	}
	return Ignored, General
}

func (s *ChatStateStore) applyPrivate(sender, receiver string) (Disposition, ChatTarget) {
	if sender != s.self && receiver != s.self {
		s.logf("Ignoring private event %s -> %s not addressed to %s", sender, receiver, s.self)
		return Ignored, s.active
	}

	counterpart := protocol.Counterpart(s.self, sender, receiver)
	target := Private(counterpart)
	s.EnsureContact(counterpart)

	if target == s.active {
		return Rendered, target
	}

	c := s.index[counterpart]
	if c != nil && !c.HasUnread {
		c.HasUnread = true
		s.saveUnread(c)
		s.metrics.setUnread(s.UnreadCount())
	}
	return Flagged, target
}

func (s *ChatStateStore) saveUnread(c *Contact) {
	if s.persist == nil {
		return
	}
	if err := s.persist.SetContactUnread(s.self, c.ID, c.HasUnread); err != nil {
		s.logf("Failed to save unread flag for %s: %v", c.ID, err)
	}
}

// Contacts returns a copy of the contacts in display order
func (s *ChatStateStore) Contacts() []Contact {
	out := make([]Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		out = append(out, *c)
	}
	return out
}

// Contact looks up one contact
func (s *ChatStateStore) Contact(id string) (Contact, bool) {
	c, ok := s.index[id]
	if !ok {
		return Contact{}, false
	}
	return *c, true
}

// Targets returns every selectable target, General first
func (s *ChatStateStore) Targets() []ChatTarget {
	out := make([]ChatTarget, 0, len(s.contacts)+1)
	out = append(out, General)
	for _, c := range s.contacts {
		out = append(out, ChatTarget(c.ID))
	}
	return out
}

// UnreadCount returns how many contacts are flagged unread
func (s *ChatStateStore) UnreadCount() int {
	n := 0
	for _, c := range s.contacts {
		if c.HasUnread {
			n++
		}
	}
	return n
}
