package client

import (
	"log"
	"time"

	"github.com/aeolun/chatsync/pkg/protocol"
)

// Typing timing defaults
const (
	DefaultTypingPingInterval = 1000 * time.Millisecond
	DefaultTypingIdle         = 2000 * time.Millisecond
	DefaultTypingExpiry       = 3000 * time.Millisecond
)

// TypingCoordinator throttles outgoing typing pings and expires the inbound
// typing indicator, since the protocol has no reliable explicit stop.
type TypingCoordinator struct {
	sched     Scheduler
	send      func(protocol.OutboundFrame) error
	indicator func(text string)
	logger    *log.Logger

	pingInterval time.Duration
	idle         time.Duration
	expiry       time.Duration

	lastPing  time.Time
	hasPinged bool
	outgoing  expiring
	incoming  expiring
	text      string
	// aggregate is set while text came from a general chat aggregate
	aggregate bool
}

// NewTypingCoordinator creates a coordinator. send writes a frame to the
// connection; indicator receives the visible indicator text ("" clears it).
func NewTypingCoordinator(sched Scheduler, send func(protocol.OutboundFrame) error, indicator func(string)) *TypingCoordinator {
	if indicator == nil {
		indicator = func(string) {}
	}
	return &TypingCoordinator{
		sched:        sched,
		send:         send,
		indicator:    indicator,
		pingInterval: DefaultTypingPingInterval,
		idle:         DefaultTypingIdle,
		expiry:       DefaultTypingExpiry,
	}
}

// SetLogger sets a logger for debugging
func (t *TypingCoordinator) SetLogger(logger *log.Logger) {
	t.logger = logger
}

// SetTiming overrides the ping interval, outgoing idle window and indicator
// expiry. Zero values keep the current setting.
func (t *TypingCoordinator) SetTiming(pingInterval, idle, expiry time.Duration) {
	if pingInterval > 0 {
		t.pingInterval = pingInterval
	}
	if idle > 0 {
		t.idle = idle
	}
	if expiry > 0 {
		t.expiry = expiry
	}
}

func (t *TypingCoordinator) logf(format string, args ...interface{}) {
	if t.logger != nil {
		t.logger.Printf(format, args...)
	}
}

// OnLocalKeystroke records local typing. Only the general chat has an
// outgoing typing protocol; other targets are ignored.
func (t *TypingCoordinator) OnLocalKeystroke(active ChatTarget) {
	if !active.IsGeneral() {
		return
	}

	now := t.sched.Now()
	if !t.outgoing.pending() && (!t.hasPinged || now.Sub(t.lastPing) >= t.pingInterval) {
		if err := t.send(protocol.TypingPing{}); err != nil {
			t.logf("Typing ping not sent: %v", err)
		} else {
			t.lastPing = now
			t.hasPinged = true
		}
	}

	// the window only gates the next ping; expiry itself sends nothing
	t.outgoing.set(t.sched, t.idle, func() {})
}

// OnInputCleared ends the local typing window without a frame
func (t *TypingCoordinator) OnInputCleared() {
	t.outgoing.cancel()
}

// OnSend ends the local typing window; the message itself supersedes the ping
func (t *TypingCoordinator) OnSend() {
	t.outgoing.cancel()
}

// OnChatSwitch cancels local typing and drops the indicator of the old chat.
// No stop frame is sent.
func (t *TypingCoordinator) OnChatSwitch() {
	t.outgoing.cancel()
	t.clearIndicator()
}

// OnInboundTypingAggregate shows the general chat typing sentence
func (t *TypingCoordinator) OnInboundTypingAggregate(text string, stopped bool) {
	if stopped {
		t.clearIndicator()
		return
	}
	t.show(text)
	t.aggregate = true
}

// ClearAggregate clears the indicator only when a general chat aggregate
// set it; a private indicator is left alone
func (t *TypingCoordinator) ClearAggregate() {
	if t.aggregate {
		t.clearIndicator()
	}
}

// OnInboundTypingPrivate shows or clears a private chat typing indicator
func (t *TypingCoordinator) OnInboundTypingPrivate(sender string, active bool) {
	if !active {
		t.clearIndicator()
		return
	}
	t.show(protocol.TypingSentence([]string{sender}))
}

// Reset cancels every timer and clears the indicator
func (t *TypingCoordinator) Reset() {
	t.outgoing.cancel()
	t.clearIndicator()
}

// IndicatorText returns the visible indicator, "" when nobody is typing
func (t *TypingCoordinator) IndicatorText() string {
	return t.text
}

// OutgoingPending reports whether the local typing window is open
func (t *TypingCoordinator) OutgoingPending() bool {
	return t.outgoing.pending()
}

func (t *TypingCoordinator) show(text string) {
	t.text = text
	t.aggregate = false
	t.indicator(text)
	t.incoming.set(t.sched, t.expiry, func() {
		t.text = ""
		t.aggregate = false
		t.indicator("")
	})
}

func (t *TypingCoordinator) clearIndicator() {
	t.incoming.cancel()
	t.aggregate = false
	if t.text == "" {
		return
	}
	t.text = ""
	t.indicator("")
}
