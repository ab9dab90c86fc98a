package client

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/aeolun/chatsync/pkg/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ConnectionState is the lifecycle state of the connection
type ConnectionState int

const (
	StateIdle ConnectionState = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateRejectedTerminal
	StateClosedClean
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateRejectedTerminal:
		return "rejected"
	case StateClosedClean:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectionStateUpdate represents a connection state change
type ConnectionStateUpdate struct {
	State     ConnectionState
	Previous  ConnectionState
	Attempt   int
	AttemptID string
	Code      int
	Err       error
}

// ConnectionObserver receives everything the manager emits. All calls happen
// on the client loop.
type ConnectionObserver interface {
	OnStateChange(update ConnectionStateUpdate)
	OnFrame(raw string)
	OnNotice(text string)
	OnRejected(err error)
}

const (
	// DefaultReconnectDelay is the fixed wait before retrying a dropped connection
	DefaultReconnectDelay = 5000 * time.Millisecond
	defaultDialTimeout    = 15 * time.Second
	outgoingQueueSize     = 100
	closeWriteTimeout     = time.Second
)

// ConnectionManager owns the single duplex connection: dialing, the
// close-code policy and the fixed-delay reconnect. It never buffers frames
// while disconnected.
type ConnectionManager struct {
	endpoint func(identity string) string
	dialer   Dialer
	sched    Scheduler
	post     func(func())
	spawn    func(func())
	observer ConnectionObserver
	metrics  *Metrics
	logger   *log.Logger

	reconnectDelay time.Duration
	dialTimeout    time.Duration

	state     ConnectionState
	identity  string
	gen       uint64
	attempt   int
	attemptID string
	link      *link
	cancel    context.CancelFunc
	reconnect expiring
}

// link is one open transport plus its writer
type link struct {
	transport Transport
	outgoing  chan []byte
	done      chan struct{}
	closed    bool
}

func (l *link) shutdown() {
	if l.closed {
		return
	}
	l.closed = true
	close(l.done)
	l.transport.Close()
}

// NewConnectionManager creates a manager. post must run its argument on the
// client loop; endpoint maps an identity to the connection URL.
func NewConnectionManager(endpoint func(identity string) string, dialer Dialer, sched Scheduler, post func(func()), observer ConnectionObserver) *ConnectionManager {
	return &ConnectionManager{
		endpoint:       endpoint,
		dialer:         dialer,
		sched:          sched,
		post:           post,
		spawn:          func(f func()) { go f() },
		observer:       observer,
		reconnectDelay: DefaultReconnectDelay,
		dialTimeout:    defaultDialTimeout,
	}
}

// SetLogger sets a logger for debugging connection events
func (m *ConnectionManager) SetLogger(logger *log.Logger) {
	m.logger = logger
}

// SetMetrics attaches prometheus collectors
func (m *ConnectionManager) SetMetrics(metrics *Metrics) {
	m.metrics = metrics
}

// SetReconnectDelay overrides the fixed reconnect delay
func (m *ConnectionManager) SetReconnectDelay(d time.Duration) {
	if d > 0 {
		m.reconnectDelay = d
	}
}

// logf logs a message if a logger is set
func (m *ConnectionManager) logf(format string, args ...interface{}) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}

// State returns the current connection state
func (m *ConnectionManager) State() ConnectionState {
	return m.state
}

// Identity returns the identity of the latest connect call
func (m *ConnectionManager) Identity() string {
	return m.identity
}

// IsOpen reports whether frames can be sent
func (m *ConnectionManager) IsOpen() bool {
	return m.state == StateOpen && m.link != nil
}

// Connect opens a connection for identity. It is a no-op while a connection
// is already being opened or is open.
func (m *ConnectionManager) Connect(identity string) error {
	if strings.TrimSpace(identity) == "" {
		return &PreconditionError{Op: "connect", Reason: "identity is empty"}
	}

	switch m.state {
	case StateConnecting, StateOpen:
		m.logf("Connect(%s) ignored: already %s", identity, m.state)
		return nil
	}

	m.reconnect.cancel()
	m.identity = identity
	m.gen++
	m.attempt++
	m.attemptID = uuid.NewString()
	gen := m.gen
	url := m.endpoint(identity)

	m.setState(StateConnecting, 0, nil)
	m.logf("Connecting to %s (attempt %d, id %s)...", url, m.attempt, m.attemptID)

	ctx, cancel := context.WithTimeout(context.Background(), m.dialTimeout)
	m.cancel = cancel
	m.spawn(func() {
		transport, err := m.dialer.Dial(ctx, url)
		cancel()
		m.post(func() { m.handleDialResult(gen, transport, err) })
	})
	return nil
}

func (m *ConnectionManager) handleDialResult(gen uint64, transport Transport, err error) {
	if gen != m.gen || m.state != StateConnecting {
		if transport != nil {
			transport.Close()
		}
		return
	}
	m.cancel = nil

	if err != nil {
		m.logf("Dial failed: %v", err)
		m.handleClose(gen, dialFailureCode(err), err)
		return
	}

	l := &link{
		transport: transport,
		outgoing:  make(chan []byte, outgoingQueueSize),
		done:      make(chan struct{}),
	}
	m.link = l
	m.attempt = 0
	m.setState(StateOpen, 0, nil)
	m.logf("Connected successfully to %s", m.endpoint(m.identity))

	m.spawn(func() { m.readLoop(gen, l) })
	m.spawn(func() { m.writeLoop(gen, l) })
}

// readLoop reads frames until the transport fails, then reports the close
func (m *ConnectionManager) readLoop(gen uint64, l *link) {
	for {
		messageType, data, err := l.transport.ReadMessage()
		if err != nil {
			code, isClose := closeCodeOf(err)
			if !isClose {
				m.post(func() { m.handleError(gen, err) })
			}
			m.post(func() { m.handleClose(gen, code, err) })
			return
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		raw := string(data)
		m.post(func() { m.handleFrame(gen, raw) })
	}
}

// writeLoop is the only writer of data frames on the transport
func (m *ConnectionManager) writeLoop(gen uint64, l *link) {
	for {
		select {
		case data := <-l.outgoing:
			if err := l.transport.WriteMessage(websocket.TextMessage, data); err != nil {
				m.post(func() { m.handleError(gen, fmt.Errorf("write error: %w", err)) })
				// the read side observes the broken transport and reports the close
				l.transport.Close()
				return
			}
		case <-l.done:
			return
		}
	}
}

func (m *ConnectionManager) handleFrame(gen uint64, raw string) {
	if gen != m.gen || m.state != StateOpen {
		return
	}
	m.observer.OnFrame(raw)
}

// handleError only logs; the close that follows drives the state machine
func (m *ConnectionManager) handleError(gen uint64, err error) {
	if gen != m.gen {
		return
	}
	m.logf("Connection error: %v", err)
}

func (m *ConnectionManager) handleClose(gen uint64, code int, err error) {
	if gen != m.gen {
		return
	}
	switch m.state {
	case StateRejectedTerminal, StateClosedClean, StateIdle:
		return
	}

	if m.link != nil {
		m.link.shutdown()
		m.link = nil
	}

	disposition := ClassifyClose(code)
	m.logf("Connection closed (code %d, %s): %v", code, disposition, err)

	switch disposition {
	case CloseTerminal:
		m.reconnect.cancel()
		rejectErr := &AuthRejectedError{Code: code, Err: err}
		m.setState(StateRejectedTerminal, code, rejectErr)
		m.metrics.rejected()
		m.observer.OnNotice("Your session has expired or is invalid. Please log in again.")
		m.observer.OnRejected(rejectErr)

	case CloseClean:
		m.reconnect.cancel()
		m.setState(StateClosedClean, code, nil)
		m.observer.OnNotice("Connection to the chat closed.")

	default:
		m.setState(StateReconnecting, code, &ConnectionError{Code: code, Err: err})
		m.scheduleReconnect()
		m.observer.OnNotice(fmt.Sprintf("Connection to the chat lost (code %d). Reconnecting in %s...", code, m.reconnectDelay))
	}
}

// scheduleReconnect keeps at most one reconnect timer outstanding
func (m *ConnectionManager) scheduleReconnect() {
	m.metrics.reconnectScheduled()
	m.logf("Next reconnect attempt in %v", m.reconnectDelay)
	m.reconnect.set(m.sched, m.reconnectDelay, func() {
		if m.state != StateReconnecting {
			return
		}
		if err := m.Connect(m.identity); err != nil {
			m.logf("Reconnect failed: %v", err)
		}
	})
}

// ReconnectPending reports whether a reconnect timer is armed
func (m *ConnectionManager) ReconnectPending() bool {
	return m.reconnect.pending()
}

// Send hands frame to the writer. While not open the frame is dropped with a
// warning; nothing is queued for later.
func (m *ConnectionManager) Send(frame protocol.OutboundFrame) error {
	if !m.IsOpen() {
		m.logf("Warning: dropping %s frame, connection is %s", frame.Name(), m.state)
		m.metrics.frameDropped("not_connected")
		return ErrNotConnected
	}

	data, err := frame.Encode()
	if err != nil {
		m.metrics.frameDropped("encode")
		return fmt.Errorf("encode %s: %w", frame.Name(), err)
	}

	select {
	case m.link.outgoing <- data:
		m.metrics.frameSent(frame.Name())
		return nil
	default:
		m.metrics.frameDropped("queue_full")
		return fmt.Errorf("outgoing queue full")
	}
}

// Close shuts the connection down intentionally with code and reason and
// cancels any scheduled reconnect. The resulting state is ClosedClean.
func (m *ConnectionManager) Close(code int, reason string) {
	m.reconnect.cancel()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	// events from the current transport are stale from here on
	m.gen++

	if m.link != nil {
		msg := websocket.FormatCloseMessage(code, reason)
		if err := m.link.transport.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout)); err != nil {
			m.logf("Failed to send close frame: %v", err)
		}
		m.link.shutdown()
		m.link = nil
	}

	switch m.state {
	case StateClosedClean, StateRejectedTerminal, StateIdle:
		return
	}
	m.setState(StateClosedClean, code, nil)
}

// Disconnect closes the connection with a normal closure
func (m *ConnectionManager) Disconnect() {
	m.Close(CloseNormal, "")
}

func (m *ConnectionManager) setState(s ConnectionState, code int, err error) {
	prev := m.state
	m.state = s
	m.metrics.setState(s)
	m.logf("Connection state %s -> %s", prev, s)
	m.observer.OnStateChange(ConnectionStateUpdate{
		State:     s,
		Previous:  prev,
		Attempt:   m.attempt,
		AttemptID: m.attemptID,
		Code:      code,
		Err:       err,
	})
}
