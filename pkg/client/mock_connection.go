package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// MockTransport is a test implementation of Transport. Reads are fed through
// the Simulate* helpers; writes are recorded for verification.
type MockTransport struct {
	mu sync.Mutex

	reads     chan mockRead
	closed    chan struct{}
	closeOnce sync.Once
	writeErr  error

	written     [][]byte
	closeFrames []MockCloseFrame
}

type mockRead struct {
	messageType int
	data        []byte
	err         error
}

// MockCloseFrame is a close control frame written by the client
type MockCloseFrame struct {
	Code   int
	Reason string
}

var errMockTransportClosed = errors.New("use of closed network connection")

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		reads:  make(chan mockRead, 100),
		closed: make(chan struct{}),
	}
}

// ReadMessage blocks until a simulated frame or error arrives or the transport is closed
func (m *MockTransport) ReadMessage() (int, []byte, error) {
	select {
	case r := <-m.reads:
		return r.messageType, r.data, r.err
	case <-m.closed:
		return 0, nil, errMockTransportClosed
	}
}

// WriteMessage records a data frame
func (m *MockTransport) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeErr != nil {
		return m.writeErr
	}
	m.written = append(m.written, append([]byte(nil), data...))
	return nil
}

// WriteControl records close frames
func (m *MockTransport) WriteControl(messageType int, data []byte, deadline time.Time) error {
	if messageType != websocket.CloseMessage {
		return nil
	}
	frame := MockCloseFrame{Code: websocket.CloseNoStatusReceived}
	if len(data) >= 2 {
		frame.Code = int(data[0])<<8 | int(data[1])
		frame.Reason = string(data[2:])
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeFrames = append(m.closeFrames, frame)
	return nil
}

// Close unblocks pending reads
func (m *MockTransport) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

// Test helpers

// SimulateFrame delivers a text frame to the reader
func (m *MockTransport) SimulateFrame(raw string) {
	m.reads <- mockRead{messageType: websocket.TextMessage, data: []byte(raw)}
}

// SimulateClose delivers a close frame with code
func (m *MockTransport) SimulateClose(code int, text string) {
	m.reads <- mockRead{err: &websocket.CloseError{Code: code, Text: text}}
}

// SimulateError delivers a read error that is not a close frame
func (m *MockTransport) SimulateError(err error) {
	m.reads <- mockRead{err: err}
}

// SetWriteError makes every following WriteMessage fail
func (m *MockTransport) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// Written returns the data frames written so far
func (m *MockTransport) Written() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.written))
	for i, w := range m.written {
		out[i] = string(w)
	}
	return out
}

// CloseFrames returns the close frames written so far
func (m *MockTransport) CloseFrames() []MockCloseFrame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCloseFrame(nil), m.closeFrames...)
}

// IsClosed reports whether Close was called
func (m *MockTransport) IsClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

// MockDialer is a test implementation of Dialer that hands out MockTransports
type MockDialer struct {
	mu         sync.Mutex
	dialErr    error
	urls       []string
	transports []*MockTransport
}

// NewMockDialer creates a new mock dialer
func NewMockDialer() *MockDialer {
	return &MockDialer{}
}

// Dial records url and returns a fresh MockTransport or the injected error
func (d *MockDialer) Dial(ctx context.Context, url string) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.urls = append(d.urls, url)
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	t := NewMockTransport()
	d.transports = append(d.transports, t)
	return t, nil
}

// SetDialError makes every following Dial fail with err; nil restores success
func (d *MockDialer) SetDialError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialErr = err
}

// Dials returns how many times Dial was called
func (d *MockDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

// URLs returns every dialed URL
func (d *MockDialer) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

// Last returns the most recent transport, nil before the first successful dial
func (d *MockDialer) Last() *MockTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}
