package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Close codes with reserved meaning for the session
const (
	// CloseSessionInvalid is the server's custom code for an invalid or expired session
	CloseSessionInvalid  = 4000
	ClosePolicyViolation = websocket.ClosePolicyViolation
	CloseNormal          = websocket.CloseNormalClosure
	CloseGoingAway       = websocket.CloseGoingAway
	CloseAbnormal        = websocket.CloseAbnormalClosure
)

// Transport is one open duplex connection. *websocket.Conn implements it.
// Only one goroutine may call ReadMessage and one WriteMessage at a time;
// WriteControl and Close may be called concurrently with both.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Dialer opens transports
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// HandshakeError is an HTTP status returned instead of a websocket upgrade
type HandshakeError struct {
	Status int
	Err    error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("websocket handshake failed with HTTP %d: %v", e.Status, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// WebSocketDialer dials with gorilla/websocket, presenting the session cookie
type WebSocketDialer struct {
	dialer *websocket.Dialer
	header http.Header
}

// NewWebSocketDialer creates a dialer. cookie is sent verbatim as the Cookie header when set.
func NewWebSocketDialer(cookie string, handshakeTimeout time.Duration) *WebSocketDialer {
	d := *websocket.DefaultDialer
	if handshakeTimeout > 0 {
		d.HandshakeTimeout = handshakeTimeout
	}
	header := http.Header{}
	if cookie != "" {
		header.Set("Cookie", cookie)
	}
	return &WebSocketDialer{dialer: &d, header: header}
}

func (d *WebSocketDialer) Dial(ctx context.Context, url string) (Transport, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, d.header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, &HandshakeError{Status: resp.StatusCode, Err: err}
		}
		return nil, err
	}
	resp.Body.Close()
	return conn, nil
}

// CloseDisposition is what the reconnect policy does with a close code
type CloseDisposition int

const (
	CloseRetry CloseDisposition = iota
	CloseClean
	CloseTerminal
)

func (d CloseDisposition) String() string {
	switch d {
	case CloseClean:
		return "clean"
	case CloseTerminal:
		return "terminal"
	default:
		return "retry"
	}
}

// ClassifyClose maps a close code onto the reconnect policy
func ClassifyClose(code int) CloseDisposition {
	switch code {
	case CloseSessionInvalid, ClosePolicyViolation:
		return CloseTerminal
	case CloseNormal, CloseGoingAway:
		return CloseClean
	default:
		return CloseRetry
	}
}

// closeCodeOf extracts the close code from a read error. Anything that is not
// a close frame is reported as an abnormal closure.
func closeCodeOf(err error) (int, bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	return CloseAbnormal, false
}

// dialFailureCode maps a failed dial onto a close code. A refused handshake
// (401/403) is a policy rejection, everything else a dropped connection.
func dialFailureCode(err error) int {
	var he *HandshakeError
	if errors.As(err, &he) && (he.Status == http.StatusUnauthorized || he.Status == http.StatusForbidden) {
		return ClosePolicyViolation
	}
	return CloseAbnormal
}
