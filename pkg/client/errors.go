package client

import (
	"errors"
	"fmt"

	"github.com/aeolun/chatsync/pkg/restapi"
)

// PreconditionError reports an operation called with unusable arguments
type PreconditionError struct {
	Op     string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// ConnectionError is a transient connection failure; the reconnect policy recovers from it
type ConnectionError struct {
	Code int
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connection lost (code %d): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("connection lost (code %d)", e.Code)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// AuthRejectedError is a terminal rejection of the session. It is never retried.
type AuthRejectedError struct {
	// Code is the websocket close code, zero when the rejection came over HTTP
	Code int
	Err  error
}

func (e *AuthRejectedError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("session rejected by server (close code %d)", e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("session rejected by server: %v", e.Err)
	}
	return "session rejected by server"
}

func (e *AuthRejectedError) Unwrap() error {
	return e.Err
}

// ErrNotConnected is returned by Send when the connection is not open
var ErrNotConnected = errors.New("not connected")

// IsAuthFailure reports whether err must send the user back to login:
// a terminal close code or a collaborator authentication failure.
func IsAuthFailure(err error) bool {
	var rejected *AuthRejectedError
	if errors.As(err, &rejected) {
		return true
	}
	return errors.Is(err, restapi.ErrUnauthorized)
}
