package tools

import (
	"errors"
	"fmt"
)

// ErrToolsUnavailable is returned by Holder.Current when discovery failed or never ran.
var ErrToolsUnavailable = errors.New("tools unavailable")

// ConnectionError means the tool endpoint could not be reached or the
// transport dropped before a usable session existed.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to tool endpoint %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// HandshakeError means the transport came up but protocol initialization failed.
type HandshakeError struct {
	Endpoint string
	Err      error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake with tool endpoint %s: %v", e.Endpoint, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }
