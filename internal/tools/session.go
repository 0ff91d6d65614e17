package tools

import (
	"context"
	"encoding/json"
)

// Endpoint identifies a tool-hosting server and the session to open on it.
type Endpoint struct {
	URL         string
	SessionName string
	Headers     map[string]string
}

// ToolInfo is a tool as advertised by the server.
type ToolInfo struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// CallResult is the textual outcome of one tool call. IsError is set when the
// tool ran but reported a failure; transport failures are returned as errors.
type CallResult struct {
	Text    string
	IsError bool
}

// Session is one open connection to a tool server.
type Session interface {
	ListTools(ctx context.Context) ([]ToolInfo, error)
	CallTool(ctx context.Context, name string, args map[string]any) (CallResult, error)
	Close() error
}

// Dialer opens sessions. Open returns *ConnectionError or *HandshakeError on failure.
type Dialer interface {
	Open(ctx context.Context, ep Endpoint) (Session, error)
}
