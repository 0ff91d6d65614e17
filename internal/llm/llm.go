// Package llm is the inference backend used by the routing activities.
// Providers implement Completer; the activities never see provider types.
package llm

import (
	"context"
	"encoding/json"

	"github.com/Kocoro-lab/queryrouter/internal/tools"
)

// Completer runs one completion, including any tool-use rounds it needs.
type Completer interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (Response, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// ResponseSchema constrains the completion to a JSON document.
type ResponseSchema struct {
	Name   string
	Schema json.RawMessage
}

type Request struct {
	Instructions string
	Input        string
	Schema       *ResponseSchema
	// Tools, when non-empty, are offered to the model and invoked on its behalf.
	Tools         *tools.ToolSet
	MaxToolRounds int
}

// ToolCall records one tool invocation made during a completion.
type ToolCall struct {
	Name      string
	Arguments string
	Result    string
	IsError   bool
}

type Response struct {
	Text       string
	TokensUsed int
	Model      string
	ToolCalls  []ToolCall
}

const defaultMaxToolRounds = 8

func maxRounds(req Request) int {
	if req.MaxToolRounds > 0 {
		return req.MaxToolRounds
	}
	return defaultMaxToolRounds
}
