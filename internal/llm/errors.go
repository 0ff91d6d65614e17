package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/sashabaranov/go-openai"

	"github.com/Kocoro-lab/queryrouter/internal/circuitbreaker"
)

type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindRateLimited ErrorKind = "rate_limited"
	KindUnavailable ErrorKind = "unavailable"
	KindBadResponse ErrorKind = "bad_response"
)

var (
	// ErrToolLoopExhausted is returned when the model keeps requesting tools past MaxToolRounds.
	ErrToolLoopExhausted = errors.New("tool-use rounds exhausted")
	// ErrEmptyChoices is returned when the backend answered without any candidate.
	ErrEmptyChoices = errors.New("backend returned no choices")
)

// Error is a classified backend failure.
type Error struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Timeout reports whether the call hit a deadline.
func (e *Error) Timeout() bool { return e.Kind == KindTimeout }

func badResponse(provider string, err error) *Error {
	return &Error{Kind: KindBadResponse, Provider: provider, Err: err}
}

// classify maps transport and SDK errors onto an ErrorKind.
func classify(provider string, err error) *Error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		return le
	}

	kind := KindUnavailable
	var netErr net.Error
	var oaAPI *openai.APIError
	var oaReq *openai.RequestError
	var anErr *anthropic.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	case errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		kind = KindUnavailable
	case errors.As(err, &oaAPI):
		kind = kindForStatus(oaAPI.HTTPStatusCode)
	case errors.As(err, &oaReq):
		kind = kindForStatus(oaReq.HTTPStatusCode)
	case errors.As(err, &anErr):
		kind = kindForStatus(anErr.StatusCode)
	}
	return &Error{Kind: kind, Provider: provider, Err: err}
}

func kindForStatus(code int) ErrorKind {
	switch {
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return KindTimeout
	case code >= 500 || code == 0:
		return KindUnavailable
	default:
		return KindBadResponse
	}
}
