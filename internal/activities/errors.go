package activities

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/temporal"

	"github.com/Kocoro-lab/queryrouter/internal/llm"
)

// Application error types. They cross the activity/workflow/client boundary
// as temporal.ApplicationError.Type().
const (
	ErrTypeInvalidInput     = "InvalidInputError"
	ErrTypeUnknownActivity  = "UnknownActivityError"
	ErrTypeSchemaMismatch   = "SchemaMismatchError"
	ErrTypeBackend          = "BackendError"
	ErrTypeToolsUnavailable = "ToolsUnavailableError"
	ErrTypeConfiguration    = "ConfigurationError"
)

// NonRetryableErrorTypes are never retried regardless of the step's policy.
var NonRetryableErrorTypes = []string{
	ErrTypeInvalidInput,
	ErrTypeUnknownActivity,
	ErrTypeSchemaMismatch,
	ErrTypeToolsUnavailable,
	ErrTypeConfiguration,
}

// BackendDetails is attached to every BackendError.
type BackendDetails struct {
	Timeout  bool   `json:"timeout"`
	Kind     string `json:"kind,omitempty"`
	Provider string `json:"provider,omitempty"`
}

func NewInvalidInputError(msg string) error {
	return temporal.NewNonRetryableApplicationError(msg, ErrTypeInvalidInput, nil)
}

func NewUnknownActivityError(name string) error {
	return temporal.NewNonRetryableApplicationError(fmt.Sprintf("no handler registered for activity %q", name), ErrTypeUnknownActivity, nil)
}

func NewSchemaMismatchError(msg string) error {
	return temporal.NewNonRetryableApplicationError(msg, ErrTypeSchemaMismatch, nil)
}

func NewToolsUnavailableError(cause error) error {
	return temporal.NewNonRetryableApplicationError("tool set is unavailable", ErrTypeToolsUnavailable, cause)
}

func newConfigurationError(cause error) error {
	return temporal.NewNonRetryableApplicationError(cause.Error(), ErrTypeConfiguration, cause)
}

// NewBackendError classifies a backend failure. It stays retryable so the
// step's retry policy decides how many attempts are made.
func NewBackendError(step string, cause error) error {
	d := BackendDetails{}
	var le *llm.Error
	switch {
	case errors.As(cause, &le):
		d.Kind = string(le.Kind)
		d.Provider = le.Provider
		d.Timeout = le.Timeout()
	case errors.Is(cause, context.DeadlineExceeded):
		d.Kind = string(llm.KindTimeout)
		d.Timeout = true
	}
	return temporal.NewApplicationErrorWithCause(fmt.Sprintf("%s: backend call failed: %v", step, cause), ErrTypeBackend, cause, d)
}

var (
	errNoSchemaSource = errors.New("no schema source configured")
	errNoToolEndpoint = errors.New("no tool endpoint configured")
)
