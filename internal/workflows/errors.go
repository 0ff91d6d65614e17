package workflows

import (
	"errors"
	"fmt"

	"go.temporal.io/sdk/temporal"

	"github.com/Kocoro-lab/queryrouter/internal/activities"
)

// ErrTypeWorkflow is the application error type of a failed run.
const ErrTypeWorkflow = "WorkflowError"

// CauseCanceled is reported as the cause type of a cancelled run.
const CauseCanceled = "Canceled"

// WorkflowErrorDetails names the step that failed and why.
type WorkflowErrorDetails struct {
	Step      string `json:"step"`
	CauseType string `json:"cause_type"`
	Message   string `json:"message"`
	Timeout   bool   `json:"timeout,omitempty"`
}

// classifyStepError maps what came back from an activity onto the error
// taxonomy. Application errors keep their type; deadlines become
// BackendError{timeout}; cancellation is passed through untouched.
func classifyStepError(step string, err error) error {
	var canceled *temporal.CanceledError
	if errors.As(err, &canceled) {
		return err
	}
	var timeoutErr *temporal.TimeoutError
	if errors.As(err, &timeoutErr) {
		return temporal.NewApplicationErrorWithCause(
			fmt.Sprintf("%s: deadline exceeded (%s)", step, timeoutErr.TimeoutType()),
			activities.ErrTypeBackend, err,
			activities.BackendDetails{Timeout: true, Kind: "timeout"},
		)
	}
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return err
	}
	return temporal.NewApplicationErrorWithCause(fmt.Sprintf("%s: %v", step, err), activities.ErrTypeBackend, err, activities.BackendDetails{})
}

// describe extracts the details reported for a classified step error.
func describe(step string, err error) WorkflowErrorDetails {
	d := WorkflowErrorDetails{Step: step, Message: err.Error()}
	var canceled *temporal.CanceledError
	if errors.As(err, &canceled) {
		d.CauseType = CauseCanceled
		return d
	}
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		d.CauseType = appErr.Type()
		d.Message = appErr.Message()
		if appErr.Type() == activities.ErrTypeBackend && appErr.HasDetails() {
			var bd activities.BackendDetails
			if appErr.Details(&bd) == nil {
				d.Timeout = bd.Timeout
			}
		}
		return d
	}
	d.CauseType = activities.ErrTypeBackend
	return d
}

// newWorkflowError wraps the first fatal cause of a run.
func newWorkflowError(d WorkflowErrorDetails, cause error) error {
	return temporal.NewNonRetryableApplicationError(
		fmt.Sprintf("step %s failed: %s: %s", d.Step, d.CauseType, d.Message),
		ErrTypeWorkflow, cause, d,
	)
}
