package router

import (
	"errors"
	"fmt"

	"go.temporal.io/sdk/temporal"

	"github.com/Kocoro-lab/queryrouter/internal/workflows"
)

// CauseWorkflowTimeout is reported when the whole run exceeded its execution timeout.
const CauseWorkflowTimeout = "WorkflowTimeout"

// WorkflowError is a failed run: the step that failed and its cause.
type WorkflowError struct {
	Step      string
	CauseType string
	Message   string
	Timeout   bool
	Err       error
}

func (e *WorkflowError) Error() string {
	if e.Step == "" {
		return fmt.Sprintf("run failed: %s: %s", e.CauseType, e.Message)
	}
	return fmt.Sprintf("run failed at %s: %s: %s", e.Step, e.CauseType, e.Message)
}

func (e *WorkflowError) Unwrap() error { return e.Err }

// decodeError turns a workflow failure into *WorkflowError; other errors
// (transport, context) pass through.
func decodeError(err error) error {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.Type() == workflows.ErrTypeWorkflow {
		var d workflows.WorkflowErrorDetails
		if derr := appErr.Details(&d); derr != nil {
			d = workflows.WorkflowErrorDetails{CauseType: workflows.ErrTypeWorkflow, Message: appErr.Message()}
		}
		return &WorkflowError{Step: d.Step, CauseType: d.CauseType, Message: d.Message, Timeout: d.Timeout, Err: err}
	}
	var canceled *temporal.CanceledError
	if errors.As(err, &canceled) {
		return &WorkflowError{CauseType: workflows.CauseCanceled, Message: "run was canceled", Err: err}
	}
	var timeout *temporal.TimeoutError
	if errors.As(err, &timeout) {
		return &WorkflowError{CauseType: CauseWorkflowTimeout, Message: timeout.Error(), Timeout: true, Err: err}
	}
	return err
}
