package interceptors

import (
	"net/http"
	"strconv"

	"go.temporal.io/sdk/activity"

	"github.com/Kocoro-lab/queryrouter/internal/tracing"
)

const (
	HeaderWorkflowID   = "X-Workflow-ID"
	HeaderRunID        = "X-Run-ID"
	HeaderActivityType = "X-Activity-Type"
	HeaderAttempt      = "X-Activity-Attempt"
)

// WorkflowHTTPRoundTripper adds workflow metadata and the W3C traceparent to
// outgoing inference and tool-server requests made from inside an activity.
type WorkflowHTTPRoundTripper struct {
	base http.RoundTripper
}

// NewWorkflowHTTPRoundTripper creates a new HTTP interceptor that adds workflow metadata
func NewWorkflowHTTPRoundTripper(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &WorkflowHTTPRoundTripper{base: base}
}

// RoundTrip implements http.RoundTripper and injects workflow headers
func (w *WorkflowHTTPRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if info, ok := activityInfo(req); ok && info.WorkflowExecution.ID != "" {
		req.Header.Set(HeaderWorkflowID, info.WorkflowExecution.ID)
		req.Header.Set(HeaderRunID, info.WorkflowExecution.RunID)
		req.Header.Set(HeaderActivityType, info.ActivityType.Name)
		req.Header.Set(HeaderAttempt, strconv.Itoa(int(info.Attempt)))
	}
	if req.Header.Get("traceparent") == "" {
		tracing.InjectTraceparent(req.Context(), req)
	}
	return w.base.RoundTrip(req)
}

// activityInfo returns the activity info when the request context belongs to an
// activity. activity.GetInfo panics outside one (CLI, tests).
func activityInfo(req *http.Request) (info activity.Info, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	if !activity.IsActivity(req.Context()) {
		return activity.Info{}, false
	}
	return activity.GetInfo(req.Context()), true
}
