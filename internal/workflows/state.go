package workflows

import (
	"fmt"

	"github.com/Kocoro-lab/queryrouter/internal/activities"
)

// RunStatus is the controller's position in a run.
type RunStatus string

const (
	StatusStarted       RunStatus = "Started"
	StatusClassified    RunStatus = "Classified"
	StatusPathExecuting RunStatus = "PathExecuting"
	StatusCompleted     RunStatus = "Completed"
	StatusFailed        RunStatus = "Failed"
)

var runTransitions = map[RunStatus][]RunStatus{
	StatusStarted:       {StatusClassified, StatusFailed},
	StatusClassified:    {StatusPathExecuting, StatusFailed},
	StatusPathExecuting: {StatusCompleted, StatusFailed},
}

// InvocationStatus tracks one activity invocation.
type InvocationStatus string

const (
	InvocationPending   InvocationStatus = "Pending"
	InvocationRunning   InvocationStatus = "Running"
	InvocationSucceeded InvocationStatus = "Succeeded"
	InvocationFailed    InvocationStatus = "Failed"
)

var invocationTransitions = map[InvocationStatus][]InvocationStatus{
	InvocationPending: {InvocationRunning, InvocationFailed},
	InvocationRunning: {InvocationSucceeded, InvocationFailed},
}

// Invocation is the controller's record of one activity call.
type Invocation struct {
	ActivityID string           `json:"activity_id"`
	Step       string           `json:"step"`
	UsesTools  bool             `json:"uses_tools,omitempty"`
	Attempt    int32            `json:"attempt,omitempty"`
	Status     InvocationStatus `json:"status"`
	Error      string           `json:"error,omitempty"`
}

// RunState is what the run_state query returns. It is rebuilt from history on
// replay, never persisted separately.
type RunState struct {
	RunID       string                      `json:"run_id"`
	Query       string                      `json:"query"`
	Status      RunStatus                   `json:"status"`
	Decision    *activities.RoutingDecision `json:"decision,omitempty"`
	Path        string                      `json:"path,omitempty"`
	Invocations []Invocation                `json:"invocations"`
	Result      string                      `json:"result,omitempty"`
	Error       *WorkflowErrorDetails       `json:"error,omitempty"`
}

func newRunState(runID, query string) *RunState {
	return &RunState{RunID: runID, Query: query, Status: StatusStarted, Invocations: []Invocation{}}
}

func allowed(table map[RunStatus][]RunStatus, from, to RunStatus) bool {
	for _, s := range table[from] {
		if s == to {
			return true
		}
	}
	return false
}

// advance moves the run forward. Transitions never go backwards.
func (s *RunState) advance(to RunStatus) error {
	if !allowed(runTransitions, s.Status, to) {
		return fmt.Errorf("illegal run transition %s -> %s", s.Status, to)
	}
	s.Status = to
	return nil
}

// begin appends a Pending invocation and returns its index.
func (s *RunState) begin(step string, usesTools bool) int {
	s.Invocations = append(s.Invocations, Invocation{
		ActivityID: fmt.Sprintf("%d-%s", len(s.Invocations)+1, step),
		Step:       step,
		UsesTools:  usesTools,
		Status:     InvocationPending,
	})
	return len(s.Invocations) - 1
}

func (s *RunState) mark(i int, to InvocationStatus) {
	inv := &s.Invocations[i]
	for _, next := range invocationTransitions[inv.Status] {
		if next == to {
			inv.Status = to
			return
		}
	}
}

// snapshot returns a copy safe to hand to the query handler.
func (s *RunState) snapshot() RunState {
	out := *s
	out.Invocations = append([]Invocation(nil), s.Invocations...)
	if s.Decision != nil {
		d := *s.Decision
		out.Decision = &d
	}
	if s.Error != nil {
		e := *s.Error
		out.Error = &e
	}
	return out
}
