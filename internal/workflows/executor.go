package workflows

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/Kocoro-lab/queryrouter/internal/activities"
	"github.com/Kocoro-lab/queryrouter/internal/constants"
	"github.com/Kocoro-lab/queryrouter/internal/workflows/opts"
)

// StepSpec describes how one activity is invoked.
type StepSpec struct {
	Name          string
	Timeout       time.Duration
	RetryPolicy   *temporal.RetryPolicy
	RequiresTools bool
	// Validate checks the input before anything is scheduled.
	Validate func(input interface{}) error
}

// StepRegistry resolves activity names to their invocation specs.
type StepRegistry map[string]StepSpec

// Register adds or replaces a step.
func (r StepRegistry) Register(spec StepSpec) {
	r[spec.Name] = spec
}

// DefaultSteps returns the classifier and path steps configured from o.
func DefaultSteps(o RunOptions) StepRegistry {
	o = o.withDefaults()
	retry := func() *temporal.RetryPolicy {
		return opts.StepRetryPolicy(o.MaxAttempts, activities.NonRetryableErrorTypes)
	}
	r := StepRegistry{}
	r.Register(StepSpec{
		Name:        constants.RouteQueryActivity,
		Timeout:     o.ClassifyTimeout,
		RetryPolicy: retry(),
		Validate: func(in interface{}) error {
			ci, ok := in.(activities.ClassifyInput)
			if !ok {
				return mismatch(constants.RouteQueryActivity, in)
			}
			if strings.TrimSpace(ci.Query) == "" {
				return activities.NewSchemaMismatchError("RouteQuery requires a non-empty query")
			}
			return nil
		},
	})
	r.Register(StepSpec{
		Name:        constants.BuildQueryActivity,
		Timeout:     o.StepTimeout,
		RetryPolicy: retry(),
		Validate:    requireStepField(constants.BuildQueryActivity, "query", func(in activities.StepInput) string { return in.Query }),
	})
	r.Register(StepSpec{
		Name:          constants.ExecuteQueryActivity,
		Timeout:       o.StepTimeout,
		RetryPolicy:   retry(),
		RequiresTools: true,
		Validate:      requireStepField(constants.ExecuteQueryActivity, "previous step output", func(in activities.StepInput) string { return in.Previous }),
	})
	r.Register(StepSpec{
		Name:        constants.AnswerDirectlyActivity,
		Timeout:     o.StepTimeout,
		RetryPolicy: retry(),
		Validate:    requireStepField(constants.AnswerDirectlyActivity, "query", func(in activities.StepInput) string { return in.Query }),
	})
	return r
}

func requireStepField(step, field string, get func(activities.StepInput) string) func(interface{}) error {
	return func(in interface{}) error {
		si, ok := in.(activities.StepInput)
		if !ok {
			return mismatch(step, in)
		}
		if strings.TrimSpace(get(si)) == "" {
			return activities.NewSchemaMismatchError(fmt.Sprintf("%s requires a non-empty %s", step, field))
		}
		return nil
	}
}

func mismatch(step string, in interface{}) error {
	return activities.NewSchemaMismatchError(fmt.Sprintf("%s: unexpected input type %T", step, in))
}

// executor invokes registered steps for one run and records every invocation
// in the run state before and after it executes.
type executor struct {
	steps StepRegistry
	state *RunState
}

// invoke resolves name, validates input and executes the activity, storing
// the result in out. Returned errors are already classified.
func (e *executor) invoke(ctx workflow.Context, name string, input interface{}, out interface{}) error {
	spec, ok := e.steps[name]
	if !ok {
		idx := e.state.begin(name, false)
		err := activities.NewUnknownActivityError(name)
		e.fail(idx, err)
		return err
	}

	idx := e.state.begin(name, spec.RequiresTools)
	if spec.Validate != nil {
		if err := spec.Validate(input); err != nil {
			e.fail(idx, err)
			return err
		}
	}

	actx := workflow.WithActivityOptions(ctx, opts.StepActivityOptions(spec.Timeout, spec.RetryPolicy))
	e.state.mark(idx, InvocationRunning)
	if err := workflow.ExecuteActivity(actx, name, input).Get(ctx, out); err != nil {
		classified := classifyStepError(name, err)
		e.fail(idx, classified)
		return classified
	}
	e.state.mark(idx, InvocationSucceeded)
	if so, ok := out.(*activities.StepOutput); ok {
		e.state.Invocations[idx].Attempt = so.Attempt
	}
	return nil
}

func (e *executor) fail(idx int, err error) {
	e.state.mark(idx, InvocationFailed)
	e.state.Invocations[idx].Error = err.Error()
}
