package workflows

import (
	"strings"

	"go.temporal.io/sdk/workflow"

	"github.com/Kocoro-lab/queryrouter/internal/activities"
	"github.com/Kocoro-lab/queryrouter/internal/constants"
	ometrics "github.com/Kocoro-lab/queryrouter/internal/metrics"
)

// Controller classifies a query, resolves its path and runs the path's steps
// in order. Branching depends only on the input and recorded activity results.
type Controller struct {
	Catalog PathCatalog
	// Steps builds the step registry for a run; nil uses DefaultSteps.
	Steps func(RunOptions) StepRegistry
}

// NewController returns a controller with the default catalog and steps.
func NewController() *Controller {
	return &Controller{Catalog: DefaultCatalog(), Steps: DefaultSteps}
}

// QueryRouterWorkflow is the default controller's workflow function.
func QueryRouterWorkflow(ctx workflow.Context, input RouteInput) (RouteResult, error) {
	return NewController().Run(ctx, input)
}

// Run is the workflow body.
func (c *Controller) Run(ctx workflow.Context, input RouteInput) (RouteResult, error) {
	logger := workflow.GetLogger(ctx)
	info := workflow.GetInfo(ctx)
	started := workflow.Now(ctx)
	o := input.Options.withDefaults()

	state := newRunState(info.WorkflowExecution.ID, input.Query)
	if err := workflow.SetQueryHandler(ctx, constants.RunStateQuery, func() (RunState, error) {
		return state.snapshot(), nil
	}); err != nil {
		return RouteResult{}, err
	}

	stepsFor := c.Steps
	if stepsFor == nil {
		stepsFor = DefaultSteps
	}
	exec := &executor{steps: stepsFor(o), state: state}

	logger.Info("Starting QueryRouterWorkflow", "run_id", state.RunID, "query_len", len(input.Query))

	fail := func(d WorkflowErrorDetails, cause error) (RouteResult, error) {
		_ = state.advance(StatusFailed)
		state.Error = &d
		logger.Error("Run failed", "step", d.Step, "cause_type", d.CauseType, "error", d.Message)
		category := "unclassified"
		if state.Decision != nil {
			category = string(state.Decision.Category)
		}
		if !workflow.IsReplaying(ctx) {
			ometrics.RecordWorkflow(category, "failed", workflow.Now(ctx).Sub(started))
		}
		if d.CauseType == CauseCanceled {
			return RouteResult{}, cause
		}
		return RouteResult{}, newWorkflowError(d, cause)
	}

	if strings.TrimSpace(input.Query) == "" {
		err := activities.NewInvalidInputError("query must not be empty")
		return fail(describe(constants.RouteQueryActivity, err), err)
	}

	// 1) Classify. Once recorded in history the decision is never recomputed.
	var decision activities.RoutingDecision
	if err := exec.invoke(ctx, constants.RouteQueryActivity, activities.ClassifyInput{Query: input.Query}, &decision); err != nil {
		return fail(describe(constants.RouteQueryActivity, err), err)
	}
	state.Decision = &decision
	_ = state.advance(StatusClassified)

	// 2) Resolve the path; unknown categories take the default path.
	path := c.Catalog.Resolve(decision.Category)
	if _, known := c.Catalog.Paths[decision.Category]; !known {
		logger.Warn("Unknown category, using default path", "category", string(decision.Category), "path", path.Name)
	}
	state.Path = path.Name
	_ = state.advance(StatusPathExecuting)
	logger.Info("Query routed",
		"category", string(decision.Category),
		"path", path.Name,
		"steps", len(path.Steps),
	)

	// 3) Run the steps strictly in order, feeding each the previous output.
	result := RouteResult{
		Category:    decision.Category,
		Explanation: decision.Explanation,
		Path:        path.Name,
		Steps:       append([]string(nil), path.Steps...),
		TokensUsed:  decision.TokensUsed,
	}
	var previous string
	for _, step := range path.Steps {
		var out activities.StepOutput
		in := activities.StepInput{
			Query:    input.Query,
			Previous: previous,
			Category: decision.Category,
			RunID:    state.RunID,
		}
		if err := exec.invoke(ctx, step, in, &out); err != nil {
			return fail(describe(step, err), err)
		}
		previous = out.Text
		result.TokensUsed += out.TokensUsed
	}

	result.Result = previous
	state.Result = previous
	_ = state.advance(StatusCompleted)
	if !workflow.IsReplaying(ctx) {
		ometrics.RecordWorkflow(string(decision.Category), "completed", workflow.Now(ctx).Sub(started))
	}
	logger.Info("QueryRouterWorkflow completed", "path", path.Name, "tokens", result.TokensUsed)
	return result, nil
}
