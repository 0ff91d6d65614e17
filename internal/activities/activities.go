package activities

import (
	"context"

	"go.temporal.io/sdk/activity"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/queryrouter/internal/llm"
	"github.com/Kocoro-lab/queryrouter/internal/prompts"
	"github.com/Kocoro-lab/queryrouter/internal/schema"
	"github.com/Kocoro-lab/queryrouter/internal/tools"
)

// Activities struct holds dependencies for activities
type Activities struct {
	completer llm.Completer
	prompts   *prompts.Store
	schema    schema.Source
	tools     *tools.Holder
	logger    *zap.Logger

	// MaxToolRounds bounds the tool-use loop of ExecuteQuery (0 uses the backend default).
	MaxToolRounds int
}

// NewActivities creates a new activities instance with dependencies.
// holder may be nil when no tool endpoint is configured; tool-bound steps then
// fail with ToolsUnavailableError.
func NewActivities(completer llm.Completer, store *prompts.Store, src schema.Source, holder *tools.Holder, logger *zap.Logger) *Activities {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Activities{
		completer: completer,
		prompts:   store,
		schema:    src,
		tools:     holder,
		logger:    logger,
	}
}

// loggerFor returns the zap logger annotated with the Temporal execution, when
// called from inside an activity.
func (a *Activities) loggerFor(ctx context.Context, step string) *zap.Logger {
	l := a.logger.With(zap.String("step", step))
	if !activity.IsActivity(ctx) {
		return l
	}
	info := activity.GetInfo(ctx)
	return l.With(
		zap.String("workflow_id", info.WorkflowExecution.ID),
		zap.String("run_id", info.WorkflowExecution.RunID),
		zap.Int32("attempt", info.Attempt),
	)
}

func attempt(ctx context.Context) int32 {
	if !activity.IsActivity(ctx) {
		return 1
	}
	return activity.GetInfo(ctx).Attempt
}
