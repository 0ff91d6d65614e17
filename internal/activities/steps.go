package activities

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/queryrouter/internal/constants"
	"github.com/Kocoro-lab/queryrouter/internal/llm"
	"github.com/Kocoro-lab/queryrouter/internal/prompts"
	"github.com/Kocoro-lab/queryrouter/internal/schema"
	"github.com/Kocoro-lab/queryrouter/internal/util"
)

// BuildQuery turns the user's question into SQL, grounded on the current table schema.
func (a *Activities) BuildQuery(ctx context.Context, in StepInput) (out StepOutput, err error) {
	if strings.TrimSpace(in.Query) == "" {
		return StepOutput{}, NewSchemaMismatchError("BuildQuery requires a non-empty query")
	}
	ctx, rec := startStep(ctx, constants.BuildQueryActivity, in.RunID)
	defer func() { rec.finish(out.TokensUsed, err) }()

	if a.schema == nil {
		return StepOutput{}, newConfigurationError(errNoSchemaSource)
	}
	s, err := a.schema.GetTableSchema(ctx)
	if err != nil {
		return StepOutput{}, NewBackendError(constants.BuildQueryActivity, err)
	}

	out, err = a.complete(ctx, constants.BuildQueryActivity, prompts.PrepareDatabaseQuery,
		prompts.Data{Query: schema.FormatPrompt(s, in.Query), Category: string(in.Category)}, false)
	out.Text = stripCodeFence(out.Text)
	return out, err
}

// ExecuteQuery runs the generated SQL through the discovered tools and
// summarises the result.
func (a *Activities) ExecuteQuery(ctx context.Context, in StepInput) (out StepOutput, err error) {
	if strings.TrimSpace(in.Previous) == "" {
		return StepOutput{}, NewSchemaMismatchError("ExecuteQuery requires the SQL produced by the previous step")
	}
	ctx, rec := startStep(ctx, constants.ExecuteQueryActivity, in.RunID)
	defer func() { rec.finish(out.TokensUsed, err) }()

	return a.complete(ctx, constants.ExecuteQueryActivity, prompts.HandleDatabaseQuery,
		prompts.Data{Query: in.Previous, Category: string(in.Category)}, true)
}

// AnswerDirectly answers a query with a plain completion.
func (a *Activities) AnswerDirectly(ctx context.Context, in StepInput) (out StepOutput, err error) {
	if strings.TrimSpace(in.Query) == "" {
		return StepOutput{}, NewSchemaMismatchError("AnswerDirectly requires a non-empty query")
	}
	ctx, rec := startStep(ctx, constants.AnswerDirectlyActivity, in.RunID)
	defer func() { rec.finish(out.TokensUsed, err) }()

	return a.complete(ctx, constants.AnswerDirectlyActivity, prompts.HandleNonDatabaseQuery,
		prompts.Data{Query: in.Query, Category: string(in.Category)}, false)
}

// complete renders the named prompt and runs one completion, binding the
// current tool set when withTools is set.
func (a *Activities) complete(ctx context.Context, step, prompt string, data prompts.Data, withTools bool) (StepOutput, error) {
	logger := a.loggerFor(ctx, step)

	req := llm.Request{MaxToolRounds: a.MaxToolRounds}
	if withTools {
		if a.tools == nil {
			return StepOutput{}, NewToolsUnavailableError(errNoToolEndpoint)
		}
		set, err := a.tools.Current()
		if err != nil {
			logger.Warn("Tool set unavailable", zap.Error(err))
			return StepOutput{}, NewToolsUnavailableError(err)
		}
		req.Tools = set
	}

	rendered, err := a.prompts.Render(prompt, data)
	if err != nil {
		return StepOutput{}, newConfigurationError(err)
	}
	req.Instructions = rendered.Instructions
	req.Input = rendered.Input

	resp, err := a.completer.Complete(ctx, req)
	out := StepOutput{
		Text:       resp.Text,
		TokensUsed: resp.TokensUsed,
		Model:      resp.Model,
		ToolCalls:  len(resp.ToolCalls),
		Attempt:    attempt(ctx),
	}
	if err != nil {
		logger.Warn("Backend call failed", zap.Error(err))
		return out, NewBackendError(step, err)
	}
	logger.Info("Step completed",
		zap.Int("tokens", out.TokensUsed),
		zap.Int("tool_calls", out.ToolCalls),
		zap.Int("output_len", len(out.Text)),
		zap.String("output_preview", util.Preview(out.Text, 160)),
	)
	return out, nil
}

var (
	fenceTagLine   = regexp.MustCompile(`^[A-Za-z0-9_+-]*$`)
	inlineFenceTag = regexp.MustCompile(`(?i)^(sql|postgresql|postgres|pgsql|psql|plpgsql)\s+`)
)

// stripCodeFence removes a surrounding ``` fence (with optional language tag).
func stripCodeFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		if fenceTagLine.MatchString(strings.TrimSpace(t[:nl])) {
			t = t[nl+1:]
		}
	} else {
		t = inlineFenceTag.ReplaceAllString(t, "")
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}
