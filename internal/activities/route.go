package activities

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/queryrouter/internal/constants"
	"github.com/Kocoro-lab/queryrouter/internal/llm"
	"github.com/Kocoro-lab/queryrouter/internal/metrics"
	"github.com/Kocoro-lab/queryrouter/internal/prompts"
	"github.com/Kocoro-lab/queryrouter/internal/util"
)

var routingSchema = mustRoutingSchema()

// mustRoutingSchema derives the structured-output schema from routingAnswer,
// restricting category to the known labels.
func mustRoutingSchema() *llm.ResponseSchema {
	def, err := jsonschema.GenerateSchemaForType(routingAnswer{})
	if err != nil {
		panic(fmt.Sprintf("routing decision schema: %v", err))
	}
	cat := def.Properties["category"]
	for _, c := range Categories() {
		cat.Enum = append(cat.Enum, string(c))
	}
	def.Properties["category"] = cat

	raw, err := json.Marshal(def)
	if err != nil {
		panic(fmt.Sprintf("routing decision schema: %v", err))
	}
	return &llm.ResponseSchema{Name: "routing_decision", Schema: raw}
}

// RouteQuery classifies a query. It makes a single inference call and touches
// neither the database nor the tool set.
func (a *Activities) RouteQuery(ctx context.Context, in ClassifyInput) (RoutingDecision, error) {
	logger := a.loggerFor(ctx, constants.RouteQueryActivity)
	if strings.TrimSpace(in.Query) == "" {
		return RoutingDecision{}, NewInvalidInputError("query must not be empty")
	}

	ctx, rec := startStep(ctx, constants.RouteQueryActivity, "")
	var (
		tokens int
		err    error
	)
	defer func() { rec.finish(tokens, err) }()

	rendered, rerr := a.prompts.Render(prompts.RouteQuery, prompts.Data{Query: in.Query})
	if rerr != nil {
		err = newConfigurationError(rerr)
		return RoutingDecision{}, err
	}

	resp, cerr := a.completer.Complete(ctx, llm.Request{
		Instructions: rendered.Instructions,
		Input:        rendered.Input,
		Schema:       routingSchema,
	})
	tokens = resp.TokensUsed
	if cerr != nil {
		logger.Warn("Classification failed", zap.Error(cerr))
		err = NewBackendError(constants.RouteQueryActivity, cerr)
		return RoutingDecision{}, err
	}

	var answer routingAnswer
	if uerr := json.Unmarshal([]byte(resp.Text), &answer); uerr != nil {
		err = NewBackendError(constants.RouteQueryActivity, fmt.Errorf("malformed routing decision: %w", uerr))
		return RoutingDecision{}, err
	}
	decision := RoutingDecision{Category: answer.Category, Explanation: answer.Explanation, TokensUsed: tokens}

	metrics.RoutingDecisions.WithLabelValues(categoryLabel(decision.Category)).Inc()
	logger.Info("Query classified",
		zap.String("category", string(decision.Category)),
		zap.String("query", util.Preview(in.Query, 120)),
		zap.String("explanation", util.Preview(decision.Explanation, 200)),
		zap.Int("tokens", tokens),
	)
	return decision, nil
}

// categoryLabel bounds the metric label set to the known categories.
func categoryLabel(c Category) string {
	for _, known := range Categories() {
		if c == known {
			return string(c)
		}
	}
	return "other"
}
