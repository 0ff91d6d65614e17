package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Kocoro-lab/queryrouter/internal/metrics"
	"github.com/Kocoro-lab/queryrouter/internal/tools"
)

// runTool executes a model-requested call. Failures are reported back to the
// model as error results rather than aborting the completion.
func runTool(ctx context.Context, set *tools.ToolSet, name, arguments string) ToolCall {
	call := ToolCall{Name: name, Arguments: arguments}

	tool, ok := set.Get(name)
	if !ok {
		call.Result = fmt.Sprintf("unknown tool %q", name)
		call.IsError = true
		metrics.LLMToolCalls.WithLabelValues("unknown", "error").Inc()
		return call
	}

	args := map[string]any{}
	if arguments != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			call.Result = fmt.Sprintf("invalid arguments: %v", err)
			call.IsError = true
			metrics.LLMToolCalls.WithLabelValues(name, "error").Inc()
			return call
		}
	}

	res, err := tool.Invoke(ctx, args)
	if err != nil {
		call.Result = err.Error()
		call.IsError = true
		metrics.LLMToolCalls.WithLabelValues(name, "error").Inc()
		return call
	}
	call.Result = res.Text
	call.IsError = res.IsError
	status := "success"
	if res.IsError {
		status = "tool_error"
	}
	metrics.LLMToolCalls.WithLabelValues(name, status).Inc()
	return call
}

// toolParameters decodes a descriptor's input schema, defaulting to an empty object.
func toolParameters(d tools.ToolDescriptor) map[string]any {
	out := map[string]any{}
	if len(d.InputSchema) > 0 {
		_ = json.Unmarshal(d.InputSchema, &out)
	}
	if _, ok := out["type"]; !ok {
		out["type"] = "object"
	}
	if _, ok := out["properties"]; !ok {
		out["properties"] = map[string]any{}
	}
	return out
}
