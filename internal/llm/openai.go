package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/queryrouter/internal/metrics"
	"github.com/Kocoro-lab/queryrouter/internal/tracing"
)

const providerOpenAI = "openai"

// OpenAI completes through the chat completions API (or any compatible endpoint).
type OpenAI struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

type OpenAIOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	HTTPClient *http.Client
}

func NewOpenAI(opts OpenAIOptions, logger *zap.Logger) *OpenAI {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	model := opts.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		maxTokens: opts.MaxTokens,
		logger:    logger,
	}
}

func (o *OpenAI) Complete(ctx context.Context, req Request) (resp Response, err error) {
	ctx, span := tracing.StartSpan(ctx, "llm.openai.complete")
	defer span.End()
	defer func() {
		status := "success"
		if err != nil {
			status = string(classify(providerOpenAI, err).Kind)
			span.RecordError(err)
		}
		metrics.LLMRequests.WithLabelValues(providerOpenAI, status).Inc()
	}()

	messages := []openai.ChatCompletionMessage{}
	if req.Instructions != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.Instructions})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Input})

	chat := openai.ChatCompletionRequest{
		Model:     o.model,
		MaxTokens: o.maxTokens,
	}
	if req.Schema != nil {
		chat.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.Schema.Name,
				Schema: req.Schema.Schema,
				Strict: true,
			},
		}
	}
	if req.Tools.Len() > 0 {
		for _, d := range req.Tools.List() {
			chat.Tools = append(chat.Tools, openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        d.Name,
					Description: d.Description,
					Parameters:  toolParameters(d),
				},
			})
		}
	}

	rounds := maxRounds(req)
	for round := 0; round <= rounds; round++ {
		chat.Messages = messages
		start := time.Now()
		out, err := o.client.CreateChatCompletion(ctx, chat)
		if err != nil {
			return resp, classify(providerOpenAI, err)
		}
		resp.TokensUsed += out.Usage.TotalTokens
		resp.Model = out.Model
		if len(out.Choices) == 0 {
			return resp, badResponse(providerOpenAI, ErrEmptyChoices)
		}
		msg := out.Choices[0].Message
		o.logger.Debug("Chat completion round",
			zap.Int("round", round),
			zap.Int("tool_calls", len(msg.ToolCalls)),
			zap.Duration("duration", time.Since(start)),
		)

		if len(msg.ToolCalls) == 0 || req.Tools.Len() == 0 {
			resp.Text = msg.Content
			if req.Schema != nil && !json.Valid([]byte(resp.Text)) {
				return resp, badResponse(providerOpenAI, errors.New("structured output is not valid JSON"))
			}
			return resp, nil
		}
		if round == rounds {
			break
		}

		messages = append(messages, msg)
		for _, tc := range msg.ToolCalls {
			call := runTool(ctx, req.Tools, tc.Function.Name, tc.Function.Arguments)
			resp.ToolCalls = append(resp.ToolCalls, call)
			content := call.Result
			if call.IsError {
				content = "error: " + content
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    content,
				ToolCallID: tc.ID,
			})
		}
	}
	return resp, badResponse(providerOpenAI, ErrToolLoopExhausted)
}
