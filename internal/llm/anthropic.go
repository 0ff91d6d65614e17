package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/queryrouter/internal/metrics"
	"github.com/Kocoro-lab/queryrouter/internal/tracing"
)

const providerAnthropic = "anthropic"

// Anthropic completes through the Messages API, directly or via Bedrock.
type Anthropic struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	logger    *zap.Logger
}

type AnthropicOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	HTTPClient *http.Client

	UseBedrock    bool
	BedrockRegion string
	AWSProfile    string
}

func NewAnthropic(ctx context.Context, opts AnthropicOptions, logger *zap.Logger) (*Anthropic, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	// Retries belong to the activity retry policy, not the SDK.
	reqOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	model := anthropic.Model(opts.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_5_20250929
	}

	if opts.UseBedrock {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if opts.BedrockRegion != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(opts.BedrockRegion))
		}
		if opts.AWSProfile != "" {
			loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(opts.AWSProfile))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("load AWS config for bedrock: %w", err)
		}
		reqOpts = append(reqOpts, bedrock.WithConfig(awsCfg))
		model = bedrockModel(model)
	} else {
		if opts.APIKey == "" {
			return nil, errors.New("anthropic API key is not set")
		}
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
		if opts.BaseURL != "" {
			reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
		}
	}

	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Anthropic{
		client:    anthropic.NewClient(reqOpts...),
		model:     model,
		maxTokens: maxTokens,
		logger:    logger,
	}, nil
}

// bedrockModel maps first-party model ids onto Bedrock cross-region inference profiles.
func bedrockModel(model anthropic.Model) anthropic.Model {
	profiles := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
	}
	if p, ok := profiles[model]; ok {
		return anthropic.Model(p)
	}
	return model
}

func (a *Anthropic) Complete(ctx context.Context, req Request) (resp Response, err error) {
	ctx, span := tracing.StartSpan(ctx, "llm.anthropic.complete")
	defer span.End()
	defer func() {
		status := "success"
		if err != nil {
			status = string(classify(providerAnthropic, err).Kind)
			span.RecordError(err)
		}
		metrics.LLMRequests.WithLabelValues(providerAnthropic, status).Inc()
	}()

	system := req.Instructions
	if req.Schema != nil {
		system = strings.TrimSpace(system + "\n\nRespond with only a JSON object that validates against this JSON schema, no prose:\n" + string(req.Schema.Schema))
	}

	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.Input))},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Tools.Len() > 0 {
		for _, d := range req.Tools.List() {
			schema := toolParameters(d)
			tool := anthropic.ToolParam{
				Name:        d.Name,
				InputSchema: anthropic.ToolInputSchemaParam{Properties: schema["properties"]},
			}
			if d.Description != "" {
				tool.Description = anthropic.String(d.Description)
			}
			if required, ok := schema["required"].([]any); ok {
				for _, r := range required {
					if s, ok := r.(string); ok {
						tool.InputSchema.Required = append(tool.InputSchema.Required, s)
					}
				}
			}
			params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &tool})
		}
	}

	rounds := maxRounds(req)
	for round := 0; round <= rounds; round++ {
		msg, err := a.client.Messages.New(ctx, params)
		if err != nil {
			return resp, classify(providerAnthropic, err)
		}
		resp.TokensUsed += int(msg.Usage.InputTokens + msg.Usage.OutputTokens)
		resp.Model = string(msg.Model)

		var text strings.Builder
		var assistant, results []anthropic.ContentBlockParamUnion
		for _, block := range msg.Content {
			switch v := block.AsAny().(type) {
			case anthropic.TextBlock:
				text.WriteString(v.Text)
				assistant = append(assistant, anthropic.NewTextBlock(v.Text))
			case anthropic.ToolUseBlock:
				assistant = append(assistant, anthropic.NewToolUseBlock(v.ID, v.Input, v.Name))
				call := runTool(ctx, req.Tools, v.Name, string(v.Input))
				resp.ToolCalls = append(resp.ToolCalls, call)
				results = append(results, anthropic.NewToolResultBlock(v.ID, call.Result, call.IsError))
			}
		}

		if msg.StopReason != anthropic.StopReasonToolUse || len(results) == 0 {
			resp.Text = text.String()
			if req.Schema != nil {
				doc, ok := extractJSON(resp.Text)
				if !ok {
					return resp, badResponse(providerAnthropic, errors.New("structured output is not valid JSON"))
				}
				resp.Text = doc
			}
			return resp, nil
		}
		if round == rounds {
			break
		}
		a.logger.Debug("Tool-use round", zap.Int("round", round), zap.Int("tool_calls", len(results)))
		params.Messages = append(params.Messages,
			anthropic.NewAssistantMessage(assistant...),
			anthropic.NewUserMessage(results...),
		)
	}
	return resp, badResponse(providerAnthropic, ErrToolLoopExhausted)
}

// extractJSON returns the outermost JSON object in s, tolerating code fences
// or prose around it.
func extractJSON(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", false
	}
	doc := s[start : end+1]
	if !json.Valid([]byte(doc)) {
		return "", false
	}
	return doc, true
}
