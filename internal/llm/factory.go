package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/queryrouter/internal/circuitbreaker"
	"github.com/Kocoro-lab/queryrouter/internal/config"
	"github.com/Kocoro-lab/queryrouter/internal/interceptors"
)

// NewHTTPClient returns the client every provider uses: workflow headers and
// traceparent on each request, a circuit breaker around the backend and an
// overall per-request timeout.
func NewHTTPClient(provider string, timeout time.Duration, logger *zap.Logger) *http.Client {
	rt := interceptors.NewWorkflowHTTPRoundTripper(http.DefaultTransport)
	return &http.Client{
		Transport: circuitbreaker.NewTransport(rt, "llm-"+provider, "inference", circuitbreaker.GetLLMConfig(), logger),
		Timeout:   timeout,
	}
}

// New builds the configured provider.
func New(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (Completer, error) {
	provider := strings.ToLower(cfg.Provider)
	httpClient := NewHTTPClient(provider, cfg.Timeout, logger)

	switch provider {
	case providerOpenAI, "":
		return NewOpenAI(OpenAIOptions{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			MaxTokens:  cfg.MaxTokens,
			HTTPClient: httpClient,
		}, logger), nil
	case providerAnthropic:
		c, err := NewAnthropic(ctx, AnthropicOptions{
			APIKey:        cfg.APIKey,
			BaseURL:       cfg.BaseURL,
			Model:         cfg.Model,
			MaxTokens:     cfg.MaxTokens,
			HTTPClient:    httpClient,
			UseBedrock:    cfg.Bedrock.Enabled,
			BedrockRegion: cfg.Bedrock.Region,
			AWSProfile:    cfg.Bedrock.Profile,
		}, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
