package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dpo2u/lgpdkit/config"
	"k8s.io/klog/v2"
)

const (
	defaultAnthropicModel = "claude-3-5-sonnet-20241022"
	anthropicVersion      = "2023-06-01"
)

// AnthropicClient Anthropic Messages 接口
type AnthropicClient struct {
	baseClient
	apiKey  string
	timeout time.Duration
}

func NewAnthropicClient(cfg config.LLMConfig) *AnthropicClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHostedTimeout
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultHostedTokens
	}
	return &AnthropicClient{
		baseClient: baseClient{
			provider:    ProviderClaude,
			baseURL:     trimBaseURL(firstNonEmpty(cfg.AnthropicAPIURL, "https://api.anthropic.com")),
			model:       firstNonEmpty(cfg.Model, cfg.AnthropicModel, defaultAnthropicModel),
			maxTokens:   maxTokens,
			temperature: cfg.Temperature,
			retries:     cfg.Retries,
			retryDelay:  cfg.RetryDelay,
			httpClient:  &http.Client{},
		},
		apiKey:  cfg.AnthropicAPIKey,
		timeout: timeout,
	}
}

func (c *AnthropicClient) headers() map[string]string {
	return map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}
}

func (c *AnthropicClient) GenerateText(ctx context.Context, prompt string, opts ...Option) (string, error) {
	o := c.resolve(opts)
	klog.V(6).Infof("[AnthropicClient.GenerateText] model=%s, promptLen=%d, retries=%d", c.model, len(prompt), o.retries)

	req := MessagesRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      o.system,
		Messages:    []ChatMessage{{Role: "user", Content: prompt}},
		Temperature: c.temperature,
	}

	return c.generateWithRetry(ctx, o.retries, c.withTimeout(c.timeout, func(ctx context.Context) (string, error) {
		var resp MessagesResponse
		if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/v1/messages", c.headers(), req, &resp); err != nil {
			return "", err
		}
		if resp.Error != nil {
			return "", fmt.Errorf("API error: %s", resp.Error.Message)
		}
		var b strings.Builder
		for _, block := range resp.Content {
			if block.Type == "" || block.Type == "text" {
				b.WriteString(block.Text)
			}
		}
		return b.String(), nil
	}))
}

func (c *AnthropicClient) CheckHealth(ctx context.Context) bool {
	return c.probe(ctx, c.baseURL+"/v1/models", c.headers(), 10*time.Second)
}

func (c *AnthropicClient) ListModels(ctx context.Context) []string {
	return listHostedModels(ctx, &c.baseClient, c.baseURL+"/v1/models", c.headers())
}

func (c *AnthropicClient) EnsureModelReady(ctx context.Context) error {
	return ensureListed(c.provider, c.model, c.ListModels(ctx))
}
