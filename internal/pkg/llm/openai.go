package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dpo2u/lgpdkit/config"
	"k8s.io/klog/v2"
)

const (
	defaultOpenAIModel   = "gpt-4o-mini"
	defaultHostedTokens  = 1500
	defaultHostedTimeout = 180 * time.Second
)

// OpenAIClient OpenAI Chat Completions 兼容接口
type OpenAIClient struct {
	baseClient
	apiKey  string
	timeout time.Duration
}

func NewOpenAIClient(cfg config.LLMConfig) *OpenAIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHostedTimeout
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultHostedTokens
	}
	return &OpenAIClient{
		baseClient: baseClient{
			provider:    ProviderCodex,
			baseURL:     trimBaseURL(firstNonEmpty(cfg.OpenAIAPIURL, "https://api.openai.com")),
			model:       firstNonEmpty(cfg.Model, cfg.OpenAIModel, defaultOpenAIModel),
			maxTokens:   maxTokens,
			temperature: cfg.Temperature,
			retries:     cfg.Retries,
			retryDelay:  cfg.RetryDelay,
			httpClient:  &http.Client{},
		},
		apiKey:  cfg.OpenAIAPIKey,
		timeout: timeout,
	}
}

func (c *OpenAIClient) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

func (c *OpenAIClient) GenerateText(ctx context.Context, prompt string, opts ...Option) (string, error) {
	o := c.resolve(opts)
	klog.V(6).Infof("[OpenAIClient.GenerateText] model=%s, promptLen=%d, retries=%d", c.model, len(prompt), o.retries)

	messages := make([]ChatMessage, 0, 2)
	if o.system != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: o.system})
	}
	messages = append(messages, ChatMessage{Role: "user", Content: prompt})
	req := ChatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	return c.generateWithRetry(ctx, o.retries, c.withTimeout(c.timeout, func(ctx context.Context) (string, error) {
		var resp ChatResponse
		if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", c.headers(), req, &resp); err != nil {
			return "", err
		}
		if resp.Error != nil {
			return "", fmt.Errorf("API error: %s", resp.Error.Message)
		}
		if len(resp.Choices) == 0 {
			return "", ErrEmptyResponse
		}
		return resp.Choices[0].Message.Content, nil
	}))
}

func (c *OpenAIClient) CheckHealth(ctx context.Context) bool {
	return c.probe(ctx, c.baseURL+"/v1/models", c.headers(), 10*time.Second)
}

func (c *OpenAIClient) ListModels(ctx context.Context) []string {
	return listHostedModels(ctx, &c.baseClient, c.baseURL+"/v1/models", c.headers())
}

func (c *OpenAIClient) EnsureModelReady(ctx context.Context) error {
	return ensureListed(c.provider, c.model, c.ListModels(ctx))
}

func listHostedModels(ctx context.Context, c *baseClient, url string, headers map[string]string) []string {
	var list ModelList
	if err := c.doJSON(ctx, http.MethodGet, url, headers, nil, &list); err != nil {
		klog.Warningf("[llm.ListModels] 获取模型列表失败: provider=%s, err=%v", c.provider, err)
		return []string{}
	}
	models := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		models = append(models, m.ID)
	}
	return models
}
