package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/dpo2u/lgpdkit/config"
	"k8s.io/klog/v2"
)

// Client 文本生成后端的统一接口
// 流程与各步骤只依赖该接口，不依赖具体实现
type Client interface {
	// GenerateText 发送提示词；默认重试 2 次，401/403 立即失败
	GenerateText(ctx context.Context, prompt string, opts ...Option) (string, error)
	// CheckHealth 连通性探测，任何失败都返回 false
	CheckHealth(ctx context.Context) bool
	// ListModels 尽力而为，失败时返回空列表
	ListModels(ctx context.Context) []string
	// EnsureModelReady 确认配置的模型可用
	EnsureModelReady(ctx context.Context) error
	ProviderName() string
	ModelName() string
}

const (
	ProviderOllama = "ollama"
	ProviderClaude = "claude"
	ProviderCodex  = "codex"
)

// Option 单次调用参数
type Option func(*callOptions)

type callOptions struct {
	system  string
	retries int
}

// WithSystem 设置系统提示词
func WithSystem(system string) Option {
	return func(o *callOptions) { o.system = system }
}

// WithRetries 覆盖默认重试次数，总尝试次数为 retries+1
func WithRetries(retries int) Option {
	return func(o *callOptions) {
		if retries >= 0 {
			o.retries = retries
		}
	}
}

// baseClient 三个后端共用的 HTTP 与重试配置
type baseClient struct {
	provider    string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	retries     int
	retryDelay  time.Duration
	httpClient  *http.Client
}

func (c *baseClient) ProviderName() string { return c.provider }

func (c *baseClient) ModelName() string { return c.model }

func (c *baseClient) resolve(opts []Option) callOptions {
	o := callOptions{retries: c.retries}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// doJSON 发送 JSON 请求并解码响应，非 2xx 返回 *StatusError
func (c *baseClient) doJSON(ctx context.Context, method, url string, headers map[string]string, reqBody, out any) error {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Provider: c.provider, StatusCode: resp.StatusCode, Body: truncate(string(data), 512)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// probe 带独立超时的 GET 请求，只关心是否 2xx
func (c *baseClient) probe(ctx context.Context, url string, headers map[string]string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.doJSON(ctx, http.MethodGet, url, headers, nil, nil); err != nil {
		klog.V(6).Infof("[llm.probe] 健康检查失败: provider=%s, err=%v", c.provider, err)
		return false
	}
	return true
}

// ensureListed 模型列表非空且不包含配置的模型时返回 ErrModelNotFound
func ensureListed(provider, model string, models []string) error {
	if len(models) == 0 || slices.Contains(models, model) {
		return nil
	}
	return fmt.Errorf("%w: %s não disponível em %s (disponíveis: %s)",
		ErrModelNotFound, model, provider, strings.Join(models, ", "))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func trimBaseURL(url string) string {
	url = strings.TrimRight(url, "/")
	return strings.TrimSuffix(url, "/v1")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// NewClient 根据 cfg.LLM.Provider 创建后端
func NewClient(cfg *config.Config) (Client, error) {
	llmCfg := cfg.LLM
	switch strings.ToLower(llmCfg.Provider) {
	case "", ProviderOllama:
		return NewOllamaClient(llmCfg), nil
	case ProviderClaude, "anthropic":
		if llmCfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY", ErrMissingAPIKey)
		}
		return NewAnthropicClient(llmCfg), nil
	case ProviderCodex, "openai":
		if llmCfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingAPIKey)
		}
		return NewOpenAIClient(llmCfg), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, llmCfg.Provider)
	}
}

// Preflight 流程开始前的检查：连通性、模型列表、模型就绪
func Preflight(ctx context.Context, client Client) error {
	klog.V(6).Infof("[llm.Preflight] 检查后端: provider=%s, model=%s", client.ProviderName(), client.ModelName())
	if !client.CheckHealth(ctx) {
		return fmt.Errorf("%w: %s", ErrBackendUnavailable, client.ProviderName())
	}
	models := client.ListModels(ctx)
	klog.V(6).Infof("[llm.Preflight] 可用模型数: %d", len(models))
	if err := client.EnsureModelReady(ctx); err != nil {
		return err
	}
	return nil
}
