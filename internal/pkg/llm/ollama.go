package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dpo2u/lgpdkit/config"
	"k8s.io/klog/v2"
)

const (
	defaultOllamaModel   = "qwen2.5:3b-instruct"
	defaultOllamaTimeout = 60 * time.Second
)

// OllamaClient 本地 Ollama 服务
type OllamaClient struct {
	baseClient
	timeout time.Duration
}

func NewOllamaClient(cfg config.LLMConfig) *OllamaClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultOllamaTimeout
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	return &OllamaClient{
		baseClient: baseClient{
			provider:    ProviderOllama,
			baseURL:     strings.TrimRight(firstNonEmpty(cfg.OllamaURL, "http://localhost:11434"), "/"),
			model:       firstNonEmpty(cfg.Model, defaultOllamaModel),
			maxTokens:   maxTokens,
			temperature: cfg.Temperature,
			retries:     cfg.Retries,
			retryDelay:  cfg.RetryDelay,
			httpClient:  &http.Client{},
		},
		timeout: timeout,
	}
}

func (c *OllamaClient) GenerateText(ctx context.Context, prompt string, opts ...Option) (string, error) {
	o := c.resolve(opts)
	klog.V(6).Infof("[OllamaClient.GenerateText] model=%s, promptLen=%d, retries=%d", c.model, len(prompt), o.retries)
	return c.generateWithRetry(ctx, o.retries, c.withTimeout(c.timeout, func(ctx context.Context) (string, error) {
		return c.generate(ctx, prompt, o.system)
	}))
}

func (c *OllamaClient) generate(ctx context.Context, prompt, system string) (string, error) {
	var resp GenerateResponse
	err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/api/generate", nil, GenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		System: system,
		Stream: false,
		Options: GenerateOptions{
			Temperature: c.temperature,
			TopP:        0.9,
			NumPredict:  c.maxTokens,
		},
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("ollama error: %s", resp.Error)
	}
	return resp.Response, nil
}

func (c *OllamaClient) CheckHealth(ctx context.Context) bool {
	return c.probe(ctx, c.baseURL+"/api/tags", nil, 5*time.Second)
}

func (c *OllamaClient) ListModels(ctx context.Context) []string {
	var tags TagList
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/api/tags", nil, nil, &tags); err != nil {
		klog.Warningf("[OllamaClient.ListModels] 获取模型列表失败: %v", err)
		return []string{}
	}
	models := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, m.Name)
	}
	return models
}

// EnsureModelReady 校验模型存在后做一次预热生成，促使服务加载模型
// 预热返回 loading 可以容忍，not found 视为致命
func (c *OllamaClient) EnsureModelReady(ctx context.Context) error {
	models := c.ListModels(ctx)
	if err := ensureListed(c.provider, c.model, withLatestAliases(models)); err != nil {
		return err
	}

	warmCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	_, err := c.generate(warmCtx, "ping", "")
	if err == nil {
		klog.V(6).Infof("[OllamaClient.EnsureModelReady] 模型已就绪: %s", c.model)
		return nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not found"):
		return fmt.Errorf("%w: %s (%v)", ErrModelNotFound, c.model, err)
	case strings.Contains(msg, "loading"):
		klog.Warningf("[OllamaClient.EnsureModelReady] 模型仍在加载中，继续执行: %s", c.model)
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		klog.Warningf("[OllamaClient.EnsureModelReady] 预热超时，继续执行: %s", c.model)
		return nil
	default:
		klog.Warningf("[OllamaClient.EnsureModelReady] 预热失败，继续执行: %v", err)
		return nil
	}
}

// withLatestAliases "name:latest" 同时可以用 "name" 匹配
func withLatestAliases(models []string) []string {
	out := make([]string, 0, len(models)*2)
	for _, m := range models {
		out = append(out, m)
		if base, ok := strings.CutSuffix(m, ":latest"); ok {
			out = append(out, base)
		}
	}
	return out
}
