package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized 401/403，不重试
	ErrUnauthorized = errors.New("llm: credentials rejected")
	// ErrModelNotFound 配置的模型不在可用列表中
	ErrModelNotFound = errors.New("llm: model not available")
	// ErrRetriesExhausted 重试次数耗尽
	ErrRetriesExhausted = errors.New("llm: retries exhausted")
	// ErrEmptyResponse 后端返回空文本，按可重试处理
	ErrEmptyResponse = errors.New("llm: empty response")
	// ErrBackendUnavailable 健康检查失败
	ErrBackendUnavailable = errors.New("llm: backend unavailable")
	ErrMissingAPIKey      = errors.New("llm: api key is required")
	ErrUnknownProvider    = errors.New("llm: unknown provider")
)

// StatusError 后端返回非 2xx 状态码
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Unwrap 401/403 归类为 ErrUnauthorized
func (e *StatusError) Unwrap() error {
	if e.StatusCode == 401 || e.StatusCode == 403 {
		return ErrUnauthorized
	}
	return nil
}
