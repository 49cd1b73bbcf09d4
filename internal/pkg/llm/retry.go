package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dpo2u/lgpdkit/config"
	"github.com/sethvargo/go-retry"
	"k8s.io/klog/v2"
)

// generateWithRetry 固定间隔重试，最多 retries+1 次
// ErrUnauthorized 直接返回；耗尽后返回 ErrRetriesExhausted 并注明尝试次数
func (c *baseClient) generateWithRetry(ctx context.Context, retries int, attempt func(ctx context.Context) (string, error)) (string, error) {
	if retries < 0 {
		retries = config.DefaultLLMRetries
	}
	delay := c.retryDelay
	if delay <= 0 {
		delay = time.Millisecond
	}
	backoff := retry.WithMaxRetries(uint64(retries), retry.NewConstant(delay))

	attempts := 0
	var lastErr error
	var text string
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		out, err := attempt(ctx)
		if err == nil && out == "" {
			err = ErrEmptyResponse
		}
		if err != nil {
			lastErr = err
			if errors.Is(err, ErrUnauthorized) {
				return err
			}
			klog.Warningf("[llm.generate] 调用失败: provider=%s, attempt=%d/%d, err=%v", c.provider, attempts, retries+1, err)
			return retry.RetryableError(err)
		}
		text = out
		return nil
	})
	if err == nil {
		return text, nil
	}
	if errors.Is(err, ErrUnauthorized) {
		return "", fmt.Errorf("%s: %w", c.provider, err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", fmt.Errorf("%s generation canceled after %d attempts: %w", c.provider, attempts, ctxErr)
	}
	return "", fmt.Errorf("%w: %s after %d attempts: %v", ErrRetriesExhausted, c.provider, attempts, lastErr)
}

// withTimeout 单次调用超时，超时按可重试处理
func (c *baseClient) withTimeout(timeout time.Duration, fn func(ctx context.Context) (string, error)) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return fn(callCtx)
	}
}
