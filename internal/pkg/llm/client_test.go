package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dpo2u/lgpdkit/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLLMConfig(url string) config.LLMConfig {
	return config.LLMConfig{
		OllamaURL:       url,
		OpenAIAPIURL:    url,
		OpenAIAPIKey:    "sk-openai",
		AnthropicAPIURL: url,
		AnthropicAPIKey: "sk-ant",
		Temperature:     0.3,
		Retries:         2,
		RetryDelay:      time.Millisecond,
		Timeout:         2 * time.Second,
	}
}

func TestNewClientByProvider(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.OpenAIAPIKey = "k1"
	cfg.LLM.AnthropicAPIKey = "k2"

	for provider, want := range map[string]string{
		"ollama": ProviderOllama,
		"":       ProviderOllama,
		"claude": ProviderClaude,
		"codex":  ProviderCodex,
	} {
		cfg.LLM.Provider = provider
		client, err := NewClient(cfg)
		require.NoError(t, err, provider)
		assert.Equal(t, want, client.ProviderName())
	}

	cfg.LLM.Provider = "claude"
	client, _ := NewClient(cfg)
	assert.Equal(t, "claude-3-5-sonnet-20241022", client.ModelName())

	cfg.LLM.Provider = "codex"
	client, _ = NewClient(cfg)
	assert.Equal(t, "gpt-4o-mini", client.ModelName())
}

func TestNewClientErrors(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.Provider = "codex"
	_, err := NewClient(cfg)
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	cfg.LLM.Provider = "gemini"
	_, err = NewClient(cfg)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestOpenAIGenerateText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("expected POST method, got %s", r.Method)
		}
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("expected path /v1/chat/completions, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-openai" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req ChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("expected system + user messages, got %+v", req.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","choices":[{"index":0,"message":{"role":"assistant","content":"olá"}}]}`))
	}))
	defer server.Close()

	// 带 /v1 后缀的地址也能正确拼接
	cfg := testLLMConfig(server.URL + "/v1")
	client := NewOpenAIClient(cfg)
	text, err := client.GenerateText(context.Background(), "oi", WithSystem("sys"))
	require.NoError(t, err)
	assert.Equal(t, "olá", text)
}

func TestAnthropicGenerateTextHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		var req MessagesRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "sys", req.System)
		assert.Equal(t, 1500, req.MaxTokens)
		_, _ = w.Write([]byte(`{"id":"m","content":[{"type":"text","text":"resposta"}]}`))
	}))
	defer server.Close()

	client := NewAnthropicClient(testLLMConfig(server.URL))
	text, err := client.GenerateText(context.Background(), "oi", WithSystem("sys"))
	require.NoError(t, err)
	assert.Equal(t, "resposta", text)
}

// TestRetryFailTwiceThenSucceed 前两次失败，第三次成功
func TestRetryFailTwiceThenSucceed(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"model":"m","response":"ok","done":true}`))
	}))
	defer server.Close()

	client := NewOllamaClient(testLLMConfig(server.URL))
	text, err := client.GenerateText(context.Background(), "prompt", WithRetries(2))
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRetryExhaustedNamesAttemptCount(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewOllamaClient(testLLMConfig(server.URL))
	_, err := client.GenerateText(context.Background(), "prompt", WithRetries(2))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Contains(t, err.Error(), "3 attempts")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestNegativeRetriesStayBounded(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testLLMConfig(server.URL)
	cfg.Retries = -1
	client := NewOllamaClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := client.GenerateText(ctx, "prompt")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Contains(t, err.Error(), "3 attempts")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestUnauthorizedIsNotRetried(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"invalid x-api-key"}}`))
		}))

		client := NewAnthropicClient(testLLMConfig(server.URL))
		_, err := client.GenerateText(context.Background(), "prompt")
		server.Close()

		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnauthorized), "status %d should map to ErrUnauthorized", status)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	}
}

func TestEmptyResponseIsRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(testLLMConfig(server.URL))
	_, err := client.GenerateText(context.Background(), "prompt", WithRetries(1))
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestTimeoutCountsAsRetryableFailure(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			time.Sleep(200 * time.Millisecond)
		}
		_, _ = w.Write([]byte(`{"response":"depois do timeout"}`))
	}))
	defer server.Close()

	cfg := testLLMConfig(server.URL)
	cfg.Timeout = 50 * time.Millisecond
	client := NewOllamaClient(cfg)
	text, err := client.GenerateText(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "depois do timeout", text)
}

func TestCheckHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	client := NewOllamaClient(testLLMConfig(server.URL))
	assert.True(t, client.CheckHealth(context.Background()))

	server.Close()
	assert.False(t, client.CheckHealth(context.Background()))
}

func TestListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[{"name":"qwen2.5:3b-instruct"},{"name":"llama3:latest"}]}`))
		case "/v1/models":
			_, _ = w.Write([]byte(`{"data":[{"id":"gpt-4o-mini"},{"id":"gpt-4o"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	cfg := testLLMConfig(server.URL)
	assert.Equal(t, []string{"qwen2.5:3b-instruct", "llama3:latest"}, NewOllamaClient(cfg).ListModels(context.Background()))
	assert.Equal(t, []string{"gpt-4o-mini", "gpt-4o"}, NewOpenAIClient(cfg).ListModels(context.Background()))

	cfg.OllamaURL = "http://127.0.0.1:1"
	assert.Empty(t, NewOllamaClient(cfg).ListModels(context.Background()))
}

func TestEnsureModelReadyHosted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"gpt-4o"}]}`))
	}))
	defer server.Close()

	cfg := testLLMConfig(server.URL)
	cfg.OpenAIModel = "gpt-4o-mini"
	err := NewOpenAIClient(cfg).EnsureModelReady(context.Background())
	assert.ErrorIs(t, err, ErrModelNotFound)
	assert.Contains(t, err.Error(), "gpt-4o-mini")

	cfg.OpenAIModel = "gpt-4o"
	assert.NoError(t, NewOpenAIClient(cfg).EnsureModelReady(context.Background()))
}

func TestEnsureModelReadyOllamaWarmUp(t *testing.T) {
	cases := []struct {
		name     string
		status   int
		body     string
		notFound bool
	}{
		{"ready", http.StatusOK, `{"response":"pong"}`, false},
		{"loading tolerated", http.StatusServiceUnavailable, `{"error":"model is loading"}`, false},
		{"not found fatal", http.StatusNotFound, `{"error":"model 'qwen' not found"}`, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if strings.HasSuffix(r.URL.Path, "/api/tags") {
					_, _ = w.Write([]byte(`{"models":[]}`))
					return
				}
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			err := NewOllamaClient(testLLMConfig(server.URL)).EnsureModelReady(context.Background())
			if tc.notFound {
				assert.ErrorIs(t, err, ErrModelNotFound)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEnsureModelReadyOllamaLatestAlias(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			_, _ = w.Write([]byte(`{"models":[{"name":"llama3:latest"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"response":"pong"}`))
	}))
	defer server.Close()

	cfg := testLLMConfig(server.URL)
	cfg.Model = "llama3"
	assert.NoError(t, NewOllamaClient(cfg).EnsureModelReady(context.Background()))

	cfg.Model = "mistral"
	assert.ErrorIs(t, NewOllamaClient(cfg).EnsureModelReady(context.Background()), ErrModelNotFound)
}

func TestPreflight(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"gpt-4o-mini"}]}`))
	}))
	client := NewOpenAIClient(testLLMConfig(server.URL))
	assert.NoError(t, Preflight(context.Background(), client))

	server.Close()
	assert.ErrorIs(t, Preflight(context.Background(), client), ErrBackendUnavailable)
}
