package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) Config {
	return Config{
		APIKey:    "sk-test",
		BaseURL:   baseURL,
		RateLimit: 1000,
		Burst:     100,
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"openrouter default", Config{APIKey: "k"}, false},
		{"anthropic", Config{Provider: "anthropic", APIKey: "k"}, false},
		{"missing key", Config{Provider: "anthropic"}, true},
		{"unknown provider", Config{Provider: "yandex", APIKey: "k"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, g)
		})
	}
}

func TestOpenAI_Complete(t *testing.T) {
	var got openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "Audit", r.Header.Get("X-Title"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "{\"ok\": true}"}}]}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL + "/api/v1/")
	cfg.Title = "Audit"
	cfg.Model = "anthropic/claude-sonnet-4.5"
	g, err := NewOpenAI(cfg)
	require.NoError(t, err)

	text, err := g.Complete(context.Background(), Request{System: "sys", User: "usr", Temperature: 0.2, MaxTokens: 16000})
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, text)

	assert.Equal(t, "anthropic/claude-sonnet-4.5", got.Model)
	assert.Equal(t, 16000, got.MaxTokens)
	assert.InDelta(t, 0.2, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, openAIMessage{Role: "system", Content: "sys"}, got.Messages[0])
	assert.Equal(t, openAIMessage{Role: "user", Content: "usr"}, got.Messages[1])
}

func TestOpenAI_ProviderErrorsSentOnce(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"bad gateway", http.StatusBadGateway, `{"error": {"message": "upstream"}}`, "upstream"},
		{"rate limited", http.StatusTooManyRequests, "", "status 429"},
		{"unavailable", http.StatusServiceUnavailable, "overloaded", "overloaded"},
		{"client error", http.StatusBadRequest, `{"error": {"message": "max_tokens too large"}}`, "max_tokens too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			g, err := NewOpenAI(testConfig(srv.URL))
			require.NoError(t, err)

			_, err = g.Complete(context.Background(), Request{User: "u"})
			require.ErrorIs(t, err, ErrProvider)
			assert.Contains(t, err.Error(), tt.want)

			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.status, se.Status)
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestOpenAI_TransportErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		_ = conn.Close()
	}))
	defer srv.Close()

	g, err := NewOpenAI(testConfig(srv.URL))
	require.NoError(t, err)

	_, err = g.Complete(context.Background(), Request{User: "u"})
	require.ErrorIs(t, err, ErrProvider)
	assert.Contains(t, err.Error(), "request failed")
	assert.Equal(t, int32(1), calls.Load())
}

func TestConfig_NoDefaultRequestTimeout(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()
	assert.Zero(t, cfg.Timeout)

	g, err := NewOpenAI(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Zero(t, g.httpClient.Timeout)
}

func TestOpenAI_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	g, err := NewOpenAI(testConfig(srv.URL))
	require.NoError(t, err)

	_, err = g.Complete(context.Background(), Request{User: "u"})
	assert.ErrorIs(t, err, ErrProvider)
}

func TestOpenAI_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	g, err := NewOpenAI(testConfig(srv.URL))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.Complete(ctx, Request{User: "u"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAnthropic_Complete(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("X-API-Key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("Anthropic-Version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"content": [{"type": "text", "text": "part1 "}, {"type": "text", "text": "part2"}], "stop_reason": "end_turn"}`))
	}))
	defer srv.Close()

	g, err := NewAnthropic(testConfig(srv.URL))
	require.NoError(t, err)

	text, err := g.Complete(context.Background(), Request{System: "sys", User: "usr", Temperature: 0.25})
	require.NoError(t, err)
	assert.Equal(t, "part1 part2", text)

	assert.Equal(t, defaultAnthropicModel, got.Model)
	assert.Equal(t, "sys", got.System)
	assert.Equal(t, 4096, got.MaxTokens)
	assert.Equal(t, []anthropicMessage{{Role: "user", Content: "usr"}}, got.Messages)
}

func TestAnthropic_ErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "authentication_error", "message": "invalid x-api-key"}}`))
	}))
	defer srv.Close()

	g, err := NewAnthropic(testConfig(srv.URL))
	require.NoError(t, err)

	_, err = g.Complete(context.Background(), Request{User: "u"})
	require.ErrorIs(t, err, ErrProvider)
	assert.Contains(t, err.Error(), "invalid x-api-key")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Status)
}
