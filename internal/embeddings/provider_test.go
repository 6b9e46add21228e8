package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ProviderConfig
		wantErr error
	}{
		{"tei", ProviderConfig{Provider: "tei", BaseURL: "http://localhost:8080", Model: "BAAI/bge-m3"}, nil},
		{"tei without base URL", ProviderConfig{Provider: "tei", Model: "BAAI/bge-m3"}, ErrInvalidConfig},
		{"openai", ProviderConfig{Provider: "openai", Model: "text-embedding-3-small", APIKey: "sk-test"}, nil},
		{"openai defaults", ProviderConfig{Model: "text-embedding-3-small"}, nil},
		{"openai without model", ProviderConfig{Provider: "openai"}, ErrInvalidConfig},
		{"unknown provider", ProviderConfig{Provider: "word2vec"}, ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, p.Close())
		})
	}
}

func TestDetectDimensionFromModel(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"BAAI/bge-small-en-v1.5", 384},
		{"BAAI/bge-base-en-v1.5", 768},
		{"openai/text-embedding-3-small", 1536},
		{"text-embedding-3-large", 3072},
		{"intfloat/multilingual-e5-large", 1024},
		{"sentence-transformers/all-MiniLM-L6-v2", 384},
		{"custom", 0},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, detectDimensionFromModel(tt.model))
		})
	}
}

func TestNewProvider_DimensionOverride(t *testing.T) {
	p, err := NewProvider(ProviderConfig{Provider: "tei", BaseURL: "http://x", Model: "custom", Dimension: 1024})
	require.NoError(t, err)
	assert.Equal(t, 1024, p.Dimension())
}

type openAIEmbeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

func fakeOpenAIServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		var req openAIEmbeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Model != "test-embed" {
			http.Error(w, "wrong model "+req.Model, http.StatusBadRequest)
			return
		}
		data := make([]map[string]any, len(req.Input))
		for i, in := range req.Input {
			data[i] = map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(len([]rune(in))), 1, 0},
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data":   data,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func TestOpenAIProvider_Embed(t *testing.T) {
	var calls atomic.Int32
	srv := fakeOpenAIServer(t, &calls)
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, Model: "test-embed", BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 0, p.Dimension())

	ctx := context.Background()
	vectors, err := p.EmbedDocuments(ctx, []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float32{2, 1, 0}, vectors[1])
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 3, p.Dimension())

	q, err := p.EmbedQuery(ctx, "проблема: двойная оплата\nпериод: Q1")
	require.NoError(t, err)
	assert.Len(t, q, 3)
}

func TestOpenAIProvider_EmptyInput(t *testing.T) {
	p, err := NewOpenAIProvider(OpenAIConfig{BaseURL: "http://127.0.0.1:1", Model: "test-embed"})
	require.NoError(t, err)

	_, err = p.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
	_, err = p.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestOpenAIProvider_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": {"message": "overloaded"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, Model: "test-embed"})
	require.NoError(t, err)

	_, err = p.EmbedQuery(context.Background(), "q")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}
