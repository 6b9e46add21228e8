//go:build cgo

package embeddings

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFastEmbedProvider_UnknownModel(t *testing.T) {
	_, err := NewFastEmbedProvider(FastEmbedConfig{Model: "nonexistent-model"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestFastEmbedProvider_Embed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping FastEmbed test in short mode")
	}
	if _, err := os.Stat("/usr/lib/libonnxruntime.so"); os.IsNotExist(err) && os.Getenv("ONNX_PATH") == "" {
		t.Skip("ONNX runtime not available")
	}

	p, err := NewFastEmbedProvider(FastEmbedConfig{Model: "BAAI/bge-small-en-v1.5", CacheDir: t.TempDir()})
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 384, p.Dimension())

	vectors, err := p.EmbedDocuments(context.Background(), []string{"duplicate payment", "inventory shortage"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Len(t, vectors[0], 384)

	q, err := p.EmbedQuery(context.Background(), "payment made twice")
	require.NoError(t, err)
	assert.Len(t, q, 384)
}

func TestFastEmbedIDs_CoverLocalModels(t *testing.T) {
	for _, m := range localModels {
		_, ok := fastembedIDs[m.id]
		assert.True(t, ok, m.id)
	}
}
