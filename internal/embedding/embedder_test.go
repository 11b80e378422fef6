package embedding

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sedar-analyst/internal/config"
	"sedar-analyst/internal/domain"
	"sedar-analyst/internal/embedding/cache"
	"sedar-analyst/internal/embedding/hashing"
	"sedar-analyst/internal/embedding/openai"
)

func TestNew_Hashing(t *testing.T) {
	cfg := config.Default().Embedder
	cfg.Type = "hashing"
	cfg.Hashing.Dimension = 32

	emb, closeFn, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &hashing.Embedder{}, emb)
	assert.Equal(t, "hashing-32", emb.Name())
}

func TestNew_OpenAIRequiresKey(t *testing.T) {
	cfg := config.Default().Embedder
	t.Setenv(cfg.OpenAI.APIKeyEnv, "")
	_, _, err := New(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, domain.ErrConfig)

	t.Setenv(cfg.OpenAI.APIKeyEnv, "k")
	emb, closeFn, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &openai.Client{}, emb)
	assert.Equal(t, "BAAI/bge-en-icl", emb.Name())
}

func TestNew_WrapsWithCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default().Embedder
	cfg.Type = "hashing"
	cfg.Cache.Addr = mr.Addr()

	emb, closeFn, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer closeFn()
	require.IsType(t, &cache.Embedder{}, emb)

	_, err = emb.Embed(context.Background(), "revenue")
	require.NoError(t, err)
	assert.Len(t, mr.Keys(), 1)
}

func TestNew_Unknown(t *testing.T) {
	_, _, err := New(context.Background(), config.EmbedderConfig{Type: "word2vec"}, nil)
	assert.ErrorIs(t, err, domain.ErrConfig)
}
