// Package cache wraps an embedder with a Redis-backed vector cache.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"sedar-analyst/internal/domain"
)

// Embedder serves embeddings from Redis when present and stores misses.
// Cache failures are logged and never fail an embedding.
type Embedder struct {
	inner  domain.Embedder
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// New wraps inner. A zero ttl keeps entries forever.
func New(inner domain.Embedder, client *redis.Client, ttl time.Duration, logger *zap.Logger) *Embedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{inner: inner, client: client, ttl: ttl, logger: logger.With(zap.String("component", "embedding_cache"))}
}

// Name is the wrapped model name; cached vectors are identical to uncached ones.
func (e *Embedder) Name() string { return e.inner.Name() }

// Key returns the cache key used for text under the wrapped model.
func (e *Embedder) Key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + e.inner.Name() + ":" + hex.EncodeToString(sum[:])
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	key := e.Key(text)
	raw, err := e.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var vec []float64
		if jerr := json.Unmarshal(raw, &vec); jerr == nil {
			return vec, nil
		}
		e.logger.Warn("discarding corrupt cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		e.logger.Warn("embedding cache read failed", zap.Error(err))
	}

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(vec)
	if err == nil {
		if err := e.client.Set(ctx, key, data, e.ttl).Err(); err != nil {
			e.logger.Warn("embedding cache write failed", zap.Error(err))
		}
	}
	return vec, nil
}
