// Package embedding selects the configured text embedder.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"sedar-analyst/internal/config"
	"sedar-analyst/internal/domain"
	"sedar-analyst/internal/embedding/cache"
	"sedar-analyst/internal/embedding/gemini"
	"sedar-analyst/internal/embedding/hashing"
	"sedar-analyst/internal/embedding/openai"
)

// New builds the embedder named by cfg.Type and, when cfg.Cache.Addr is set,
// wraps it with the Redis cache. The returned func releases clients.
func New(ctx context.Context, cfg config.EmbedderConfig, logger *zap.Logger) (domain.Embedder, func() error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var closers []func() error
	var emb domain.Embedder
	switch cfg.Type {
	case "hashing":
		emb = hashing.NewEmbedder(cfg.Hashing.Dimension)
	case "openai":
		client, err := openai.NewClient(openai.Config{
			BaseURL:           cfg.OpenAI.BaseURL,
			APIKeyEnv:         cfg.OpenAI.APIKeyEnv,
			Model:             cfg.OpenAI.Model,
			Timeout:           time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			RequestsPerSecond: cfg.OpenAI.RequestsPerSecond,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		emb = client
	case "gemini":
		g, err := gemini.NewEmbedder(ctx, gemini.Config{
			APIKeyEnv:         cfg.Gemini.APIKeyEnv,
			Model:             cfg.Gemini.Model,
			RequestsPerSecond: cfg.Gemini.RequestsPerSecond,
		})
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, g.Close)
		emb = g
	default:
		return nil, nil, domain.E("embedder", domain.ErrConfig, fmt.Errorf("unknown embedder: %s", cfg.Type))
	}

	if cfg.Cache.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Cache.Addr, DB: cfg.Cache.DB})
		closers = append(closers, rdb.Close)
		emb = cache.New(emb, rdb, time.Duration(cfg.Cache.TTLSecs)*time.Second, logger)
		logger.Info("embedding cache enabled", zap.String("addr", cfg.Cache.Addr))
	}

	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		return errors.Join(errs...)
	}
	return emb, closeAll, nil
}
