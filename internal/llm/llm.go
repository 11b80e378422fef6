// Package llm selects the configured language model and instruments it.
package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sedar-analyst/internal/config"
	"sedar-analyst/internal/domain"
	"sedar-analyst/internal/llm/gemini"
	"sedar-analyst/internal/llm/openai"
	"sedar-analyst/internal/metrics"
)

// New builds the completer named by cfg.Type. The returned func releases clients.
func New(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (domain.Completer, func() error, error) {
	switch cfg.Type {
	case "openai":
		c, err := openai.NewClient(openai.Config{
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKeyEnv:  cfg.OpenAI.APIKeyEnv,
			Model:      cfg.OpenAI.Model,
			Timeout:    time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			MaxTokens:  cfg.OpenAI.MaxTokens,
			MaxRetries: cfg.OpenAI.MaxRetries,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return c, func() error { return nil }, nil
	case "gemini":
		c, err := gemini.NewClient(ctx, gemini.Config{
			APIKeyEnv: cfg.Gemini.APIKeyEnv,
			Model:     cfg.Gemini.Model,
			MaxTokens: cfg.Gemini.MaxTokens,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	default:
		return nil, nil, domain.E("llm", domain.ErrConfig, fmt.Errorf("unknown llm: %s", cfg.Type))
	}
}

type instrumented struct {
	next    domain.Completer
	metrics *metrics.Collector
	logger  *zap.Logger
}

// Instrument records latency and failures of every completion.
func Instrument(next domain.Completer, m *metrics.Collector, logger *zap.Logger) domain.Completer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &instrumented{next: next, metrics: m, logger: logger}
}

func (i *instrumented) Name() string { return i.next.Name() }

func (i *instrumented) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := i.next.Complete(ctx, prompt)
	d := time.Since(start)
	i.metrics.RecordLLM(i.next.Name(), err, d)
	if err != nil {
		i.logger.Warn("completion failed", zap.String("model", i.next.Name()), zap.Duration("duration", d), zap.Error(err))
	}
	return out, err
}
