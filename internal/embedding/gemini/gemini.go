// Package gemini embeds text with Google Generative AI embedding models.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/generative-ai-go/genai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"sedar-analyst/internal/domain"
)

// Config configures the Gemini embedder.
type Config struct {
	APIKeyEnv         string
	Model             string
	RequestsPerSecond float64
}

// Embedder implements domain.Embedder on top of a genai client.
type Embedder struct {
	client  *genai.Client
	model   string
	limiter *rate.Limiter
}

// NewEmbedder dials the Generative AI API. Call Close when done.
func NewEmbedder(ctx context.Context, cfg Config) (*Embedder, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, domain.E("gemini embeddings", domain.ErrConfig, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv))
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-004"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, domain.External("gemini embeddings", err)
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Embedder{client: client, model: cfg.Model, limiter: rate.NewLimiter(limit, 1)}, nil
}

// Name returns the embedding model identifier.
func (e *Embedder) Name() string { return "gemini/" + e.model }

// Embed returns the embedding for text, widened to float64.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	ctx, span := otel.Tracer("embedding").Start(ctx, "gemini.embed")
	defer span.End()
	span.SetAttributes(attribute.String("embedding.model", e.model))

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, domain.External("gemini embeddings", err)
	}
	resp, err := e.client.EmbeddingModel(e.model).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		span.SetAttributes(attribute.Bool("embedding.error", true))
		return nil, domain.External("gemini embeddings", err)
	}
	if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, domain.External("gemini embeddings", errors.New("no embedding returned"))
	}
	out := make([]float64, len(resp.Embedding.Values))
	for i, v := range resp.Embedding.Values {
		out[i] = float64(v)
	}
	return out, nil
}

// Close releases the underlying client.
func (e *Embedder) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}
