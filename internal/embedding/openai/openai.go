package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"sedar-analyst/internal/domain"
)

// Client is an OpenAI-compatible embeddings client implementing domain.Embedder.
// It also accepts the Ollama-native response shape.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries int
	logger     *zap.Logger
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
	// RequestsPerSecond limits outgoing calls; zero means unlimited.
	RequestsPerSecond float64
	MaxRetries        int
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, domain.E("openai embeddings", domain.ErrConfig, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv))
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     key,
		model:      cfg.Model,
		client:     &http.Client{Timeout: t},
		limiter:    rate.NewLimiter(limit, 1),
		maxRetries: cfg.MaxRetries,
		logger:     logger.With(zap.String("component", "openai_embedder")),
	}, nil
}

// Name returns the embedding model identifier.
func (c *Client) Name() string { return c.model }

type embeddingRequest struct {
	Input  string `json:"input,omitempty"`
	Prompt string `json:"prompt,omitempty"`
	Model  string `json:"model"`
}

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	ctx, span := otel.Tracer("embedding").Start(ctx, "openai.embed")
	defer span.End()
	span.SetAttributes(attribute.String("embedding.model", c.model))

	url := fmt.Sprintf("%s/embeddings", c.baseURL)
	data, err := json.Marshal(embeddingRequest{Input: text, Prompt: text, Model: c.model})
	if err != nil {
		return nil, domain.External("openai embeddings", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying embedding request", zap.Int("attempt", attempt), zap.Error(lastErr))
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, domain.External("openai embeddings", err)
		}
		vec, wait, err := c.do(ctx, url, data)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if wait < 0 || attempt == c.maxRetries {
			break
		}
		if wait == 0 {
			wait = retryDelay(attempt)
		}
		select {
		case <-ctx.Done():
			return nil, domain.External("openai embeddings", ctx.Err())
		case <-time.After(wait):
		}
	}
	span.SetAttributes(attribute.Bool("embedding.error", true))
	return nil, domain.External("openai embeddings", lastErr)
}

// do performs one request. A negative wait marks the error as permanent.
func (c *Client) do(ctx context.Context, url string, data []byte) ([]float64, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, -1, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, -1, ctx.Err()
		}
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		var wait time.Duration
		// Respect Retry-After if provided
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil {
				wait = time.Duration(secs) * time.Second
			}
		}
		return nil, wait, fmt.Errorf("embeddings request failed: %s", resp.Status)
	}
	if resp.StatusCode >= 300 {
		return nil, -1, fmt.Errorf("embeddings request failed: %s", resp.Status)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	// Try OpenAI-compatible response first
	var openaiOut struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &openaiOut); err == nil {
		if len(openaiOut.Data) > 0 && len(openaiOut.Data[0].Embedding) > 0 {
			return openaiOut.Data[0].Embedding, 0, nil
		}
	}
	// Fallback to Ollama-native shape: { "embedding": [...] }
	var ollamaOut struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.Unmarshal(payload, &ollamaOut); err == nil && len(ollamaOut.Embedding) > 0 {
		return ollamaOut.Embedding, 0, nil
	}
	return nil, 0, errors.New("no embedding returned")
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
