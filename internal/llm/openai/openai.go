// Package openai completes prompts against an OpenAI-compatible chat
// completions endpoint (OpenAI, Nebius AI Studio, vLLM, Ollama).
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
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"sedar-analyst/internal/domain"
	"sedar-analyst/internal/resilience"
)

// Config configures the chat completions client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
	MaxTokens int
	// MaxRetries bounds retries of 429 and 5xx replies. Zero takes the
	// default; a negative value disables retries.
	MaxRetries int
}

// Client implements domain.Completer. Requests always use temperature 0.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	maxRetries int
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

// NewClient reads the API key from cfg.APIKeyEnv.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, domain.E("openai completions", domain.ErrConfig, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv))
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		return nil, domain.E("openai completions", domain.ErrConfig, errors.New("model is required"))
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = 2
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "openai_llm"))
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     key,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		maxRetries: cfg.MaxRetries,
		client:     &http.Client{Timeout: cfg.Timeout},
		breaker:    resilience.NewBreaker("llm:"+cfg.Model, resilience.BreakerSettings{}, logger),
		logger:     logger,
	}, nil
}

// Name returns the model identifier.
func (c *Client) Name() string { return c.model }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends prompt as a single user message and returns the reply text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, span := otel.Tracer("llm").Start(ctx, "openai.complete")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", c.model), attribute.Int("llm.prompt_chars", len(prompt)))

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []message{{Role: "user", Content: prompt}},
		Temperature: 0,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", domain.External("complete", err)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.withRetries(ctx, body)
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("llm.error", true))
		return "", domain.External("complete", err)
	}
	return out.(string), nil
}

// withRetries counts as a single call to the breaker.
func (c *Client) withRetries(ctx context.Context, body []byte) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying completion", zap.Int("attempt", attempt), zap.Error(lastErr))
		}
		text, wait, err := c.do(ctx, body)
		if err == nil {
			return text, nil
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
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
	return "", lastErr
}

// do performs one request. A negative wait marks the error as permanent.
func (c *Client) do(ctx context.Context, body []byte) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", -1, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", -1, ctx.Err()
		}
		return "", 0, err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, err
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		var wait time.Duration
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			wait = time.Duration(secs) * time.Second
		}
		return "", wait, fmt.Errorf("chat completions failed: %s: %s", resp.Status, bytes.TrimSpace(payload))
	}
	if resp.StatusCode >= 300 {
		return "", -1, fmt.Errorf("chat completions failed: %s: %s", resp.Status, bytes.TrimSpace(payload))
	}
	var out chatResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", -1, fmt.Errorf("decode chat response: %w", err)
	}
	if out.Error != nil {
		return "", -1, errors.New(out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", -1, errors.New("no choices returned")
	}
	c.logger.Debug("completion", zap.Int("total_tokens", out.Usage.TotalTokens))
	return out.Choices[0].Message.Content, 0, nil
}

// retryDelay backs off exponentially from 200ms, capped at 5s.
func retryDelay(attempt int) time.Duration {
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
