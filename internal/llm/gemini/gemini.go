// Package gemini completes prompts with Google Gemini models.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"sedar-analyst/internal/domain"
	"sedar-analyst/internal/resilience"
)

// Config configures the Gemini completer.
type Config struct {
	APIKeyEnv string
	Model     string
	MaxTokens int
}

// Client implements domain.Completer with temperature 0.
type Client struct {
	client    *genai.Client
	model     string
	maxTokens int
	breaker   *gobreaker.CircuitBreaker
}

// NewClient dials the Generative AI API. Call Close when done.
func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, domain.E("gemini completions", domain.ErrConfig, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv))
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, domain.External("gemini completions", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		client:    client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		breaker:   resilience.NewBreaker("llm:"+cfg.Model, resilience.BreakerSettings{}, logger),
	}, nil
}

// Name returns the model identifier.
func (c *Client) Name() string { return c.model }

// Complete generates a single candidate for prompt.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, span := otel.Tracer("llm").Start(ctx, "gemini.complete")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", c.model))

	out, err := c.breaker.Execute(func() (interface{}, error) {
		model := c.client.GenerativeModel(c.model)
		model.SetTemperature(0)
		if c.maxTokens > 0 {
			model.SetMaxOutputTokens(int32(c.maxTokens))
		}
		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return nil, err
		}
		return responseText(resp)
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("llm.error", true))
		return "", domain.External("complete", err)
	}
	return out.(string), nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		// only the first candidate with content is used
		if sb.Len() > 0 {
			break
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("no text in gemini response")
	}
	return sb.String(), nil
}

// Close releases the underlying client.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
