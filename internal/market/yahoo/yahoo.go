// Package yahoo reads the latest close price from the Yahoo Finance chart API.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"sedar-analyst/internal/domain"
	"sedar-analyst/internal/resilience"
)

// Config configures the chart API client.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Client implements domain.MarketData.
type Client struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://query1.finance.yahoo.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "yahoo"))
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		breaker: resilience.NewBreaker("market:yahoo", resilience.BreakerSettings{}, logger),
		logger:  logger,
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type quote struct {
	price float64
	found bool
}

// LatestClose returns the most recent daily close for ticker. found is false
// when Yahoo has no data for the symbol.
func (c *Client) LatestClose(ctx context.Context, ticker string) (float64, bool, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return 0, false, domain.Invalid("latest close", "ticker is empty")
	}
	ctx, span := otel.Tracer("market").Start(ctx, "yahoo.latest_close")
	defer span.End()
	span.SetAttributes(attribute.String("market.ticker", ticker))

	if err := c.limiter.Wait(ctx); err != nil {
		return 0, false, domain.External("latest close", err)
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, ticker)
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("market.error", true))
		return 0, false, domain.External("latest close", err)
	}
	q := out.(quote)
	span.SetAttributes(attribute.Bool("market.found", q.found))
	return q.price, q.found, nil
}

func (c *Client) fetch(ctx context.Context, ticker string) (quote, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?range=1d&interval=1d", c.baseURL, url.PathEscape(ticker))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return quote{}, err
	}
	// the chart API rejects requests without a browser-like agent
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; sedar-analyst/1.0)")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return quote{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return quote{}, err
	}
	if resp.StatusCode == http.StatusNotFound {
		c.logger.Debug("ticker not found", zap.String("ticker", ticker))
		return quote{}, nil
	}
	if resp.StatusCode >= 300 {
		return quote{}, fmt.Errorf("chart request for %s failed: %s", ticker, resp.Status)
	}

	var chart chartResponse
	if err := json.Unmarshal(body, &chart); err != nil {
		return quote{}, fmt.Errorf("decode chart response: %w", err)
	}
	if len(chart.Chart.Result) == 0 {
		return quote{}, nil
	}
	r := chart.Chart.Result[0]
	for _, q := range r.Indicators.Quote {
		for i := len(q.Close) - 1; i >= 0; i-- {
			if q.Close[i] != nil {
				return quote{price: *q.Close[i], found: true}, nil
			}
		}
	}
	return quote{}, nil
}
