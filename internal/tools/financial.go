package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"sedar-analyst/internal/domain"
	"sedar-analyst/internal/resilience"
)

const (
	RatioToolName = "financial_ratio_calculator"
	StockToolName = "stock_price_checker"
)

// ComputeRatio divides numerator by denominator. A zero denominator yields +Inf.
func ComputeRatio(numerator, denominator float64) float64 {
	if denominator == 0 {
		return math.Inf(1)
	}
	return numerator / denominator
}

// FormatNumber renders a ratio for an observation; infinities become "inf".
func FormatNumber(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsNaN(v):
		return "nan"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// RatioTool divides two numbers taken from the filing or from other tools.
func RatioTool() Descriptor {
	return Descriptor{
		Name:        RatioToolName,
		Kind:        KindComputeRatio,
		Description: "Use this tool for financial calculations like debt-to-equity, current ratio, etc. Divides numerator by denominator.",
		Schema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"numerator":   {Type: "number", Description: "The value on top of the ratio, e.g. total liabilities."},
				"denominator": {Type: "number", Description: "The value below the ratio, e.g. shareholders' equity."},
			},
			Required: []string{"numerator", "denominator"},
		},
		invoke: func(_ context.Context, args map[string]any) string {
			num, _ := args["numerator"].(float64)
			den, _ := args["denominator"].(float64)
			return FormatNumber(ComputeRatio(num, den))
		},
	}
}

// CheckPrice renders the latest close for ticker. It never fails; lookup
// errors are reported in the returned text.
func CheckPrice(ctx context.Context, md domain.MarketData, ticker string) string {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	price, found, err := md.LatestClose(ctx, ticker)
	if err != nil {
		return fmt.Sprintf("An error occurred: %s", rootCause(err))
	}
	if !found {
		return fmt.Sprintf("Could not find stock data for ticker: %s", ticker)
	}
	return fmt.Sprintf("The latest stock price for %s is $%.2f", ticker, price)
}

// StockTool looks up a live price through md.
func StockTool(md domain.MarketData) Descriptor {
	minLen := 1
	return Descriptor{
		Name:        StockToolName,
		Kind:        KindFetchPrice,
		Description: "Use this tool to find the current market price of a company's stock. Takes an exchange ticker such as TD.TO or AAPL.",
		Schema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"ticker": {Type: "string", MinLength: &minLen, Description: "Stock ticker symbol, with exchange suffix for TSX listings (e.g. RY.TO)."},
			},
			Required: []string{"ticker"},
		},
		invoke: func(ctx context.Context, args map[string]any) string {
			ticker, _ := args["ticker"].(string)
			return CheckPrice(ctx, md, ticker)
		},
	}
}

// UnavailableObservation replaces the cause when a circuit breaker refused the call.
const UnavailableObservation = "the service is temporarily unavailable, please try again later"

// rootCause strips operation prefixes so observations stay short.
func rootCause(err error) string {
	if resilience.IsOpen(err) {
		return UnavailableObservation
	}
	var de *domain.Error
	if errors.As(err, &de) && de.Err != nil {
		return de.Err.Error()
	}
	return err.Error()
}
