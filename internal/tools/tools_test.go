package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"sedar-analyst/internal/domain"
	"sedar-analyst/internal/retriever"
)

type fakeMarket struct {
	prices map[string]float64
	err    error
	asked  []string
}

func (f *fakeMarket) LatestClose(_ context.Context, ticker string) (float64, bool, error) {
	f.asked = append(f.asked, ticker)
	if f.err != nil {
		return 0, false, f.err
	}
	p, ok := f.prices[ticker]
	return p, ok, nil
}

type fakeAnswerer struct {
	ans retriever.Answer
	err error
}

func (f fakeAnswerer) Answer(context.Context, string) (retriever.Answer, error) { return f.ans, f.err }

func newRegistry(t *testing.T, md domain.MarketData, a Answerer) *Registry {
	t.Helper()
	r, err := NewRegistry(nil, nil, RetrieverTool(a), RatioTool(), StockTool(md))
	require.NoError(t, err)
	return r
}

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(nil, nil, RatioTool(), RatioTool())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "already registered")
}

func TestNewRegistry_RejectsUnknownKind(t *testing.T) {
	d := RatioTool()
	d.Kind = Kind(42)
	_, err := NewRegistry(nil, nil, d)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRegistry_OrderAndLookup(t *testing.T) {
	r := newRegistry(t, &fakeMarket{}, fakeAnswerer{})
	assert.Equal(t, []string{RetrieverToolName, RatioToolName, StockToolName}, r.Names())

	d, ok := r.Lookup(RatioToolName)
	require.True(t, ok)
	assert.Equal(t, KindComputeRatio, d.Kind)
	assert.Equal(t, []string{"denominator", "numerator"}, d.Parameters())
	assert.Contains(t, d.SchemaJSON(), `"numerator"`)

	_, ok = r.Lookup("nope")
	assert.False(t, ok)
}

func TestRegistry_InvokeRatio(t *testing.T) {
	r := newRegistry(t, &fakeMarket{}, fakeAnswerer{})

	res := r.Invoke(context.Background(), RatioToolName, `{"numerator": 10, "denominator": 4}`)
	assert.True(t, res.Valid)
	assert.Equal(t, "2.5", res.Observation)

	res = r.Invoke(context.Background(), RatioToolName, `{"numerator": 10, "denominator": 0}`)
	assert.True(t, res.Valid)
	assert.Equal(t, "inf", res.Observation)
}

func TestRegistry_InvalidInputIsNotInvoked(t *testing.T) {
	md := &fakeMarket{prices: map[string]float64{"TD.TO": 80}}
	r := newRegistry(t, md, fakeAnswerer{})
	ctx := context.Background()

	tests := []struct {
		name  string
		tool  string
		input string
		want  string
	}{
		{name: "unknown tool", tool: "web_search", input: `{"q":"x"}`, want: "no tool named"},
		{name: "not json", tool: StockToolName, input: `TD.TO`, want: "must be a JSON object"},
		{name: "json array", tool: StockToolName, input: `["TD.TO"]`, want: "must be a JSON object"},
		{name: "missing field", tool: StockToolName, input: `{}`, want: "Invalid input for stock_price_checker"},
		{name: "missing field names expected fields", tool: StockToolName, input: `{}`, want: "with the fields ticker,"},
		{name: "wrong type", tool: RatioToolName, input: `{"numerator":"ten","denominator":2}`, want: "Invalid input for financial_ratio_calculator"},
		{name: "wrong type names expected fields", tool: RatioToolName, input: `{"numerator":"ten","denominator":2}`, want: "with the fields denominator, numerator,"},
		{name: "empty ticker", tool: StockToolName, input: `{"ticker":""}`, want: "Invalid input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Invoke(ctx, tt.tool, tt.input)
			assert.False(t, res.Valid)
			assert.Contains(t, res.Observation, tt.want)
		})
	}
	assert.Empty(t, md.asked)
}

func TestCheckPrice(t *testing.T) {
	ctx := context.Background()
	md := &fakeMarket{prices: map[string]float64{"TD.TO": 81.237}}

	assert.Equal(t, "The latest stock price for TD.TO is $81.24", CheckPrice(ctx, md, "td.to"))
	assert.Equal(t, "Could not find stock data for ticker: ZZZZINVALID", CheckPrice(ctx, md, "ZZZZINVALID"))

	failing := &fakeMarket{err: domain.External("latest close", errors.New("connection refused"))}
	assert.Equal(t, "An error occurred: connection refused", CheckPrice(ctx, failing, "TD.TO"))

	tripped := &fakeMarket{err: domain.External("latest close", gobreaker.ErrOpenState)}
	assert.Equal(t, "An error occurred: "+UnavailableObservation, CheckPrice(ctx, tripped, "TD.TO"))
}

func TestRetrieverTool(t *testing.T) {
	ctx := context.Background()

	r := newRegistry(t, &fakeMarket{}, fakeAnswerer{ans: retriever.Answer{Text: "Net income was $10.6B.", Found: true}})
	res := r.Invoke(ctx, RetrieverToolName, `{"question":"What was net income?"}`)
	assert.True(t, res.Valid)
	assert.Equal(t, "Net income was $10.6B.", res.Observation)

	missing := fakeAnswerer{err: fmt.Errorf("search filings: %w", domain.E("search", domain.ErrCollectionNotFound, nil))}
	r = newRegistry(t, &fakeMarket{}, missing)
	res = r.Invoke(ctx, RetrieverToolName, `{"question":"What was net income?"}`)
	assert.True(t, res.Valid)
	assert.Equal(t, NoIndexObservation, res.Observation)

	failing := fakeAnswerer{err: fmt.Errorf("embed question: %w", domain.External("openai embeddings", errors.New("401 Unauthorized")))}
	r = newRegistry(t, &fakeMarket{}, failing)
	res = r.Invoke(ctx, RetrieverToolName, `{"question":"x"}`)
	assert.Equal(t, "An error occurred: 401 Unauthorized", res.Observation)

	r = newRegistry(t, &fakeMarket{}, fakeAnswerer{ans: retriever.Answer{}})
	res = r.Invoke(ctx, RetrieverToolName, `{"question":"What was the revenue?"}`)
	assert.True(t, res.Valid)
	assert.Equal(t, retriever.NotFoundAnswer, res.Observation)

	tripped := fakeAnswerer{err: fmt.Errorf("answer from filings: %w", domain.External("complete", gobreaker.ErrTooManyRequests))}
	r = newRegistry(t, &fakeMarket{}, tripped)
	res = r.Invoke(ctx, RetrieverToolName, `{"question":"x"}`)
	assert.Equal(t, "An error occurred: "+UnavailableObservation, res.Observation)
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "inf", FormatNumber(math.Inf(1)))
	assert.Equal(t, "-inf", FormatNumber(math.Inf(-1)))
	assert.Equal(t, "nan", FormatNumber(math.NaN()))
	assert.Equal(t, "0.5", FormatNumber(0.5))
	assert.Equal(t, "-3", FormatNumber(-3))
}

func TestProperty_RatioMatchesDivision(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		num := rapid.Float64Range(-1e12, 1e12).Draw(rt, "numerator")
		den := rapid.Float64Range(-1e12, 1e12).Draw(rt, "denominator")
		got := ComputeRatio(num, den)
		if den == 0 {
			assert.True(rt, math.IsInf(got, 1))
			return
		}
		assert.Equal(rt, num/den, got)
	})
}

func TestRatio_ZeroDenominator(t *testing.T) {
	assert.True(t, math.IsInf(ComputeRatio(5, 0), 1))
	assert.True(t, math.IsInf(ComputeRatio(-5, 0), 1))
	assert.Equal(t, "inf", FormatNumber(ComputeRatio(0, 0)))
}
