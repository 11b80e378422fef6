package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sedar-analyst/internal/agent"
	"sedar-analyst/internal/domain"
	"sedar-analyst/internal/tools"
)

type fixedCompleter struct {
	reply       string
	sawDeadline bool
}

func (c *fixedCompleter) Name() string { return "fixed" }

func (c *fixedCompleter) Complete(ctx context.Context, _ string) (string, error) {
	_, c.sawDeadline = ctx.Deadline()
	return c.reply, nil
}

func newAnalyst(t *testing.T, c domain.Completer, timeout time.Duration) *Analyst {
	t.Helper()
	reg, err := tools.NewRegistry(nil, nil, tools.RatioTool())
	require.NoError(t, err)
	a, err := agent.New(c, reg, agent.Config{MaxIterations: 2}, nil, nil)
	require.NoError(t, err)
	return NewAnalyst(a, timeout, nil)
}

func TestAnalyst_Query(t *testing.T) {
	c := &fixedCompleter{reply: "Thought: known\nAnswer: The current ratio is 1.4."}
	s := newAnalyst(t, c, time.Minute)

	answer, err := s.Query(context.Background(), "What is the current ratio?")
	require.NoError(t, err)
	assert.Equal(t, "The current ratio is 1.4.", answer)
	assert.True(t, c.sawDeadline)
}

func TestAnalyst_QueryDetailedReturnsTrace(t *testing.T) {
	c := &fixedCompleter{reply: "Thought: compute\nAction: financial_ratio_calculator\nAction Input: {\"numerator\": 7, \"denominator\": 5}"}
	s := newAnalyst(t, c, 0)

	res, err := s.QueryDetailed(context.Background(), "Current ratio?")
	require.NoError(t, err)
	assert.Equal(t, agent.OutcomeExhausted, res.Outcome)
	assert.Equal(t, agent.ExhaustedAnswer, res.Answer)
	require.Equal(t, 2, res.Trace.Len())
	assert.Equal(t, "1.4", res.Trace.Steps[0].Observation)
	assert.False(t, c.sawDeadline)
}

func TestAnalyst_EmptyQuestion(t *testing.T) {
	s := newAnalyst(t, &fixedCompleter{}, 0)
	_, err := s.Query(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
