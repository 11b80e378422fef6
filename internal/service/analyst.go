package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"sedar-analyst/internal/agent"
)

// Analyst is the query boundary shared by the CLI, the HTTP server and the TUI.
type Analyst struct {
	agent   *agent.Agent
	timeout time.Duration
	logger  *zap.Logger
}

// NewAnalyst wraps a. A positive timeout bounds each query.
func NewAnalyst(a *agent.Agent, timeout time.Duration, logger *zap.Logger) *Analyst {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyst{agent: a, timeout: timeout, logger: logger.With(zap.String("component", "analyst"))}
}

// Query answers question. Exhausted or failed loops still yield a readable
// answer; the error is set only when the question is rejected.
func (s *Analyst) Query(ctx context.Context, question string) (string, error) {
	res, err := s.QueryDetailed(ctx, question)
	if err != nil {
		return "", err
	}
	return res.Answer, nil
}

// QueryDetailed is Query plus the reasoning trace.
func (s *Analyst) QueryDetailed(ctx context.Context, question string) (agent.Result, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	res, err := s.agent.Run(ctx, question)
	if err != nil {
		return agent.Result{}, err
	}
	if lerr := res.Err(); lerr != nil {
		s.logger.Warn("query ended without an answer", zap.String("trace_id", res.Trace.ID), zap.Error(lerr))
	}
	return res, nil
}
