// Package agent runs the reason-act-observe loop that answers a question by
// letting a language model pick tools from a fixed registry.
package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"sedar-analyst/internal/domain"
	"sedar-analyst/internal/metrics"
	"sedar-analyst/internal/resilience"
	"sedar-analyst/internal/tools"
)

const DefaultMaxIterations = 10

const (
	// FailureAnswer ends a loop whose model could not be called or understood.
	FailureAnswer = "I'm sorry, I was unable to work out an answer to that question. Please try again or rephrase it."
	// ExhaustedAnswer ends a loop that hit its iteration ceiling.
	ExhaustedAnswer = "I could not complete the analysis within the allowed number of steps, so I cannot determine an answer."
)

// Config bounds the loop.
type Config struct {
	// MaxIterations caps model invocations per query, format retries included.
	MaxIterations int
}

// Agent is immutable after New and safe for concurrent queries.
type Agent struct {
	completer domain.Completer
	registry  *tools.Registry
	cfg       Config
	metrics   *metrics.Collector
	logger    *zap.Logger
}

func New(completer domain.Completer, registry *tools.Registry, cfg Config, logger *zap.Logger, m *metrics.Collector) (*Agent, error) {
	if completer == nil {
		return nil, domain.Invalid("new agent", "language model is required")
	}
	if registry == nil || len(registry.Names()) == 0 {
		return nil, domain.Invalid("new agent", "at least one tool is required")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		completer: completer,
		registry:  registry,
		cfg:       cfg,
		metrics:   m,
		logger:    logger.With(zap.String("component", "agent")),
	}, nil
}

// Tools exposes the registry the agent selects from.
func (a *Agent) Tools() *tools.Registry { return a.registry }

// Run answers question. Loop failures are reported through Result.Outcome;
// the error is non-nil only for an empty question.
func (a *Agent) Run(ctx context.Context, question string) (Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Result{}, domain.Invalid("agent", "question is empty")
	}

	ctx, span := otel.Tracer("agent").Start(ctx, "agent.run")
	defer span.End()

	start := time.Now()
	trace := newTrace()
	log := a.logger.With(zap.String("trace_id", trace.ID))
	span.SetAttributes(attribute.String("agent.trace_id", trace.ID))
	log.Info("query started", zap.String("question", question))

	res := a.loop(ctx, question, trace, log)

	span.SetAttributes(
		attribute.String("agent.outcome", string(res.Outcome)),
		attribute.Int("agent.model_calls", res.ModelCalls),
	)
	a.metrics.RecordQuery(string(res.Outcome), res.ModelCalls, time.Since(start))
	log.Info("query finished",
		zap.String("outcome", string(res.Outcome)),
		zap.Int("model_calls", res.ModelCalls),
		zap.Int("steps", trace.Len()),
		zap.Duration("duration", time.Since(start)))
	return res, nil
}

func (a *Agent) loop(ctx context.Context, question string, trace *Trace, log *zap.Logger) Result {
	var (
		calls        int
		parseFailure bool
	)
	done := func(answer string, outcome Outcome) Result {
		return Result{Answer: answer, Outcome: outcome, Trace: trace, ModelCalls: calls}
	}

	for calls < a.cfg.MaxIterations {
		prompt := buildPrompt(question, a.registry, trace, parseFailure)
		calls++
		reply, err := a.completer.Complete(ctx, prompt)
		if err != nil {
			log.Error("model call failed", zap.Int("call", calls), zap.Error(err))
			trace.append(Step{Observation: "Model call failed: " + errorText(err)})
			return done(FailureAnswer, OutcomeModelFailure)
		}

		dec, err := parseOutput(reply)
		if err != nil {
			trace.append(Step{Thought: strings.TrimSpace(reply), Observation: FormatCorrection})
			if parseFailure {
				log.Warn("model output unparsable twice in a row", zap.Int("call", calls))
				return done(FailureAnswer, OutcomeParseFailure)
			}
			log.Warn("model output unparsable, retrying with format correction", zap.Int("call", calls))
			parseFailure = true
			continue
		}
		parseFailure = false

		if dec.Final {
			trace.append(Step{Thought: dec.Thought, Action: FinishAction, Observation: dec.Answer})
			return done(dec.Answer, OutcomeAnswered)
		}

		log.Debug("model chose tool", zap.String("tool", dec.Action), zap.String("input", dec.ActionInput))
		res := a.registry.Invoke(ctx, dec.Action, dec.ActionInput)
		trace.append(Step{
			Thought:     dec.Thought,
			Action:      dec.Action,
			ActionInput: dec.ActionInput,
			Observation: res.Observation,
		})
	}

	log.Warn("iteration ceiling reached", zap.Int("max_iterations", a.cfg.MaxIterations))
	return done(ExhaustedAnswer, OutcomeExhausted)
}

// errorText keeps the model-facing failure short; deadlines read as timeouts.
func errorText(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	if resilience.IsOpen(err) {
		return "model service temporarily unavailable"
	}
	return err.Error()
}
