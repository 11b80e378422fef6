// Package retriever answers questions from the filing index: embed the
// question, fetch the nearest passages and let the model answer from them only.
package retriever

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"sedar-analyst/internal/domain"
	"sedar-analyst/internal/metrics"
	"sedar-analyst/internal/tokenizer"
)

// NotFoundAnswer is returned verbatim when the index holds nothing that answers the question.
const NotFoundAnswer = "No relevant information found."

const (
	DefaultTopK             = 5
	DefaultMaxContextTokens = 3000
)

// Answer is the retriever's reply and the passages it was grounded on.
type Answer struct {
	Text     string
	Passages []domain.SearchResult
	Found    bool
}

// Config tunes retrieval. Zero values take the defaults; a negative
// MaxContextTokens disables the budget.
type Config struct {
	TopK             int
	MaxContextTokens int
}

// Retriever is safe for concurrent use.
type Retriever struct {
	embedder  domain.Embedder
	index     domain.VectorIndex
	completer domain.Completer
	tokenizer tokenizer.Tokenizer
	cfg       Config
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// Option customises a Retriever.
type Option func(*Retriever)

// WithTokenizer sets the tokenizer used for the context budget.
func WithTokenizer(t tokenizer.Tokenizer) Option { return func(r *Retriever) { r.tokenizer = t } }

// WithMetrics records retrieval latency.
func WithMetrics(m *metrics.Collector) Option { return func(r *Retriever) { r.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(r *Retriever) { r.logger = l } }

func New(embedder domain.Embedder, index domain.VectorIndex, completer domain.Completer, cfg Config, opts ...Option) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MaxContextTokens == 0 {
		cfg.MaxContextTokens = DefaultMaxContextTokens
	}
	r := &Retriever{
		embedder:  embedder,
		index:     index,
		completer: completer,
		tokenizer: tokenizer.Estimator{},
		cfg:       cfg,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "retriever"))
	return r
}

// Answer retrieves passages for question and asks the model to answer from them.
// A missing collection is reported as domain.ErrCollectionNotFound.
func (r *Retriever) Answer(ctx context.Context, question string) (Answer, error) {
	ctx, span := otel.Tracer("retriever").Start(ctx, "retriever.answer")
	defer span.End()

	start := time.Now()
	vec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return Answer{}, fmt.Errorf("embed question: %w", err)
	}
	passages, err := r.index.Search(ctx, vec, r.cfg.TopK)
	if err != nil {
		return Answer{}, fmt.Errorf("search filings: %w", err)
	}
	r.metrics.RecordRetrieval(time.Since(start), len(passages))
	span.SetAttributes(attribute.Int("retriever.passages", len(passages)))

	if len(passages) == 0 {
		r.logger.Debug("no passages retrieved")
		return Answer{Text: NotFoundAnswer}, nil
	}
	passages = r.fitBudget(passages)

	reply, err := r.completer.Complete(ctx, BuildPrompt(question, passages))
	if err != nil {
		return Answer{}, fmt.Errorf("answer from filings: %w", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" || strings.Contains(reply, NotFoundAnswer) {
		return Answer{Text: NotFoundAnswer, Passages: passages}, nil
	}
	return Answer{Text: reply, Passages: passages, Found: true}, nil
}

// fitBudget keeps passages in rank order while they fit the token budget.
// The best passage is always kept.
func (r *Retriever) fitBudget(passages []domain.SearchResult) []domain.SearchResult {
	if r.cfg.MaxContextTokens < 0 {
		return passages
	}
	used := r.tokenizer.CountTokens(passages[0].Chunk.Text)
	kept := 1
	for _, p := range passages[1:] {
		n := r.tokenizer.CountTokens(p.Chunk.Text)
		if used+n > r.cfg.MaxContextTokens {
			break
		}
		used += n
		kept++
	}
	if kept < len(passages) {
		r.logger.Debug("trimmed passages to context budget",
			zap.Int("kept", kept), zap.Int("retrieved", len(passages)), zap.Int("tokens", used))
	}
	return passages[:kept]
}

// BuildPrompt renders the grounded question-answering prompt.
func BuildPrompt(question string, passages []domain.SearchResult) string {
	var sb strings.Builder
	sb.WriteString("Context information from SEDAR+ filings is below.\n---------------------\n")
	for i, p := range passages {
		fmt.Fprintf(&sb, "[%d]", i+1)
		if p.Chunk.SourceRef != "" {
			fmt.Fprintf(&sb, " (source: %s)", p.Chunk.SourceRef)
		}
		sb.WriteString("\n")
		sb.WriteString(strings.TrimSpace(p.Chunk.Text))
		sb.WriteString("\n\n")
	}
	sb.WriteString("---------------------\n")
	sb.WriteString("Using only the context information above and no prior knowledge, answer the question.\n")
	sb.WriteString("If the context does not contain the answer, reply with exactly: ")
	sb.WriteString(NotFoundAnswer)
	sb.WriteString("\nQuestion: ")
	sb.WriteString(strings.TrimSpace(question))
	sb.WriteString("\nAnswer: ")
	return sb.String()
}
