// Package service holds the two application boundaries: offline ingestion of
// filings into the vector index and the question-answering entry point.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sedar-analyst/internal/domain"
	"sedar-analyst/internal/metrics"
)

const lockFile = ".ingest.lock"

// IngestConfig tunes the pipeline.
type IngestConfig struct {
	// DataDir holds the ingestion lock file.
	DataDir          string
	Concurrency      int
	LockTimeout      time.Duration
	SummarySentences int
}

// DocumentReport describes one ingested document.
type DocumentReport struct {
	Path    string
	Chunks  int
	Summary string
}

// Report is the outcome of one ingestion run.
type Report struct {
	Collection domain.CollectionInfo
	Documents  []DocumentReport
	Chunks     int
	Duration   time.Duration
}

// Ingestor chunks, embeds and stores documents.
type Ingestor struct {
	chunker    domain.Chunker
	embedder   domain.Embedder
	index      domain.VectorIndex
	summarizer domain.Summarizer
	cfg        IngestConfig
	metrics    *metrics.Collector
	logger     *zap.Logger
}

// NewIngestor builds an Ingestor. summarizer may be nil.
func NewIngestor(chunker domain.Chunker, embedder domain.Embedder, index domain.VectorIndex, summarizer domain.Summarizer, cfg IngestConfig, logger *zap.Logger, m *metrics.Collector) *Ingestor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		chunker:    chunker,
		embedder:   embedder,
		index:      index,
		summarizer: summarizer,
		cfg:        cfg,
		metrics:    m,
		logger:     logger.With(zap.String("component", "ingest")),
	}
}

// Ingest loads the documents under paths and appends their chunks to the
// collection, creating it on first use. Re-ingesting the same files adds
// duplicate entries unless reset drops the collection once every chunk has
// been embedded.
func (s *Ingestor) Ingest(ctx context.Context, paths []string, reset bool) (Report, error) {
	start := time.Now()
	ctx, span := otel.Tracer("ingest").Start(ctx, "ingest")
	defer span.End()

	docs, err := LoadDocuments(paths)
	if err != nil {
		return Report{}, err
	}
	span.SetAttributes(attribute.Int("ingest.documents", len(docs)))

	unlock, err := s.acquireLock(ctx)
	if err != nil {
		return Report{}, err
	}
	defer unlock()

	report := Report{Documents: make([]DocumentReport, 0, len(docs))}
	var chunks []domain.Chunk
	for _, d := range docs {
		cs, err := s.chunker.Chunk(d)
		if err != nil {
			return Report{}, fmt.Errorf("chunk %s: %w", d.Path, err)
		}
		chunks = append(chunks, cs...)
		report.Documents = append(report.Documents, DocumentReport{Path: d.Path, Chunks: len(cs), Summary: s.summarize(d)})
		s.logger.Debug("document chunked", zap.String("path", d.Path), zap.Int("chunks", len(cs)))
	}
	if len(chunks) == 0 {
		return Report{}, domain.Invalid("ingest", "documents contain no text")
	}

	vectors, err := s.embedAll(ctx, chunks)
	if err != nil {
		return Report{}, err
	}

	// The old collection survives any chunking or embedding failure.
	if reset {
		if err := s.index.Drop(ctx); err != nil && !errors.Is(err, domain.ErrCollectionNotFound) {
			return Report{}, fmt.Errorf("reset collection: %w", err)
		}
		s.logger.Info("collection dropped before insert")
	}

	info, err := s.index.EnsureCollection(ctx, s.embedder.Name(), len(vectors[0]))
	if err != nil {
		return Report{}, fmt.Errorf("prepare collection: %w", err)
	}
	if _, err := s.index.Insert(ctx, chunks, vectors); err != nil {
		return Report{}, fmt.Errorf("store chunks: %w", err)
	}
	if info, err = s.index.Info(ctx); err != nil {
		return Report{}, err
	}

	report.Collection = info
	report.Chunks = len(chunks)
	report.Duration = time.Since(start)
	s.metrics.RecordIngest(len(docs), len(chunks))
	s.logger.Info("ingestion complete",
		zap.String("collection", info.Name),
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(chunks)),
		zap.Int("collection_size", info.Count),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// embedAll embeds chunks with bounded concurrency, preserving order.
func (s *Ingestor) embedAll(ctx context.Context, chunks []domain.Chunk) ([][]float64, error) {
	vectors := make([][]float64, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i := range chunks {
		g.Go(func() error {
			vec, err := s.embedder.Embed(gctx, chunks[i].Text)
			if err != nil {
				return fmt.Errorf("embed %s: %w", chunks[i].ChunkID, err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim || dim == 0 {
			return nil, domain.Invalid("embed", "chunk %s has dimension %d, expected %d", chunks[i].ChunkID, len(v), dim)
		}
	}
	return vectors, nil
}

func (s *Ingestor) summarize(d domain.Document) string {
	if s.summarizer == nil || strings.TrimSpace(d.Content) == "" {
		return ""
	}
	sum, err := s.summarizer.Summarize(d.Content, s.cfg.SummarySentences)
	if err != nil {
		s.logger.Warn("summary failed", zap.String("path", d.Path), zap.Error(err))
		return ""
	}
	return sum
}

// acquireLock takes the data-directory lock, polling until LockTimeout.
func (s *Ingestor) acquireLock(ctx context.Context) (func(), error) {
	dir := s.cfg.DataDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, lockFile)
	l := flock.New(path)
	deadline := time.Now().Add(s.cfg.LockTimeout)
	for {
		locked, err := l.TryLock()
		if err != nil {
			return nil, fmt.Errorf("cannot acquire ingestion lock: %w", err)
		}
		if locked {
			return func() { _ = l.Unlock() }, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("another ingestion is in progress (lock: %s)", path)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}
