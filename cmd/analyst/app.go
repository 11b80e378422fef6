package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"sedar-analyst/internal/agent"
	"sedar-analyst/internal/chunker"
	"sedar-analyst/internal/config"
	"sedar-analyst/internal/domain"
	"sedar-analyst/internal/embedding"
	"sedar-analyst/internal/llm"
	"sedar-analyst/internal/logger"
	"sedar-analyst/internal/market/yahoo"
	"sedar-analyst/internal/metrics"
	"sedar-analyst/internal/retriever"
	"sedar-analyst/internal/service"
	"sedar-analyst/internal/summarizer"
	"sedar-analyst/internal/tokenizer"
	"sedar-analyst/internal/tools"
	"sedar-analyst/internal/vectorstore"
)

const metricsNamespace = "sedar_analyst"

// app holds the components shared by every subcommand.
type app struct {
	cfg      *config.AppConfig
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Collector
	embedder domain.Embedder
	index    domain.VectorIndex
	tok      tokenizer.Tokenizer
	closers  []func() error
}

// loadApp reads configuration and opens the embedder and vector store.
// querying additionally requires language model credentials.
func loadApp(ctx context.Context, querying bool) (*app, error) {
	config.LoadEnv()

	var (
		cfg *config.AppConfig
		err error
	)
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if querying {
		err = cfg.Validate()
	} else {
		err = cfg.ValidateIngest()
	}
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger.New(cfg.Log.Level, cfg.Log.Format),
		registry: prometheus.NewRegistry(),
	}
	a.metrics = metrics.NewCollector(metricsNamespace, a.registry, a.logger)
	a.closers = append(a.closers, func() error { _ = a.logger.Sync(); return nil })

	switch cfg.Chunker.Tokenizer {
	case "tiktoken":
		a.tok = tokenizer.NewTiktoken(cfg.Chunker.TokenizerModel, a.logger)
	default:
		a.tok = tokenizer.Estimator{}
	}

	emb, closeEmb, err := embedding.New(ctx, cfg.Embedder, a.logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.embedder = emb
	a.closers = append(a.closers, closeEmb)

	idx, closeIdx, err := vectorstore.Open(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.index = idx
	a.closers = append(a.closers, closeIdx)

	a.logger.Debug("components ready",
		zap.String("embedder", emb.Name()),
		zap.String("vector_store", cfg.VectorStore.Type),
		zap.String("collection", cfg.VectorStore.Collection))
	return a, nil
}

func (a *app) ingestor() (*service.Ingestor, error) {
	ch, err := chunker.NewSentenceChunker(a.cfg.Chunker.ChunkSize, a.cfg.Chunker.Overlap, a.tok)
	if err != nil {
		return nil, err
	}
	var sum domain.Summarizer
	if a.cfg.Summarizer.Type == "frequency" {
		sum = summarizer.NewFrequencySummarizer()
	}
	return service.NewIngestor(ch, a.embedder, a.index, sum, service.IngestConfig{
		DataDir:          a.cfg.DataDir,
		Concurrency:      a.cfg.Ingest.Concurrency,
		LockTimeout:      time.Duration(a.cfg.Ingest.LockTimeoutSecs) * time.Second,
		SummarySentences: a.cfg.Summarizer.MaxSentences,
	}, a.logger, a.metrics), nil
}

// analyst assembles the language model, tools and agent. The agent is built
// once and shared by every query.
func (a *app) analyst(ctx context.Context) (*service.Analyst, error) {
	completer, closeLLM, err := llm.New(ctx, a.cfg.LLM, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeLLM)
	completer = llm.Instrument(completer, a.metrics, a.logger)

	ret := retriever.New(a.embedder, a.index, completer,
		retriever.Config{TopK: a.cfg.Retriever.TopK, MaxContextTokens: a.cfg.Retriever.MaxContextTokens},
		retriever.WithTokenizer(a.tok),
		retriever.WithMetrics(a.metrics),
		retriever.WithLogger(a.logger))

	y := a.cfg.Market.Yahoo
	market := yahoo.NewClient(yahoo.Config{
		BaseURL:           y.BaseURL,
		Timeout:           time.Duration(y.TimeoutSecs) * time.Second,
		RequestsPerSecond: y.RequestsPerSecond,
	}, a.logger)

	reg, err := tools.NewRegistry(a.logger, a.metrics,
		tools.RetrieverTool(ret),
		tools.RatioTool(),
		tools.StockTool(market))
	if err != nil {
		return nil, err
	}
	ag, err := agent.New(completer, reg, agent.Config{MaxIterations: a.cfg.Agent.MaxIterations}, a.logger, a.metrics)
	if err != nil {
		return nil, err
	}
	a.logger.Info("analyst ready",
		zap.String("model", completer.Name()),
		zap.Strings("tools", ag.Tools().Names()),
		zap.Int("max_iterations", a.cfg.Agent.MaxIterations))
	return service.NewAnalyst(ag, time.Duration(a.cfg.Agent.QueryTimeoutSecs)*time.Second, a.logger), nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if a.closers[i] == nil {
			continue
		}
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
