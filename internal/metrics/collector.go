// Package metrics exposes Prometheus metrics for ingestion, queries and tools.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector holds the analyst metrics. A nil *Collector is valid and records nothing.
type Collector struct {
	queriesTotal      *prometheus.CounterVec
	queryDuration     prometheus.Histogram
	loopIterations    prometheus.Histogram
	toolInvocations   *prometheus.CounterVec
	retrievalDuration prometheus.Histogram
	retrievedPassages prometheus.Histogram
	llmRequestsTotal  *prometheus.CounterVec
	llmDuration       *prometheus.HistogramVec
	ingestedDocuments prometheus.Counter
	ingestedChunks    prometheus.Counter

	logger *zap.Logger
}

// NewCollector registers the metrics with reg under namespace.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := promauto.With(reg)
	c := &Collector{logger: logger.With(zap.String("component", "metrics"))}

	c.queriesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total number of answered queries by loop outcome",
		},
		[]string{"outcome"},
	)
	c.queryDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "query_duration_seconds",
		Help:      "End-to-end query duration in seconds",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})
	c.loopIterations = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "agent_loop_iterations",
		Help:      "Model invocations per query",
		Buckets:   prometheus.LinearBuckets(1, 1, 10),
	})
	c.toolInvocations = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_invocations_total",
			Help:      "Tool invocations by tool and status",
		},
		[]string{"tool", "status"},
	)
	c.retrievalDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "retrieval_duration_seconds",
		Help:      "Embedding plus vector search duration in seconds",
		Buckets:   prometheus.DefBuckets,
	})
	c.retrievedPassages = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "retrieved_passages",
		Help:      "Passages returned by vector search",
		Buckets:   prometheus.LinearBuckets(0, 1, 11),
	})
	c.llmRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Language model requests by provider and status",
		},
		[]string{"provider", "status"},
	)
	c.llmDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Language model request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)
	c.ingestedDocuments = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingested_documents_total",
		Help:      "Documents ingested",
	})
	c.ingestedChunks = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingested_chunks_total",
		Help:      "Chunks embedded and stored",
	})

	c.logger.Debug("metrics registered", zap.String("namespace", namespace))
	return c
}

// RecordQuery records one finished query.
func (c *Collector) RecordQuery(outcome string, iterations int, d time.Duration) {
	if c == nil {
		return
	}
	c.queriesTotal.WithLabelValues(outcome).Inc()
	c.queryDuration.Observe(d.Seconds())
	c.loopIterations.Observe(float64(iterations))
}

// RecordTool records one tool invocation; status is "ok" or "invalid_input".
func (c *Collector) RecordTool(tool, status string) {
	if c == nil {
		return
	}
	c.toolInvocations.WithLabelValues(tool, status).Inc()
}

// RecordRetrieval records one vector search.
func (c *Collector) RecordRetrieval(d time.Duration, passages int) {
	if c == nil {
		return
	}
	c.retrievalDuration.Observe(d.Seconds())
	c.retrievedPassages.Observe(float64(passages))
}

// RecordLLM records one language model call.
func (c *Collector) RecordLLM(provider string, err error, d time.Duration) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.llmRequestsTotal.WithLabelValues(provider, status).Inc()
	c.llmDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordIngest records a finished ingestion run.
func (c *Collector) RecordIngest(documents, chunks int) {
	if c == nil {
		return
	}
	c.ingestedDocuments.Add(float64(documents))
	c.ingestedChunks.Add(float64(chunks))
}
