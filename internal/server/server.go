// Package server exposes the analyst over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"sedar-analyst/internal/agent"
	"sedar-analyst/internal/domain"
)

const RequestIDHeader = "X-Request-ID"

// Querier is the analyst capability the server needs.
type Querier interface {
	QueryDetailed(ctx context.Context, question string) (agent.Result, error)
}

type queryRequest struct {
	Question string `json:"question" binding:"required"`
}

type queryResponse struct {
	Response string       `json:"response"`
	Outcome  string       `json:"outcome,omitempty"`
	Trace    *agent.Trace `json:"trace,omitempty"`
}

// Server serves POST /query, GET / and GET /metrics.
type Server struct {
	engine *gin.Engine
	q      Querier
	logger *zap.Logger
}

// New builds the router. gatherer may be nil to omit /metrics.
func New(q Querier, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{engine: gin.New(), q: q, logger: logger.With(zap.String("component", "http"))}

	s.engine.Use(gin.Recovery(), requestID(), tracing(), s.accessLog())
	s.engine.GET("/", s.health)
	s.engine.POST("/query", s.query)
	if gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Run listens on addr until ctx is cancelled, then drains in-flight queries.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "API is running"})
}

func (s *Server) query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be {\"question\": \"...\"}"})
		return
	}

	res, err := s.q.QueryDetailed(c.Request.Context(), req.Question)
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		s.logger.Error("query failed", zap.String("request_id", c.GetString("request_id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	resp := queryResponse{Response: res.Answer}
	if c.Query("trace") == "true" {
		resp.Outcome = string(res.Outcome)
		resp.Trace = res.Trace
	}
	c.JSON(http.StatusOK, resp)
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// tracing opens a server span per request; handlers pick it up from the request context.
func tracing() gin.HandlerFunc {
	tracer := otel.Tracer("http")
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), c.Request.Method+" "+c.FullPath(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.request_id", c.GetString("request_id")),
			))
		defer span.End()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
		span.SetAttributes(attribute.Int("http.response.status_code", c.Writer.Status()))
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}
