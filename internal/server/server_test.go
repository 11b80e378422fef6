package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sedar-analyst/internal/agent"
	"sedar-analyst/internal/domain"
	"sedar-analyst/internal/metrics"
)

type stubQuerier struct {
	res      agent.Result
	err      error
	question string
}

func (s *stubQuerier) QueryDetailed(_ context.Context, q string) (agent.Result, error) {
	s.question = q
	return s.res, s.err
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, New(&stubQuerier{}, nil, nil).Handler(), http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"API is running"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestQuery_ReturnsResponse(t *testing.T) {
	q := &stubQuerier{res: agent.Result{Answer: "Revenue was $49.2 billion.", Outcome: agent.OutcomeAnswered, Trace: &agent.Trace{ID: "t-1"}}}
	rec := do(t, New(q, nil, nil).Handler(), http.MethodPost, "/query", `{"question":"What was revenue?"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"response":"Revenue was $49.2 billion."}`, rec.Body.String())
	assert.Equal(t, "What was revenue?", q.question)
}

func TestQuery_WithTrace(t *testing.T) {
	q := &stubQuerier{res: agent.Result{
		Answer:  "ok",
		Outcome: agent.OutcomeAnswered,
		Trace:   &agent.Trace{ID: "t-2", Steps: []agent.Step{{Thought: "done", Action: agent.FinishAction, Observation: "ok"}}},
	}}
	rec := do(t, New(q, nil, nil).Handler(), http.MethodPost, "/query?trace=true", `{"question":"q"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body queryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "answered", body.Outcome)
	require.NotNil(t, body.Trace)
	assert.Equal(t, "t-2", body.Trace.ID)
	assert.Len(t, body.Trace.Steps, 1)
}

func TestQuery_BadRequests(t *testing.T) {
	h := New(&stubQuerier{}, nil, nil).Handler()
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/query", `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/query", `{}`).Code)

	invalid := &stubQuerier{err: domain.Invalid("agent", "question is empty")}
	rec := do(t, New(invalid, nil, nil).Handler(), http.MethodPost, "/query", `{"question":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuery_InternalError(t *testing.T) {
	q := &stubQuerier{err: errors.New("boom")}
	rec := do(t, New(q, nil, nil).Handler(), http.MethodPost, "/query", `{"question":"q"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCollector("sedar_analyst", reg, nil)
	m.RecordQuery("answered", 2, 0)

	rec := do(t, New(&stubQuerier{}, reg, nil).Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `sedar_analyst_queries_total{outcome="answered"} 1`)

	rec = do(t, New(&stubQuerier{}, nil, nil).Handler(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
