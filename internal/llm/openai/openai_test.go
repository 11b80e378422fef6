package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sedar-analyst/internal/domain"
)

func TestClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "meta-llama/Meta-Llama-3.1-8B-Instruct", req.Model)
		assert.Equal(t, 0.0, req.Temperature)
		assert.Equal(t, []message{{Role: "user", Content: "hello"}}, req.Messages)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Thought: hi"}}],"usage":{"total_tokens":7}}`))
	}))
	defer srv.Close()

	t.Setenv("TEST_LLM_KEY", "key")
	c, err := NewClient(Config{BaseURL: srv.URL + "/v1/", APIKeyEnv: "TEST_LLM_KEY", Model: "meta-llama/Meta-Llama-3.1-8B-Instruct"}, nil)
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "Thought: hi", out)
}

func TestClient_CompleteErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`upstream`))
	}))
	defer srv.Close()

	t.Setenv("TEST_LLM_KEY", "key")
	c, err := NewClient(Config{BaseURL: srv.URL, APIKeyEnv: "TEST_LLM_KEY", Model: "m", MaxRetries: 1}, nil)
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExternalService)
	assert.Contains(t, err.Error(), "502")
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_RetriesRateLimitThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Answer: ok"}}]}`))
	}))
	defer srv.Close()

	t.Setenv("TEST_LLM_KEY", "key")
	c, err := NewClient(Config{BaseURL: srv.URL, APIKeyEnv: "TEST_LLM_KEY", Model: "m"}, nil)
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "Answer: ok", out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	t.Setenv("TEST_LLM_KEY", "key")
	c, err := NewClient(Config{BaseURL: srv.URL, APIKeyEnv: "TEST_LLM_KEY", Model: "m"}, nil)
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrExternalService)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	t.Setenv("TEST_LLM_KEY", "key")
	c, err := NewClient(Config{BaseURL: srv.URL, APIKeyEnv: "TEST_LLM_KEY", Model: "m"}, nil)
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrExternalService)
}

func TestNewClient_Validation(t *testing.T) {
	t.Setenv("TEST_LLM_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "TEST_LLM_KEY", Model: "m"}, nil)
	assert.ErrorIs(t, err, domain.ErrConfig)

	t.Setenv("TEST_LLM_KEY", "k")
	_, err = NewClient(Config{APIKeyEnv: "TEST_LLM_KEY"}, nil)
	assert.ErrorIs(t, err, domain.ErrConfig)
}
