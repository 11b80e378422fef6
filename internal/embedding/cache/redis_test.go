package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls int
	err   error
}

func (c *countingEmbedder) Name() string { return "fake-model" }

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []float64{float64(len(text)), 0.25}, nil
}

func setup(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestEmbedder_CachesVectors(t *testing.T) {
	mr, client := setup(t)
	inner := &countingEmbedder{}
	e := New(inner, client, time.Hour, nil)
	ctx := context.Background()

	v1, err := e.Embed(ctx, "revenue")
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "revenue")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, inner.calls)
	assert.True(t, mr.Exists(e.Key("revenue")))
	assert.Equal(t, "fake-model", e.Name())
}

func TestEmbedder_KeyIncludesModel(t *testing.T) {
	_, client := setup(t)
	e := New(&countingEmbedder{}, client, 0, nil)
	assert.Contains(t, e.Key("x"), "emb:fake-model:")
	assert.NotEqual(t, e.Key("x"), e.Key("y"))
}

func TestEmbedder_RedisDownFallsThrough(t *testing.T) {
	mr, client := setup(t)
	mr.Close()
	inner := &countingEmbedder{}
	e := New(inner, client, 0, nil)

	vec, err := e.Embed(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 0.25}, vec)
	assert.Equal(t, 1, inner.calls)
}

func TestEmbedder_InnerErrorNotCached(t *testing.T) {
	mr, client := setup(t)
	inner := &countingEmbedder{err: errors.New("boom")}
	e := New(inner, client, 0, nil)

	_, err := e.Embed(context.Background(), "abc")
	require.Error(t, err)
	assert.False(t, mr.Exists(e.Key("abc")))
}
