package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sedar-analyst/internal/domain"
	"sedar-analyst/internal/vectorstore/vecmath"
)

// fakeQdrant implements the handful of endpoints the client uses for one collection.
type fakeQdrant struct {
	mu     sync.Mutex
	exists bool
	size   int
	points []point
	apiKey string
	// reverse returns search hits in reverse order, as Qdrant may for tied scores.
	reverse bool
	limits  []int
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.apiKey != "" && r.Header.Get("api-key") != f.apiKey {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	reply := func(v any) { _ = json.NewEncoder(w).Encode(map[string]any{"result": v}) }

	switch r.Method + " " + r.URL.Path {
	case "GET /collections/c":
		if !f.exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		reply(map[string]any{
			"points_count": len(f.points),
			"config":       map[string]any{"params": map[string]any{"vectors": map[string]any{"size": f.size}}},
		})
	case "PUT /collections/c":
		var body struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.exists, f.size = true, body.Vectors.Size
		reply(true)
	case "DELETE /collections/c":
		existed := f.exists
		f.exists, f.points = false, nil
		reply(existed)
	case "PUT /collections/c/points":
		if !f.exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body struct {
			Points []point `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.points = append(f.points, body.Points...)
		reply(map[string]any{"status": "completed"})
	case "POST /collections/c/points/scroll":
		if !f.exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var out []point
		if len(f.points) > 0 {
			out = append(out, point{ID: f.points[0].ID, Payload: f.points[0].Payload})
		}
		reply(map[string]any{"points": out})
	case "POST /collections/c/points/search":
		if !f.exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body struct {
			Vector []float64 `json:"vector"`
			Limit  int       `json:"limit"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.limits = append(f.limits, body.Limit)
		scores := make([]float64, len(f.points))
		for i, p := range f.points {
			scores[i] = vecmath.Cosine(p.Vector, body.Vector)
		}
		var out []map[string]any
		for _, j := range vecmath.TopK(scores, body.Limit) {
			out = append(out, map[string]any{"id": f.points[j].ID, "score": scores[j], "payload": f.points[j].Payload})
		}
		if f.reverse {
			for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
				out[i], out[j] = out[j], out[i]
			}
		}
		reply(out)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func newTestStorage(t *testing.T, fake *fakeQdrant) *Storage {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return NewStorage(Config{URL: srv.URL, APIKey: fake.apiKey, Collection: "c"})
}

func TestStorage_NotFound(t *testing.T) {
	s := newTestStorage(t, &fakeQdrant{})
	ctx := context.Background()

	_, err := s.Search(ctx, []float64{1, 0}, 5)
	assert.ErrorIs(t, err, domain.ErrCollectionNotFound)
	_, err = s.Info(ctx)
	assert.ErrorIs(t, err, domain.ErrCollectionNotFound)
	assert.ErrorIs(t, s.Drop(ctx), domain.ErrCollectionNotFound)
}

func TestStorage_EnsureInsertSearch(t *testing.T) {
	fake := &fakeQdrant{apiKey: "k"}
	s := newTestStorage(t, fake)
	ctx := context.Background()

	info, err := s.EnsureCollection(ctx, "bge", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, info.Dimension)

	ids, err := s.Insert(ctx, []domain.Chunk{
		{DocumentID: "d", ChunkID: "d:0", Index: 0, SourceRef: "td.txt", Text: "revenue"},
		{DocumentID: "d", ChunkID: "d:1", Index: 1, SourceRef: "td.txt", Text: "debt"},
	}, [][]float64{{1, 0}, {0, 1}})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	res, err := s.Search(ctx, []float64{1, 0.2}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, ids[0], res[0].ID)
	assert.Equal(t, "revenue", res[0].Chunk.Text)
	assert.Equal(t, "td.txt", res[0].Chunk.SourceRef)

	info, err = s.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.CollectionInfo{Name: "c", Model: "bge", Dimension: 2, Count: 2}, info)

	_, err = s.EnsureCollection(ctx, "other-model", 2)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = s.EnsureCollection(ctx, "bge", 3)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestStorage_TiesKeepInsertionOrder(t *testing.T) {
	fake := &fakeQdrant{reverse: true}
	s := newTestStorage(t, fake)
	ctx := context.Background()

	_, err := s.EnsureCollection(ctx, "bge", 2)
	require.NoError(t, err)
	first, err := s.Insert(ctx, []domain.Chunk{{ChunkID: "a:0", Text: "a"}, {ChunkID: "a:1", Text: "b"}}, [][]float64{{1, 0}, {1, 0}})
	require.NoError(t, err)
	second, err := s.Insert(ctx, []domain.Chunk{{ChunkID: "b:0", Text: "c"}, {ChunkID: "b:1", Text: "d"}}, [][]float64{{1, 0}, {0, 1}})
	require.NoError(t, err)

	res, err := s.Search(ctx, []float64{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, []string{first[0], first[1]}, []string{res[0].ID, res[1].ID})

	res, err = s.Search(ctx, []float64{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, second[0], res[2].ID)
	assert.Equal(t, []int{4, 6}, fake.limits)
}

func TestStorage_TopKZeroStillChecksExistence(t *testing.T) {
	s := newTestStorage(t, &fakeQdrant{exists: true, size: 2})
	res, err := s.Search(context.Background(), []float64{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestStorage_DropThenNotFound(t *testing.T) {
	s := newTestStorage(t, &fakeQdrant{exists: true, size: 2})
	ctx := context.Background()
	require.NoError(t, s.Drop(ctx))
	_, err := s.Info(ctx)
	assert.ErrorIs(t, err, domain.ErrCollectionNotFound)
}

func TestStorage_ServerErrorIsExternal(t *testing.T) {
	s := newTestStorage(t, &fakeQdrant{apiKey: "right"})
	s.apiKey = "wrong"
	_, err := s.Info(context.Background())
	assert.ErrorIs(t, err, domain.ErrExternalService)
}
