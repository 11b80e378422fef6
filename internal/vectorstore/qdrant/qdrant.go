package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"sedar-analyst/internal/domain"
	"sedar-analyst/internal/vectorstore/vecmath"
)

// Storage is a minimal REST client to one Qdrant collection using cosine distance.
// The embedding model is recorded in every point's payload.
type Storage struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client

	mu    sync.Mutex
	model string // set by EnsureCollection, stamped on points
}

// tieOverfetch multiplies topK when querying so ties at the cut-off can be re-ranked.
const tieOverfetch = 2

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

type collectionResponse struct {
	Result struct {
		PointsCount int `json:"points_count"`
		Config      struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float64      `json:"vector,omitempty"`
	Payload map[string]any `json:"payload"`
}

func (s *Storage) EnsureCollection(ctx context.Context, model string, dimension int) (domain.CollectionInfo, error) {
	if dimension <= 0 {
		return domain.CollectionInfo{}, domain.Invalid("ensure collection", "invalid dimension %d", dimension)
	}
	s.mu.Lock()
	s.model = model
	s.mu.Unlock()

	info, err := s.Info(ctx)
	if err == nil {
		if info.Model == "" {
			// nothing inserted yet, so the model is not recorded
			info.Model = model
		}
		if err := vecmath.CheckReuse(info, model, dimension); err != nil {
			return domain.CollectionInfo{}, err
		}
		return info, nil
	}
	if !isNotFound(err) {
		return domain.CollectionInfo{}, err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if err := s.do(ctx, "ensure collection", http.MethodPut, s.path(""), body, nil); err != nil {
		return domain.CollectionInfo{}, err
	}
	return domain.CollectionInfo{Name: s.collection, Model: model, Dimension: dimension}, nil
}

func (s *Storage) Insert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) ([]string, error) {
	info, err := s.Info(ctx)
	if err != nil {
		return nil, err
	}
	if err := vecmath.CheckBatch(chunks, vectors, info.Dimension); err != nil {
		return nil, err
	}
	model := info.Model
	if model == "" {
		s.mu.Lock()
		model = s.model
		s.mu.Unlock()
	}
	ids := make([]string, len(chunks))
	points := make([]point, len(chunks))
	for i := range chunks {
		ids[i] = uuid.NewString()
		points[i] = point{
			ID:     ids[i],
			Vector: vectors[i],
			Payload: map[string]any{
				"document_id": chunks[i].DocumentID,
				"chunk_id":    chunks[i].ChunkID,
				"index":       chunks[i].Index,
				"source_ref":  chunks[i].SourceRef,
				"text":        chunks[i].Text,
				"model":       model,
				"seq":         info.Count + i,
			},
		}
	}
	body := map[string]any{"points": points}
	if err := s.do(ctx, "insert", http.MethodPut, s.path("/points?wait=true"), body, nil); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Storage) modelFromPoints(ctx context.Context) (string, error) {
	var resp struct {
		Result struct {
			Points []point `json:"points"`
		} `json:"result"`
	}
	body := map[string]any{"limit": 1, "with_payload": true, "with_vector": false}
	if err := s.do(ctx, "info", http.MethodPost, s.path("/points/scroll"), body, &resp); err != nil {
		return "", err
	}
	if len(resp.Result.Points) == 0 {
		return "", nil
	}
	m, _ := resp.Result.Points[0].Payload["model"].(string)
	return m, nil
}

func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	info, err := s.Info(ctx)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []domain.SearchResult{}, nil
	}
	if err := vecmath.CheckQuery(vector, info.Dimension); err != nil {
		return nil, err
	}
	// Qdrant orders tied scores arbitrarily. Fetch extra candidates and
	// re-rank by score, then insertion sequence.
	req := map[string]any{
		"vector":       vector,
		"limit":        topK * tieOverfetch,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, "search", http.MethodPost, s.path("/points/search"), req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	seqs := make(map[string]int, len(resp.Result))
	for _, r := range resp.Result {
		seqs[r.ID] = math.MaxInt
		if v, ok := r.Payload["seq"].(float64); ok {
			seqs[r.ID] = int(v)
		}
		chunk := domain.Chunk{}
		if v, ok := r.Payload["document_id"].(string); ok {
			chunk.DocumentID = v
		}
		if v, ok := r.Payload["chunk_id"].(string); ok {
			chunk.ChunkID = v
		}
		if v, ok := r.Payload["index"].(float64); ok {
			chunk.Index = int(v)
		}
		if v, ok := r.Payload["source_ref"].(string); ok {
			chunk.SourceRef = v
		}
		if v, ok := r.Payload["text"].(string); ok {
			chunk.Text = v
		}
		results = append(results, domain.SearchResult{ID: r.ID, Chunk: chunk, Score: r.Score})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return seqs[results[i].ID] < seqs[results[j].ID]
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *Storage) Info(ctx context.Context) (domain.CollectionInfo, error) {
	var resp collectionResponse
	if err := s.do(ctx, "info", http.MethodGet, s.path(""), nil, &resp); err != nil {
		return domain.CollectionInfo{}, err
	}
	model, err := s.modelFromPoints(ctx)
	if err != nil {
		return domain.CollectionInfo{}, err
	}
	return domain.CollectionInfo{
		Name:      s.collection,
		Model:     model,
		Dimension: resp.Result.Config.Params.Vectors.Size,
		Count:     resp.Result.PointsCount,
	}, nil
}

// Drop deletes the collection.
func (s *Storage) Drop(ctx context.Context) error {
	var resp struct {
		Result bool `json:"result"`
	}
	if err := s.do(ctx, "drop", http.MethodDelete, s.path(""), nil, &resp); err != nil {
		return err
	}
	if !resp.Result {
		return domain.E("drop", domain.ErrCollectionNotFound, nil)
	}
	return nil
}

func (s *Storage) path(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

func (s *Storage) do(ctx context.Context, op, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return domain.External(op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return domain.E(op, domain.ErrCollectionNotFound, nil)
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.External(op, fmt.Errorf("qdrant %s %s failed: %s: %s", method, url, resp.Status, bytes.TrimSpace(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return domain.External(op, fmt.Errorf("decode qdrant response: %w", err))
		}
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrCollectionNotFound)
}
