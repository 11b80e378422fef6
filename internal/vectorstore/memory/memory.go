package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"sedar-analyst/internal/domain"
	"sedar-analyst/internal/vectorstore/vecmath"
)

type entry struct {
	id     string
	chunk  domain.Chunk
	vector []float64
}

// Storage is an in-memory vector collection using brute-force cosine similarity.
// It is lost when the process exits.
type Storage struct {
	mu      sync.RWMutex
	name    string
	info    *domain.CollectionInfo
	entries []entry
}

// NewStorage returns a store for the named collection. The collection does
// not exist until EnsureCollection is called.
func NewStorage(collection string) *Storage { return &Storage{name: collection} }

func (s *Storage) EnsureCollection(_ context.Context, model string, dimension int) (domain.CollectionInfo, error) {
	if dimension <= 0 {
		return domain.CollectionInfo{}, domain.Invalid("ensure collection", "invalid dimension %d", dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.info != nil {
		if err := vecmath.CheckReuse(*s.info, model, dimension); err != nil {
			return domain.CollectionInfo{}, err
		}
		return s.infoLocked(), nil
	}
	s.info = &domain.CollectionInfo{Name: s.name, Model: model, Dimension: dimension}
	return s.infoLocked(), nil
}

func (s *Storage) Insert(_ context.Context, chunks []domain.Chunk, vectors [][]float64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.info == nil {
		return nil, domain.E("insert", domain.ErrCollectionNotFound, nil)
	}
	if err := vecmath.CheckBatch(chunks, vectors, s.info.Dimension); err != nil {
		return nil, err
	}
	ids := make([]string, len(chunks))
	for i := range chunks {
		ids[i] = uuid.NewString()
		vec := make([]float64, len(vectors[i]))
		copy(vec, vectors[i])
		s.entries = append(s.entries, entry{id: ids[i], chunk: chunks[i], vector: vec})
	}
	return ids, nil
}

func (s *Storage) Search(_ context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.info == nil {
		return nil, domain.E("search", domain.ErrCollectionNotFound, nil)
	}
	if topK <= 0 {
		return []domain.SearchResult{}, nil
	}
	if err := vecmath.CheckQuery(vector, s.info.Dimension); err != nil {
		return nil, err
	}
	scores := make([]float64, len(s.entries))
	for i := range s.entries {
		scores[i] = vecmath.Cosine(s.entries[i].vector, vector)
	}
	idxs := vecmath.TopK(scores, topK)
	results := make([]domain.SearchResult, 0, len(idxs))
	for _, j := range idxs {
		e := s.entries[j]
		results = append(results, domain.SearchResult{ID: e.id, Chunk: e.chunk, Score: scores[j]})
	}
	return results, nil
}

func (s *Storage) Info(_ context.Context) (domain.CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.info == nil {
		return domain.CollectionInfo{}, domain.E("info", domain.ErrCollectionNotFound, nil)
	}
	return s.infoLocked(), nil
}

// Drop deletes the collection and all of its entries.
func (s *Storage) Drop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.info == nil {
		return domain.E("drop", domain.ErrCollectionNotFound, nil)
	}
	s.info = nil
	s.entries = nil
	return nil
}

func (s *Storage) infoLocked() domain.CollectionInfo {
	info := *s.info
	info.Count = len(s.entries)
	return info
}
