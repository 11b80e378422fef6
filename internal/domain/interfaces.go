package domain

import "context"

// Document represents a single text file loaded into the system.
type Document struct {
	ID      string
	Path    string
	Content string
}

// Chunk is a bounded, overlapping segment of a document prepared for embedding.
// Start and End are rune offsets into the source document.
type Chunk struct {
	DocumentID string
	ChunkID    string
	SourceRef  string
	Text       string
	Index      int
	Start      int
	End        int
	TokenCount int
}

// SearchResult represents a matching chunk with its cosine similarity.
type SearchResult struct {
	ID    string
	Chunk Chunk
	Score float64
}

// CollectionInfo describes a vector collection. Model and Dimension are fixed
// by the first ingestion into the collection.
type CollectionInfo struct {
	Name      string
	Model     string
	Dimension int
	Count     int
}

// Embedder converts free text into a fixed-length numeric vector.
// Name identifies the model; the same name must be used at ingestion and query time.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// VectorIndex stores (vector, chunk) entries in a named collection and
// supports cosine nearest-neighbour search.
type VectorIndex interface {
	// EnsureCollection creates the collection or reuses an existing one.
	EnsureCollection(ctx context.Context, model string, dimension int) (CollectionInfo, error)
	Insert(ctx context.Context, chunks []Chunk, vectors [][]float64) ([]string, error)
	Search(ctx context.Context, vector []float64, topK int) ([]SearchResult, error)
	Info(ctx context.Context) (CollectionInfo, error)
	Drop(ctx context.Context) error
}

// Completer is the language-model capability: given a prompt, produce a completion.
type Completer interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// MarketData looks up the latest close price for a ticker. found is false
// when the provider has no data for the ticker.
type MarketData interface {
	LatestClose(ctx context.Context, ticker string) (price float64, found bool, err error)
}

// Summarizer produces a brief extractive digest of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
