package chunker

import (
	"strconv"
	"unicode"

	"sedar-analyst/internal/domain"
	"sedar-analyst/internal/tokenizer"
)

// Default window used by ingestion.
const (
	DefaultChunkSize = 1024
	DefaultOverlap   = 20
)

// Span is a half-open rune range [Start, End) of a document.
type Span struct {
	Start int
	End   int
}

// SentenceChunker splits text into overlapping windows of at most chunkSize
// runes, cutting at paragraph, line, sentence or word boundaries when one
// exists in the second half of the window.
type SentenceChunker struct {
	chunkSize int
	overlap   int
	tokenizer tokenizer.Tokenizer
}

// NewSentenceChunker validates the window parameters. tok may be nil.
func NewSentenceChunker(chunkSize, overlap int, tok tokenizer.Tokenizer) (*SentenceChunker, error) {
	if err := validate(chunkSize, overlap); err != nil {
		return nil, err
	}
	if tok == nil {
		tok = tokenizer.Estimator{}
	}
	return &SentenceChunker{chunkSize: chunkSize, overlap: overlap, tokenizer: tok}, nil
}

// Chunk splits a document. Chunk i+1 starts with the last overlap runes of chunk i.
func (c *SentenceChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	runes := []rune(document.Content)
	spans, err := splitRunes(runes, c.chunkSize, c.overlap)
	if err != nil {
		return nil, err
	}
	chunks := make([]domain.Chunk, 0, len(spans))
	for idx, sp := range spans {
		text := string(runes[sp.Start:sp.End])
		chunks = append(chunks, domain.Chunk{
			DocumentID: document.ID,
			ChunkID:    document.ID + ":" + strconv.Itoa(idx),
			SourceRef:  document.Path,
			Text:       text,
			Index:      idx,
			Start:      sp.Start,
			End:        sp.End,
			TokenCount: c.tokenizer.CountTokens(text),
		})
	}
	return chunks, nil
}

// Split returns the rune spans of text for the given window parameters.
func Split(text string, chunkSize, overlap int) ([]Span, error) {
	return splitRunes([]rune(text), chunkSize, overlap)
}

func validate(chunkSize, overlap int) error {
	if chunkSize <= 0 {
		return domain.Invalid("chunker", "chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 {
		return domain.Invalid("chunker", "overlap must not be negative, got %d", overlap)
	}
	if overlap >= chunkSize {
		return domain.Invalid("chunker", "overlap %d must be smaller than chunk size %d", overlap, chunkSize)
	}
	return nil
}

func splitRunes(r []rune, chunkSize, overlap int) ([]Span, error) {
	if err := validate(chunkSize, overlap); err != nil {
		return nil, err
	}
	n := len(r)
	if n == 0 {
		return nil, nil
	}
	var spans []Span
	start := 0
	for {
		if n-start <= chunkSize {
			spans = append(spans, Span{Start: start, End: n})
			return spans, nil
		}
		limit := start + chunkSize
		// end > start+overlap guarantees the next window moves forward
		minEnd := start + max(overlap+1, chunkSize/2)
		end := boundary(r, minEnd, limit)
		spans = append(spans, Span{Start: start, End: end})
		start = end - overlap
	}
}

// boundary picks the cut position in [lo, hi], preferring the strongest separator
// closest to hi. A position p cuts after r[p-1].
func boundary(r []rune, lo, hi int) int {
	for _, accept := range separators {
		for p := hi; p >= lo; p-- {
			if accept(r, p) {
				return p
			}
		}
	}
	return hi
}

var separators = []func(r []rune, p int) bool{
	// paragraph
	func(r []rune, p int) bool { return p >= 2 && r[p-1] == '\n' && r[p-2] == '\n' },
	// line
	func(r []rune, p int) bool { return p >= 1 && r[p-1] == '\n' },
	// sentence end followed by whitespace
	func(r []rune, p int) bool {
		if p < 2 || !unicode.IsSpace(r[p-1]) {
			return false
		}
		switch r[p-2] {
		case '.', '!', '?', '。', '！', '？':
			return true
		}
		return false
	},
	// word
	func(r []rune, p int) bool { return p >= 1 && unicode.IsSpace(r[p-1]) },
}
