// Package hashing provides a local embedder that needs no model and no corpus
// preparation. Tokens are hashed into a fixed number of signed buckets.
package hashing

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// DefaultDimension is used when a non-positive dimension is requested.
const DefaultDimension = 512

// Embedder implements feature hashing over unigrams and bigrams with
// log-scaled term frequency and L2 normalisation.
type Embedder struct {
	dimension    int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewEmbedder creates a hashing embedder producing vectors of the given length.
func NewEmbedder(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:['’.,][\p{L}\p{N}]+)*`),
		stopwords:    defaultStopwords(),
	}
}

// Name includes the dimension so collections built with a different size are rejected.
func (e *Embedder) Name() string { return "hashing-" + strconv.Itoa(e.dimension) }

// Dimension returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed computes the hashed embedding for the given text. Text without any
// indexable token yields the zero vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float64, e.dimension)
	tokens := e.tokenize(text)
	if len(tokens) == 0 {
		return vec, nil
	}
	tf := make(map[string]float64, len(tokens)*2)
	for i, tok := range tokens {
		tf[tok]++
		if i > 0 {
			// bigrams carry half the weight of a term
			tf[tokens[i-1]+" "+tok] += 0.5
		}
	}
	for feature, count := range tf {
		idx, sign := e.bucket(feature)
		vec[idx] += sign * (1 + math.Log(count))
	}
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

func (e *Embedder) bucket(feature string) (int, float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	sign := 1.0
	if sum>>63 == 1 {
		sign = -1.0
	}
	return int(sum % uint64(e.dimension)), sign
}

func (e *Embedder) tokenize(text string) []string {
	lower := strings.ToLower(text)
	raw := e.tokenPattern.FindAllString(lower, -1)
	if len(raw) == 0 {
		return nil
	}
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now", "what", "which", "who", "how", "does", "do", "did",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
