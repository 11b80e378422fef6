// Package vecmath holds the similarity and validation rules shared by the vector store backends.
package vecmath

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"sedar-analyst/internal/domain"
)

// Cosine returns the cosine similarity of a and b, or 0 when either has zero norm.
func Cosine(a, b []float64) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// TopK returns the indexes of the k highest scores in descending order.
// Equal scores keep their original (insertion) order.
func TopK(scores []float64, k int) []int {
	if k <= 0 {
		return nil
	}
	idxs := make([]int, len(scores))
	for i := range idxs {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(i, j int) bool { return scores[idxs[i]] > scores[idxs[j]] })
	if k < len(idxs) {
		idxs = idxs[:k]
	}
	return idxs
}

// CheckReuse rejects reusing a collection with a different model or dimension.
func CheckReuse(info domain.CollectionInfo, model string, dimension int) error {
	if info.Dimension != dimension {
		return domain.Invalid("ensure collection", "collection %q has dimension %d, embedder produces %d", info.Name, info.Dimension, dimension)
	}
	if info.Model != model {
		return domain.Invalid("ensure collection", "collection %q was built with model %q, not %q", info.Name, info.Model, model)
	}
	return nil
}

// CheckBatch validates an insert batch against the collection dimension.
func CheckBatch(chunks []domain.Chunk, vectors [][]float64, dimension int) error {
	if len(chunks) != len(vectors) {
		return domain.Invalid("insert", "%d chunks but %d vectors", len(chunks), len(vectors))
	}
	for i, v := range vectors {
		if len(v) != dimension {
			return domain.Invalid("insert", "vector %d has dimension %d, want %d", i, len(v), dimension)
		}
	}
	return nil
}

// CheckQuery validates a query vector against the collection dimension.
func CheckQuery(vector []float64, dimension int) error {
	if len(vector) != dimension {
		return domain.Invalid("search", "query vector has dimension %d, want %d", len(vector), dimension)
	}
	return nil
}

// Encode packs a vector as little-endian float64s.
func Encode(v []float64) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

// Decode is the inverse of Encode.
func Decode(data []byte) ([]float64, error) {
	if len(data)%8 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 8", len(data))
	}
	v := make([]float64, len(data)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return v, nil
}
