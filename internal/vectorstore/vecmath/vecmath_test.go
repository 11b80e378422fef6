package vecmath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"sedar-analyst/internal/domain"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float64{1, 2}, []float64{2, 4}), 1e-12)
	assert.InDelta(t, 0.0, Cosine([]float64{1, 0}, []float64{0, 1}), 1e-12)
	assert.InDelta(t, -1.0, Cosine([]float64{1, 0}, []float64{-3, 0}), 1e-12)
	assert.Equal(t, 0.0, Cosine([]float64{0, 0}, []float64{1, 1}))
}

func TestTopK_StableOnTies(t *testing.T) {
	assert.Equal(t, []int{1, 0, 2}, TopK([]float64{0.5, 0.9, 0.5, 0.1}, 3))
	assert.Nil(t, TopK([]float64{1}, 0))
	assert.Equal(t, []int{0}, TopK([]float64{1}, 10))
}

func TestProperty_TopKOrdering(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		scores := rapid.SliceOf(rapid.Float64Range(-1, 1)).Draw(rt, "scores")
		k := rapid.IntRange(-2, 20).Draw(rt, "k")
		idxs := TopK(scores, k)

		assert.LessOrEqual(rt, len(idxs), max(k, 0))
		assert.LessOrEqual(rt, len(idxs), len(scores))
		for i := 1; i < len(idxs); i++ {
			prev, cur := scores[idxs[i-1]], scores[idxs[i]]
			assert.GreaterOrEqual(rt, prev, cur)
			if prev == cur {
				assert.Less(rt, idxs[i-1], idxs[i])
			}
		}
	})
}

func TestCheckReuse(t *testing.T) {
	info := domain.CollectionInfo{Name: "sedar_filings", Model: "m", Dimension: 3}
	assert.NoError(t, CheckReuse(info, "m", 3))
	assert.ErrorIs(t, CheckReuse(info, "m", 4), domain.ErrInvalidInput)
	assert.ErrorIs(t, CheckReuse(info, "other", 3), domain.ErrInvalidInput)
}

func TestCheckBatch(t *testing.T) {
	chunks := []domain.Chunk{{Text: "a"}, {Text: "b"}}
	assert.NoError(t, CheckBatch(chunks, [][]float64{{1, 2}, {3, 4}}, 2))
	assert.ErrorIs(t, CheckBatch(chunks, [][]float64{{1, 2}}, 2), domain.ErrInvalidInput)
	assert.ErrorIs(t, CheckBatch(chunks, [][]float64{{1, 2}, {3}}, 2), domain.ErrInvalidInput)
}

func TestEncodeDecode(t *testing.T) {
	v := []float64{0, -1.5, 3.25e-7}
	got, err := Decode(Encode(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = Decode([]byte{1, 2, 3})
	assert.Error(t, err)
}
