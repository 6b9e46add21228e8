package vectorindex

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_TwoCategoryScenario(t *testing.T) {
	idx, err := New([][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)

	hits, err := idx.Search([]float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 0, hits[0].Row)
	assert.Equal(t, 100.0, hits[0].Confidence())

	all, err := idx.Search([]float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[1].Row)
	assert.Equal(t, 0.0, all[1].Confidence())
}

func TestSearch_KAtLeastNReturnsAllRanked(t *testing.T) {
	idx, err := New([][]float32{
		{0.1, 0.9, 0},
		{1, 0, 0},
		{-1, 0, 0},
		{0.7, 0.7, 0},
		{0, 0, 1},
	})
	require.NoError(t, err)

	hits, err := idx.Search([]float32{1, 0.2, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 5)

	seen := map[int]bool{}
	for i, h := range hits {
		seen[h.Row] = true
		if i > 0 {
			assert.GreaterOrEqual(t, hits[i-1].Confidence(), h.Confidence())
		}
	}
	assert.Len(t, seen, 5)
	assert.Equal(t, 2, hits[4].Row, "opposite vector ranks last")
	assert.Less(t, hits[4].Confidence(), 0.0, "negative confidence is preserved")
}

func TestSearch_ScaleInvariant(t *testing.T) {
	base := [][]float32{{0.3, 0.4}, {0.9, 0.1}, {0.2, 0.8}}
	scaled := [][]float32{{0.3, 0.4}, {90, 10}, {0.002, 0.008}}
	query := []float32{0.6, 0.5}

	a, err := New(base)
	require.NoError(t, err)
	b, err := New(scaled)
	require.NoError(t, err)

	ha, err := a.Search(query, 3)
	require.NoError(t, err)
	hb, err := b.Search(query, 3)
	require.NoError(t, err)

	for i := range ha {
		assert.Equal(t, ha[i].Row, hb[i].Row)
		assert.InDelta(t, ha[i].Similarity, hb[i].Similarity, 1e-6)
	}
}

func TestSearch_ZeroQuery(t *testing.T) {
	idx, err := New([][]float32{{1, 0}, {0, 1}, {0, 0}})
	require.NoError(t, err)

	hits, err := idx.Search([]float32{0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	for i, h := range hits {
		assert.Equal(t, i, h.Row, "ties keep load order")
		assert.Equal(t, 0.0, h.Similarity)
	}
}

func TestSearch_NaNRanksLast(t *testing.T) {
	nan := float32(math.NaN())
	idx, err := New([][]float32{{nan, 1}, {0.5, 0.5}, {1, 0}})
	require.NoError(t, err)

	hits, err := idx.Search([]float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, 0, hits[2].Row)
	assert.Equal(t, Sentinel, hits[2].Similarity)
	assert.Equal(t, 2, hits[0].Row)
}

func TestSearch_TiesAreStable(t *testing.T) {
	idx, err := New([][]float32{{0, 1}, {1, 0}, {1, 0}, {1, 0}})
	require.NoError(t, err)

	hits, err := idx.Search([]float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, []int{hits[0].Row, hits[1].Row, hits[2].Row})
}

func TestSearch_Errors(t *testing.T) {
	_, err := New([][]float32{{1, 0}, {1}})
	assert.ErrorIs(t, err, ErrInvalidMatrix)

	idx, err := New([][]float32{{1, 0}})
	require.NoError(t, err)
	_, err = idx.Search([]float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSearch_EmptyIndex(t *testing.T) {
	idx, err := New(nil)
	require.NoError(t, err)

	hits, err := idx.Search([]float32{1, 0}, 20)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Equal(t, 0, idx.Len())
}

func TestHit_Confidence(t *testing.T) {
	tests := []struct {
		sim  float64
		want float64
	}{
		{1, 100},
		{0.87654, 87.7},
		{0.12341, 12.3},
		{-0.25, -25},
		{0, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Hit{Similarity: tt.sim}.Confidence(), 1e-9)
	}
}
