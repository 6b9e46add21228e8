// Package vectorindex holds the precomputed embedding matrix of a taxonomy
// and ranks its rows against a query vector by cosine similarity.
//
// Row i of an Index belongs to entry i of the taxonomy it was built from.
// An Index is read-only once constructed.
package vectorindex

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

const (
	// Epsilon is the smallest norm used when normalizing vectors.
	// Vectors with a smaller norm are divided by Epsilon instead.
	Epsilon = 1e-12

	// Sentinel replaces NaN and Inf similarities so they always rank last.
	Sentinel = -1e9
)

var (
	// ErrDimensionMismatch indicates vectors of different lengths.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrInvalidMatrix indicates a matrix that is not rectangular.
	ErrInvalidMatrix = errors.New("invalid matrix")
)

// Hit is one ranked row.
type Hit struct {
	// Row is the position in the taxonomy's load order.
	Row int
	// Similarity is the cosine similarity in [-1, 1], or Sentinel.
	Similarity float64
}

// Confidence maps the similarity to a percentage rounded to one decimal.
// Poor matches keep their negative value.
func (h Hit) Confidence() float64 {
	return math.Round(h.Similarity*1000) / 10
}

// Index is a dense row-major matrix of embedding vectors.
type Index struct {
	rows  int
	dim   int
	data  []float32
	norms []float64
}

// New builds an index from rows. All rows must share one dimension.
func New(rows [][]float32) (*Index, error) {
	if len(rows) == 0 {
		return &Index{}, nil
	}
	dim := len(rows[0])
	data := make([]float32, 0, len(rows)*dim)
	for i, r := range rows {
		if len(r) != dim {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrInvalidMatrix, i, len(r), dim)
		}
		data = append(data, r...)
	}
	return fromFlat(len(rows), dim, data)
}

func fromFlat(rows, dim int, data []float32) (*Index, error) {
	if rows*dim != len(data) {
		return nil, fmt.Errorf("%w: %d values for shape (%d, %d)", ErrInvalidMatrix, len(data), rows, dim)
	}
	idx := &Index{rows: rows, dim: dim, data: data, norms: make([]float64, rows)}
	for i := 0; i < rows; i++ {
		idx.norms[i] = clampNorm(norm(idx.row(i)))
	}
	return idx, nil
}

// Len returns the number of rows.
func (x *Index) Len() int { return x.rows }

// Dim returns the vector dimension, 0 for an empty index.
func (x *Index) Dim() int { return x.dim }

// Row returns a copy of row i.
func (x *Index) Row(i int) []float32 {
	out := make([]float32, x.dim)
	copy(out, x.row(i))
	return out
}

func (x *Index) row(i int) []float32 {
	return x.data[i*x.dim : (i+1)*x.dim]
}

// Similarities returns the cosine similarity of query against every row.
func (x *Index) Similarities(query []float32) ([]float64, error) {
	if x.rows == 0 {
		return nil, nil
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: query has %d values, index has %d", ErrDimensionMismatch, len(query), x.dim)
	}

	qn := clampNorm(norm(query))
	sims := make([]float64, x.rows)
	for i := range sims {
		r := x.row(i)
		var dot float64
		for j, v := range r {
			dot += float64(v) * float64(query[j])
		}
		s := dot / (x.norms[i] * qn)
		if math.IsNaN(s) || math.IsInf(s, 0) {
			s = Sentinel
		}
		sims[i] = s
	}
	return sims, nil
}

// Search returns the top min(k, Len()) rows by descending similarity.
// Equal similarities keep load order.
func (x *Index) Search(query []float32, k int) ([]Hit, error) {
	sims, err := x.Similarities(query)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, len(sims))
	for i, s := range sims {
		hits[i] = Hit{Row: i, Similarity: s}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Similarity > hits[b].Similarity
	})

	if k < len(hits) {
		if k < 0 {
			k = 0
		}
		hits = hits[:k]
	}
	return hits, nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

func clampNorm(n float64) float64 {
	if n < Epsilon {
		return Epsilon
	}
	return n
}
