package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/fyrsmithlabs/devaudit/internal/catalog"
	"github.com/fyrsmithlabs/devaudit/internal/report"
	"github.com/fyrsmithlabs/devaudit/internal/taxonomy"
	"github.com/fyrsmithlabs/devaudit/internal/vectorindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticEmbedder struct {
	vec   []float32
	err   error
	calls int
	last  string
}

func (e *staticEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.calls++
	e.last = text
	return e.vec, e.err
}

func source(t *testing.T, name string, entries []taxonomy.Entry, rows [][]float32) catalog.Source {
	t.Helper()
	tax, err := taxonomy.New(name, entries)
	require.NoError(t, err)
	idx, err := vectorindex.New(rows)
	require.NoError(t, err)
	return catalog.Source{Taxonomy: tax, Index: idx}
}

func twoByTwo(t *testing.T) *catalog.Catalog {
	t.Helper()
	cats := source(t, "categories",
		[]taxonomy.Entry{{ID: "C1", Name: "Двойная оплата", DescriptionShort: "оплата дважды"}, {ID: "C2", Name: "Недостача"}},
		[][]float32{{1, 0}, {0, 1}})
	risks := source(t, "risks",
		[]taxonomy.Entry{{ID: "R1", Name: "Финансовый", RiskType: "финансовый", ScenarioShort: "потеря средств"}},
		[][]float32{{0.5, 0.5}})
	c, err := catalog.New(cats, risks)
	require.NoError(t, err)
	return c
}

func TestRetrieve_TwoCategories(t *testing.T) {
	emb := &staticEmbedder{vec: []float32{1, 0}}
	r := New(twoByTwo(t), emb)

	set, err := r.Retrieve(context.Background(), report.UserInput{ProblemText: "x"}, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, emb.calls)

	require.Len(t, set.Categories, 2)
	assert.Equal(t, Candidate{ID: "C1", Name: "Двойная оплата", Confidence: 100.0, DescriptionShort: "оплата дважды"}, set.Categories[0])
	assert.Equal(t, "C2", set.Categories[1].ID)
	assert.Equal(t, 0.0, set.Categories[1].Confidence)

	require.Len(t, set.Risks, 1)
	assert.Equal(t, "финансовый", set.Risks[0].RiskType)
	assert.Equal(t, "потеря средств", set.Risks[0].ScenarioShort)
	assert.Equal(t, 70.7, set.Risks[0].Confidence)
}

func TestRetrieve_TopK(t *testing.T) {
	entries := make([]taxonomy.Entry, 5)
	rows := make([][]float32, 5)
	for i := range entries {
		entries[i] = taxonomy.Entry{ID: fmt.Sprintf("C%d", i), Name: "n"}
		rows[i] = []float32{float32(i), 1}
	}
	cats := source(t, "categories", entries, rows)
	risks := source(t, "risks", nil, nil)
	c, err := catalog.New(cats, risks)
	require.NoError(t, err)

	r := New(c, &staticEmbedder{vec: []float32{1, 0}}, WithDefaultK(3))

	set, err := r.Retrieve(context.Background(), report.UserInput{ProblemText: "x"}, 0)
	require.NoError(t, err)
	require.Len(t, set.Categories, 3)
	assert.Equal(t, []string{"C4", "C3", "C2"}, ids(set.Categories))
	assert.Empty(t, set.Risks)
	assert.NotNil(t, set.Risks)

	set, err = r.Retrieve(context.Background(), report.UserInput{ProblemText: "x"}, 50)
	require.NoError(t, err)
	assert.Len(t, set.Categories, 5)
	for i := 1; i < len(set.Categories); i++ {
		assert.GreaterOrEqual(t, set.Categories[i-1].Confidence, set.Categories[i].Confidence)
	}
}

func TestRetrieve_ZeroQuery(t *testing.T) {
	r := New(twoByTwo(t), &staticEmbedder{vec: []float32{0, 0}})

	set, err := r.Retrieve(context.Background(), report.UserInput{ProblemText: "x"}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"C1", "C2"}, ids(set.Categories))
	for _, c := range set.Categories {
		assert.Equal(t, 0.0, c.Confidence)
	}
}

func TestRetrieve_EmbedderFailure(t *testing.T) {
	cause := errors.New("connection refused")
	r := New(twoByTwo(t), &staticEmbedder{err: cause})

	_, err := r.Retrieve(context.Background(), report.UserInput{ProblemText: "x"}, 2)
	assert.ErrorIs(t, err, ErrRetrieval)
	assert.ErrorIs(t, err, cause)
}

func TestRetrieve_DimensionMismatch(t *testing.T) {
	r := New(twoByTwo(t), &staticEmbedder{vec: []float32{1, 0, 0}})

	_, err := r.Retrieve(context.Background(), report.UserInput{ProblemText: "x"}, 2)
	assert.ErrorIs(t, err, ErrRetrieval)
	assert.ErrorIs(t, err, vectorindex.ErrDimensionMismatch)
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name  string
		input report.UserInput
		want  string
	}{
		{
			name:  "problem only",
			input: report.UserInput{ProblemText: "двойная оплата"},
			want:  "проблема: двойная оплата",
		},
		{
			name: "all fields in fixed order",
			input: report.UserInput{
				Documents:         "акт",
				ProblemText:       "p",
				AmountsTerms:      "100 руб",
				ProcessObject:     "закупки",
				WhatViolated:      "регламент",
				Period:            "Q1",
				ParticipantsRoles: "бухгалтер",
			},
			want: "проблема: p\nпроцесс/объект: закупки\nпериод: Q1\nучастники (роли): бухгалтер\n" +
				"что нарушено: регламент\nсуммы/сроки: 100 руб\nдокументы: акт",
		},
		{
			name:  "blank fields skipped",
			input: report.UserInput{ProblemText: "p", Period: "  ", Documents: "d"},
			want:  "проблема: p\nдокументы: d",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildQuery(tt.input))
		})
	}
}

func TestRetrieve_SendsBuiltQuery(t *testing.T) {
	emb := &staticEmbedder{vec: []float32{1, 0}}
	r := New(twoByTwo(t), emb)
	input := report.UserInput{ProblemText: "p", Period: "Q1"}

	_, err := r.Retrieve(context.Background(), input, 1)
	require.NoError(t, err)
	assert.Equal(t, BuildQuery(input), emb.last)
}

func ids(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}
