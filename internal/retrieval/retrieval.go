// Package retrieval ranks taxonomy entries against a described deviation.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/devaudit/internal/catalog"
	"github.com/fyrsmithlabs/devaudit/internal/report"
	"github.com/fyrsmithlabs/devaudit/internal/vectorindex"
	"go.uber.org/zap"
)

// DefaultK is the number of candidates returned per taxonomy when k <= 0.
const DefaultK = 20

// ErrRetrieval wraps embedder failures.
var ErrRetrieval = errors.New("candidate retrieval failed")

// QueryEmbedder embeds a single query text.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Candidate is one ranked taxonomy entry.
type Candidate struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Confidence       float64 `json:"confidence"`
	DescriptionShort string  `json:"description_short,omitempty"`
	RiskType         string  `json:"risk_type,omitempty"`
	ScenarioShort    string  `json:"scenario_short,omitempty"`
}

// CandidateSet holds the ranked candidates of both taxonomies, each ordered
// by descending confidence.
type CandidateSet struct {
	Categories []Candidate `json:"deviation_categories"`
	Risks      []Candidate `json:"risks"`
}

// Retriever is the candidate retriever. It is safe for concurrent use.
type Retriever struct {
	catalog  *catalog.Catalog
	embedder QueryEmbedder
	defaultK int
	logger   *zap.Logger
	metrics  *Metrics
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithDefaultK replaces DefaultK.
func WithDefaultK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.defaultK = k
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) { r.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(r *Retriever) { r.metrics = m }
}

// New creates a Retriever over an immutable catalog.
func New(c *catalog.Catalog, embedder QueryEmbedder, opts ...Option) *Retriever {
	r := &Retriever{
		catalog:  c,
		embedder: embedder,
		defaultK: DefaultK,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = NewMetrics(r.logger)
	}
	return r
}

// BuildQuery renders the populated input fields, one "label value" per line.
func BuildQuery(input report.UserInput) string {
	fields := report.InputFields(input)
	lines := make([]string, len(fields))
	for i, f := range fields {
		lines[i] = f.Label + " " + f.Value
	}
	return strings.Join(lines, "\n")
}

// Retrieve embeds the input once and ranks both taxonomies against it.
func (r *Retriever) Retrieve(ctx context.Context, input report.UserInput, k int) (*CandidateSet, error) {
	if k <= 0 {
		k = r.defaultK
	}
	start := time.Now()

	set, err := r.retrieve(ctx, input, k)
	r.metrics.Record(ctx, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}
	r.logger.Debug("candidates retrieved",
		zap.Int("categories", len(set.Categories)),
		zap.Int("risks", len(set.Risks)),
		zap.Duration("duration", time.Since(start)))
	return set, nil
}

func (r *Retriever) retrieve(ctx context.Context, input report.UserInput, k int) (*CandidateSet, error) {
	query, err := r.embedder.EmbedQuery(ctx, BuildQuery(input))
	if err != nil {
		return nil, err
	}
	categories, err := rank(r.catalog.Categories(), query, k)
	if err != nil {
		return nil, err
	}
	risks, err := rank(r.catalog.Risks(), query, k)
	if err != nil {
		return nil, err
	}
	return &CandidateSet{Categories: categories, Risks: risks}, nil
}

func rank(src catalog.Source, query []float32, k int) ([]Candidate, error) {
	if src.Taxonomy.Len() == 0 {
		return []Candidate{}, nil
	}
	hits, err := src.Index.Search(query, k)
	if err != nil {
		return nil, fmt.Errorf("ranking %s: %w", src.Taxonomy.Name(), err)
	}
	return candidates(src, hits), nil
}

func candidates(src catalog.Source, hits []vectorindex.Hit) []Candidate {
	out := make([]Candidate, len(hits))
	for i, h := range hits {
		e := src.Taxonomy.At(h.Row)
		out[i] = Candidate{
			ID:               e.ID,
			Name:             e.Name,
			Confidence:       h.Confidence(),
			DescriptionShort: e.DescriptionShort,
			RiskType:         e.RiskType,
			ScenarioShort:    e.ScenarioShort,
		}
	}
	return out
}
