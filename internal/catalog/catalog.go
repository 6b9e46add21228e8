// Package catalog pairs each taxonomy with its embedding index.
//
// A Catalog is built once at process start and never mutated afterwards.
// Retrieval receives it through its constructor.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fyrsmithlabs/devaudit/internal/taxonomy"
	"github.com/fyrsmithlabs/devaudit/internal/vectorindex"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Source is a taxonomy together with its row-aligned index.
type Source struct {
	Taxonomy *taxonomy.Taxonomy
	Index    *vectorindex.Index
}

// Catalog holds both taxonomies used for classification.
type Catalog struct {
	categories Source
	risks      Source
}

// Categories returns the deviation category source.
func (c *Catalog) Categories() Source { return c.categories }

// Risks returns the risk type source.
func (c *Catalog) Risks() Source { return c.risks }

// New validates that each index is aligned with its taxonomy.
func New(categories, risks Source) (*Catalog, error) {
	for _, s := range []Source{categories, risks} {
		if err := checkAligned(s.Taxonomy, s.Index); err != nil {
			return nil, err
		}
	}
	return &Catalog{categories: categories, risks: risks}, nil
}

func checkAligned(t *taxonomy.Taxonomy, idx *vectorindex.Index) error {
	if t == nil || idx == nil {
		return errors.New("catalog source requires taxonomy and index")
	}
	if t.Len() != idx.Len() {
		return fmt.Errorf("%w: %s has %d entries but index has %d rows",
			vectorindex.ErrDimensionMismatch, t.Name(), t.Len(), idx.Len())
	}
	return nil
}

// Paths locates taxonomy files and their matrices.
type Paths struct {
	Categories       string
	Risks            string
	CategoriesMatrix string
	RisksMatrix      string
}

// Options controls Open.
type Options struct {
	Paths Paths

	// Rebuild ignores existing matrices and embeds every entry again.
	Rebuild bool

	// Embedder is required only when a matrix has to be rebuilt.
	Embedder vectorindex.Embedder

	MaxAttempts int
	Backoff     time.Duration
	SkipFailed  bool
	Progress    func(matrix string, done, total int)
	Logger      *zap.Logger
}

// Open loads both taxonomies and their matrices. A missing or misaligned
// matrix is rebuilt synchronously through the embedder and saved for the
// next start. Both taxonomies are rebuilt concurrently.
func Open(ctx context.Context, opts Options) (*Catalog, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cats, err := taxonomy.Load("categories", opts.Paths.Categories)
	if err != nil {
		return nil, err
	}
	risks, err := taxonomy.Load("risks", opts.Paths.Risks)
	if err != nil {
		return nil, err
	}

	var catIdx, riskIdx *vectorindex.Index
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		catIdx, err = loadOrBuild(gctx, cats, opts.Paths.CategoriesMatrix, opts, logger)
		return err
	})
	g.Go(func() error {
		var err error
		riskIdx, err = loadOrBuild(gctx, risks, opts.Paths.RisksMatrix, opts, logger)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c, err := New(Source{Taxonomy: cats, Index: catIdx}, Source{Taxonomy: risks, Index: riskIdx})
	if err != nil {
		return nil, err
	}
	logger.Info("catalog ready",
		zap.Int("categories", cats.Len()),
		zap.Int("risks", risks.Len()),
		zap.Int("dimension", catIdx.Dim()))
	return c, nil
}

func loadOrBuild(ctx context.Context, t *taxonomy.Taxonomy, path string, opts Options, logger *zap.Logger) (*vectorindex.Index, error) {
	name := filepath.Base(path)
	if !opts.Rebuild {
		idx, err := vectorindex.Load(path)
		switch {
		case err == nil && idx.Len() == t.Len():
			logger.Debug("matrix loaded", zap.String("path", path), zap.Int("rows", idx.Len()))
			return idx, nil
		case err == nil:
			logger.Warn("matrix does not match taxonomy, rebuilding",
				zap.String("path", path),
				zap.Int("rows", idx.Len()),
				zap.Int("entries", t.Len()))
		case errors.Is(err, os.ErrNotExist):
			logger.Warn("matrix not found, computing embeddings synchronously",
				zap.String("path", path),
				zap.Int("entries", t.Len()))
		default:
			logger.Warn("matrix unreadable, rebuilding", zap.String("path", path), zap.Error(err))
		}
	}

	if opts.Embedder == nil {
		return nil, fmt.Errorf("rebuilding %s: no embedder configured", name)
	}

	bopts := vectorindex.BootstrapOptions{
		Name:        name,
		MaxAttempts: opts.MaxAttempts,
		Backoff:     opts.Backoff,
		SkipFailed:  opts.SkipFailed,
		Logger:      logger,
	}
	if opts.Progress != nil {
		bopts.Progress = func(done, total int) { opts.Progress(name, done, total) }
	}

	idx, err := vectorindex.Bootstrap(ctx, opts.Embedder, t.Texts(), bopts)
	if err != nil {
		return nil, fmt.Errorf("rebuilding %s: %w", name, err)
	}
	if err := vectorindex.Save(path, idx); err != nil {
		return nil, fmt.Errorf("saving %s: %w", name, err)
	}
	logger.Info("matrix saved",
		zap.String("path", path),
		zap.Int("rows", idx.Len()),
		zap.Int("dimension", idx.Dim()))
	return idx, nil
}
