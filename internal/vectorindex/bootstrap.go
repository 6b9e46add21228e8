package vectorindex

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Embedder embeds documents. Bootstrap calls it with one text at a time.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// ProgressFunc is called with the number of rows completed so far.
type ProgressFunc func(done, total int)

// BootstrapOptions controls a synchronous rebuild.
type BootstrapOptions struct {
	// Name labels progress logs (e.g. "cat_mat.npy").
	Name string

	// ProgressEvery reports progress after every n rows and at the end.
	// Defaults to 10.
	ProgressEvery int

	// MaxAttempts is the number of embed attempts per row. Defaults to 3.
	MaxAttempts int

	// Backoff is the wait before the second attempt, doubled after each
	// failure. Defaults to 500ms.
	Backoff time.Duration

	// SkipFailed stores a zero row for an entry that keeps failing instead of
	// aborting. A zero row scores 0 against any query.
	SkipFailed bool

	Progress ProgressFunc
	Logger   *zap.Logger
}

func (o *BootstrapOptions) applyDefaults() {
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = 10
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = 500 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// BootstrapError reports the row that could not be embedded. Rows holds
// everything completed before it.
type BootstrapError struct {
	Row  int
	Rows [][]float32
	Err  error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("bootstrap failed at row %d: %v", e.Row, e.Err)
}

func (e *BootstrapError) Unwrap() error { return e.Err }

// Bootstrap embeds texts one per call, in order, and builds an index from the
// results. Each row is retried independently so a failure never discards
// the rows already embedded.
func Bootstrap(ctx context.Context, embedder Embedder, texts []string, opts BootstrapOptions) (*Index, error) {
	opts.applyDefaults()
	total := len(texts)
	rows := make([][]float32, 0, total)
	dim := 0
	var skipped []int

	for i, text := range texts {
		vec, err := embedWithRetry(ctx, embedder, text, opts)
		if err == nil && dim != 0 && len(vec) != dim {
			err = fmt.Errorf("%w: row has %d values, want %d", ErrDimensionMismatch, len(vec), dim)
		}
		if err != nil {
			if !opts.SkipFailed || ctx.Err() != nil {
				return nil, &BootstrapError{Row: i, Rows: rows, Err: err}
			}
			opts.Logger.Warn("embedding failed, storing zero row",
				zap.String("matrix", opts.Name),
				zap.Int("row", i),
				zap.Error(err))
			skipped = append(skipped, i)
			rows = append(rows, nil)
		} else {
			if dim == 0 {
				dim = len(vec)
			}
			rows = append(rows, vec)
		}

		done := i + 1
		if done%opts.ProgressEvery == 0 || done == total {
			opts.Logger.Info("bootstrap progress",
				zap.String("matrix", opts.Name),
				zap.Int("done", done),
				zap.Int("total", total))
			if opts.Progress != nil {
				opts.Progress(done, total)
			}
		}
	}

	if len(skipped) > 0 && dim == 0 {
		return nil, &BootstrapError{Row: skipped[0], Rows: rows, Err: fmt.Errorf("no row could be embedded")}
	}
	for _, i := range skipped {
		rows[i] = make([]float32, dim)
	}
	return New(rows)
}

func embedWithRetry(ctx context.Context, embedder Embedder, text string, opts BootstrapOptions) ([]float32, error) {
	var lastErr error
	backoff := opts.Backoff
	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}

		vecs, err := embedder.EmbedDocuments(ctx, []string{text})
		if err == nil {
			if len(vecs) != 1 || len(vecs[0]) == 0 {
				return nil, fmt.Errorf("embedder returned %d vectors for one text", len(vecs))
			}
			return vecs[0], nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", opts.MaxAttempts, lastErr)
}
