// Package generation runs generator calls off the caller's goroutine with a
// bounded wait.
//
// Each attempt runs in its own goroutine and reports on a buffered channel,
// so an attempt abandoned after its timeout can still finish and exit; its
// result is never read. A timed-out attempt is retried exactly once.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/devaudit/internal/llm"
	"go.uber.org/zap"
)

// ErrGenerationTimeout is returned when both attempts time out.
var ErrGenerationTimeout = errors.New("generation timed out")

const (
	// DefaultTimeout bounds a single attempt.
	DefaultTimeout = 4 * time.Minute

	// DefaultHeartbeat is the interval between progress callbacks.
	DefaultHeartbeat = 5 * time.Second

	attempts = 2
)

// ProgressFunc is called periodically while an attempt is outstanding.
type ProgressFunc func(attempt int, elapsed time.Duration)

// Options configures a Runner.
type Options struct {
	Timeout   time.Duration
	Heartbeat time.Duration
	Logger    *zap.Logger
	Metrics   *Metrics
}

// Runner executes generator calls with a timeout and a single retry.
type Runner struct {
	gen       llm.Generator
	timeout   time.Duration
	heartbeat time.Duration
	logger    *zap.Logger
	metrics   *Metrics
}

// NewRunner creates a Runner around gen.
func NewRunner(gen llm.Generator, opts Options) *Runner {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(opts.Logger)
	}
	return &Runner{
		gen:       gen,
		timeout:   opts.Timeout,
		heartbeat: opts.Heartbeat,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
}

type result struct {
	text string
	err  error
}

// Run sends req to the generator. op labels logs and metrics. Generator
// errors other than the timeout are returned without retry.
func (r *Runner) Run(ctx context.Context, op string, req llm.Request, progress ProgressFunc) (string, error) {
	start := time.Now()
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			r.metrics.RecordRetry(ctx, op)
			r.logger.Warn("generation timed out, retrying",
				zap.String("operation", op),
				zap.Int("attempt", attempt),
				zap.Duration("timeout", r.timeout))
		}

		text, err := r.attempt(ctx, attempt, req, progress)
		if errors.Is(err, errAttemptTimeout) {
			r.metrics.RecordTimeout(ctx, op)
			continue
		}
		r.metrics.RecordDuration(ctx, op, time.Since(start), err)
		if err != nil {
			return "", err
		}
		return text, nil
	}

	err := fmt.Errorf("%w after %d attempts of %s", ErrGenerationTimeout, attempts, r.timeout)
	r.metrics.RecordDuration(ctx, op, time.Since(start), err)
	r.logger.Error("generation failed", zap.String("operation", op), zap.Error(err))
	return "", err
}

var errAttemptTimeout = errors.New("attempt timed out")

func (r *Runner) attempt(ctx context.Context, n int, req llm.Request, progress ProgressFunc) (string, error) {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		text, err := r.gen.Complete(attemptCtx, req)
		done <- result{text: text, err: err}
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()
	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()

	started := time.Now()
	for {
		select {
		case res := <-done:
			return res.text, res.err
		case <-timer.C:
			return "", errAttemptTimeout
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			if progress != nil {
				progress(n, time.Since(started))
			}
		}
	}
}
