// Package llm provides the text generators that produce report JSON.
//
// Two HTTP clients are available: an OpenAI-compatible chat completions
// client (OpenRouter by default) and the Anthropic Messages API. Both share
// one rate limiter and send each request exactly once. Transport errors and
// non-200 answers are returned as ErrProvider; retrying is left to the
// generation runner, which retries timed out attempts only.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrProvider indicates the generator backend failed or returned an unusable
// answer.
var ErrProvider = errors.New("generator provider error")

// Rate limiting defaults.
const (
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

// Request is a single completion request.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Generator produces a completion for a request.
type Generator interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Config selects and configures a generator.
type Config struct {
	// Provider is "openrouter" (or "openai") or "anthropic".
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
	// Title is sent to OpenRouter as X-Title.
	Title string
	// Timeout caps one HTTP request. Zero leaves the bound to the caller's
	// context, which the generation runner sets per attempt.
	Timeout time.Duration
	// RateLimit is requests per second; 0 uses the default.
	RateLimit float64
	Burst     int
	Logger    *zap.Logger
}

func (c *Config) applyDefaults() {
	if c.Timeout < 0 {
		c.Timeout = 0
	}
	if c.RateLimit <= 0 {
		c.RateLimit = defaultRateLimit
	}
	if c.Burst <= 0 {
		c.Burst = defaultBurst
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// New creates the configured generator.
func New(cfg Config) (Generator, error) {
	switch cfg.Provider {
	case "openrouter", "openai", "":
		return NewOpenAI(cfg)
	case "anthropic":
		return NewAnthropic(cfg)
	default:
		return nil, fmt.Errorf("unknown generator provider %q", cfg.Provider)
	}
}

// gate is the rate limiter shared by the clients. A request goes out once:
// the generation runner owns the single retry after an attempt timeout, and
// every other failure is final for the request.
type gate struct {
	limiter  *rate.Limiter
	logger   *zap.Logger
	provider string
}

func newGate(provider string, cfg Config) gate {
	return gate{
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		logger:   cfg.Logger,
		provider: provider,
	}
}

func (g gate) do(ctx context.Context, call func(context.Context) (string, error)) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}
	start := time.Now()
	text, err := call(ctx)
	if err != nil && ctx.Err() == nil {
		g.logger.Warn("generator request failed",
			zap.String("provider", g.provider),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
	}
	return text, err
}

// StatusError is a non-200 answer from the provider.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", ErrProvider, e.Status, e.Message)
}

func (e *StatusError) Unwrap() error { return ErrProvider }
