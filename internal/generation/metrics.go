package generation

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/devaudit/internal/generation"

// Metrics holds generation runner metrics.
type Metrics struct {
	meter    metric.Meter
	logger   *zap.Logger
	duration metric.Float64Histogram
	timeouts metric.Int64Counter
	retries  metric.Int64Counter
	errors   metric.Int64Counter
}

// NewMetrics creates Metrics on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	return newMetrics(otel.Meter(instrumentationName), logger)
}

func newMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{meter: meter, logger: logger}

	var err error
	m.duration, err = meter.Float64Histogram(
		"devaudit.generation.duration_seconds",
		metric.WithDescription("Wall time of a generation request including the retry"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 240, 480),
	)
	if err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.timeouts, err = meter.Int64Counter(
		"devaudit.generation.timeouts_total",
		metric.WithDescription("Generation attempts abandoned after the timeout"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		logger.Warn("failed to create timeouts counter", zap.Error(err))
	}

	m.retries, err = meter.Int64Counter(
		"devaudit.generation.retries_total",
		metric.WithDescription("Generation retries after a timeout"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		logger.Warn("failed to create retries counter", zap.Error(err))
	}

	m.errors, err = meter.Int64Counter(
		"devaudit.generation.errors_total",
		metric.WithDescription("Generation requests that ended in an error"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		logger.Warn("failed to create errors counter", zap.Error(err))
	}
	return m
}

// RecordDuration records a finished request.
func (m *Metrics) RecordDuration(ctx context.Context, op string, d time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("operation", op))
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}

// RecordTimeout records an abandoned attempt.
func (m *Metrics) RecordTimeout(ctx context.Context, op string) {
	if m.timeouts != nil {
		m.timeouts.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
	}
}

// RecordRetry records a retry.
func (m *Metrics) RecordRetry(ctx context.Context, op string) {
	if m.retries != nil {
		m.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
	}
}
