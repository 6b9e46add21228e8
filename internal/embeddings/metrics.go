package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/devaudit/internal/embeddings"

// Metrics records embedding calls for every provider.
type Metrics struct {
	duration metric.Float64Histogram
	texts    metric.Int64Histogram
	calls    metric.Int64Counter
}

// NewMetrics creates Metrics on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	return newMetrics(otel.Meter(instrumentationName), logger)
}

func newMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{}

	var err error
	m.duration, err = meter.Float64Histogram(
		"devaudit.embedding.duration_seconds",
		metric.WithDescription("Embedding call latency labeled by model and operation"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		logger.Warn("failed to create embedding duration histogram", zap.Error(err))
	}

	m.texts, err = meter.Int64Histogram(
		"devaudit.embedding.texts",
		metric.WithDescription("Texts per embedding call; bootstrap sends one per call"),
		metric.WithUnit("{text}"),
		metric.WithExplicitBucketBoundaries(1, 4, 16, 64, 256),
	)
	if err != nil {
		logger.Warn("failed to create embedding texts histogram", zap.Error(err))
	}

	m.calls, err = meter.Int64Counter(
		"devaudit.embedding.calls_total",
		metric.WithDescription("Embedding calls labeled by model, operation and outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		logger.Warn("failed to create embedding calls counter", zap.Error(err))
	}
	return m
}

// RecordGeneration records one embedding call. A nil receiver is a no-op.
func (m *Metrics) RecordGeneration(ctx context.Context, model, operation string, took time.Duration, texts int, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("operation", operation),
	)
	if m.duration != nil {
		m.duration.Record(ctx, took.Seconds(), attrs)
	}
	if m.texts != nil && texts > 0 {
		m.texts.Record(ctx, int64(texts), attrs)
	}
	if m.calls != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		m.calls.Add(ctx, 1, attrs, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}
