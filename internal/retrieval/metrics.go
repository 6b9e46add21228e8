package retrieval

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/devaudit/internal/retrieval"

// Metrics records retrieval latency and outcome.
type Metrics struct {
	duration metric.Float64Histogram
}

// NewMetrics creates Metrics on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	return newMetrics(otel.Meter(instrumentationName), logger)
}

func newMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	m := &Metrics{}
	var err error
	m.duration, err = meter.Float64Histogram(
		"devaudit.retrieval.duration_seconds",
		metric.WithDescription("Duration of candidate retrieval including the query embedding"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil && logger != nil {
		logger.Warn("failed to create retrieval duration histogram", zap.Error(err))
	}
	return m
}

// Record records one retrieval.
func (m *Metrics) Record(ctx context.Context, d time.Duration, err error) {
	if m.duration == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.duration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("status", status)))
}
