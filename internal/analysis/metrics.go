package analysis

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/devaudit/internal/analysis"

// Metrics holds analysis service metrics.
type Metrics struct {
	builds         metric.Int64Counter
	normalizeFails metric.Int64Counter
	repairs        metric.Int64Counter
	authAttempts   metric.Int64Counter
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
	m.builds, err = meter.Int64Counter(
		"devaudit.analysis.builds_total",
		metric.WithDescription("Report builds labeled by outcome"),
		metric.WithUnit("{build}"),
	)
	if err != nil {
		logger.Warn("failed to create builds counter", zap.Error(err))
	}

	m.normalizeFails, err = meter.Int64Counter(
		"devaudit.analysis.normalization_failures_total",
		metric.WithDescription("Generator answers rejected by the normalizer, labeled by stage"),
		metric.WithUnit("{answer}"),
	)
	if err != nil {
		logger.Warn("failed to create normalization failures counter", zap.Error(err))
	}

	m.repairs, err = meter.Int64Counter(
		"devaudit.analysis.repairs_total",
		metric.WithDescription("Lenient repairs applied to generator answers, labeled by kind"),
		metric.WithUnit("{repair}"),
	)
	if err != nil {
		logger.Warn("failed to create repairs counter", zap.Error(err))
	}

	m.authAttempts, err = meter.Int64Counter(
		"devaudit.analysis.auth_attempts_total",
		metric.WithDescription("Password authorization attempts labeled by result"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		logger.Warn("failed to create auth attempts counter", zap.Error(err))
	}
	return m
}

func (m *Metrics) recordBuild(ctx context.Context, outcome string) {
	if m.builds != nil {
		m.builds.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func (m *Metrics) recordNormalizeFailure(ctx context.Context, stage string) {
	if m.normalizeFails != nil {
		m.normalizeFails.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
	}
}

func (m *Metrics) recordRepair(ctx context.Context, kind string) {
	if m.repairs != nil {
		m.repairs.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

func (m *Metrics) recordAuth(ctx context.Context, ok bool) {
	if m.authAttempts == nil {
		return
	}
	result := "denied"
	if ok {
		result = "granted"
	}
	m.authAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
