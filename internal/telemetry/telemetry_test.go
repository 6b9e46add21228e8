package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	assert.False(t, tel.Enabled())
	assert.True(t, tel.Health().Healthy)
	assert.Nil(t, tel.LoggerProvider())
	assert.NotNil(t, tel.Tracer("x"))
	assert.NotNil(t, tel.Meter("x"))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := enabledConfig()
	cfg.Protocol = "udp"
	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "invalid telemetry config")
}

func TestNew_EnabledBothProtocols(t *testing.T) {
	for _, protocol := range []string{ProtocolGRPC, ProtocolHTTP} {
		t.Run(protocol, func(t *testing.T) {
			cfg := enabledConfig()
			cfg.Protocol = protocol
			if protocol == ProtocolHTTP {
				cfg.Endpoint = "http://localhost:4318"
			}

			// Exporters connect lazily, so no collector is needed to start.
			tel, err := New(context.Background(), cfg)
			require.NoError(t, err)
			assert.True(t, tel.Enabled())
			assert.True(t, tel.Health().Healthy, tel.Health().Failures)
			assert.NotNil(t, tel.LoggerProvider())

			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			_ = tel.Shutdown(ctx)
		})
	}
}

func TestNew_MetricsAndLogsOff(t *testing.T) {
	cfg := enabledConfig()
	cfg.MetricsInterval = 0
	cfg.Logs = false

	tel, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, tel.mp)
	assert.Nil(t, tel.LoggerProvider())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = tel.Shutdown(ctx)
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry
	assert.False(t, tel.Enabled())
	assert.True(t, tel.Health().Healthy)
	assert.Nil(t, tel.LoggerProvider())
	assert.NotNil(t, tel.Tracer("x"))
	assert.NotNil(t, tel.Meter("x"))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestTelemetry_HealthListsFailures(t *testing.T) {
	tel := &Telemetry{cfg: enabledConfig()}
	tel.fail("traces", assert.AnError)
	tel.fail("logs", assert.AnError)

	h := tel.Health()
	assert.False(t, h.Healthy)
	assert.Equal(t, []string{"traces: " + assert.AnError.Error(), "logs: " + assert.AnError.Error()}, h.Failures)
}

func TestNewResource(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.ServiceVersion = "1.2.3"

	attrs := map[attribute.Key]string{}
	for _, kv := range newResource(cfg).Attributes() {
		attrs[kv.Key] = kv.Value.Emit()
	}
	assert.Equal(t, "devauditd", attrs["service.name"])
	assert.Equal(t, "1.2.3", attrs["service.version"])
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	rec := NewRecorder()

	_, span := rec.Tracer("test").Start(ctx, "analysis.build")
	span.SetAttributes(attribute.Int64("record_id", 3))
	span.End()
	_, other := rec.Tracer("test").Start(ctx, "retrieval.retrieve")
	other.End()

	assert.Equal(t, []string{"analysis.build", "retrieval.retrieve"}, rec.SpanNames())
	got, ok := rec.Span("analysis.build")
	require.True(t, ok)
	assert.Contains(t, got.Attributes(), attribute.Int64("record_id", 3))
	_, ok = rec.Span("missing")
	assert.False(t, ok)

	counter, err := rec.Meter("test").Int64Counter("devaudit.builds_total")
	require.NoError(t, err)
	counter.Add(ctx, 2, metricAttr("outcome", "succeeded"))
	counter.Add(ctx, 1, metricAttr("outcome", "failed"))

	total, err := rec.Counter(ctx, "devaudit.builds_total", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	failed, err := rec.Counter(ctx, "devaudit.builds_total", func(dp metricdata.DataPoint[int64]) bool {
		v, _ := dp.Attributes.Value("outcome")
		return v.AsString() == "failed"
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), failed)

	none, err := rec.Counter(ctx, "unknown", nil)
	require.NoError(t, err)
	assert.Zero(t, none)
}

func metricAttr(k, v string) metric.AddOption {
	return metric.WithAttributes(attribute.String(k, v))
}
