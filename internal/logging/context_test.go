package logging

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func TestContextFields_Empty(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestContextFields_OTELTracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := trace.NewTracerProvider(
		trace.WithSampler(trace.AlwaysSample()),
		trace.WithSyncer(exporter),
	)
	ctx, span := provider.Tracer("test").Start(context.Background(), "build")
	defer span.End()

	fields := ContextFields(ctx)

	var hasTraceID, hasSpanID bool
	for _, f := range fields {
		switch f.Key {
		case "trace_id":
			hasTraceID = f.String != ""
		case "span_id":
			hasSpanID = f.String != ""
		}
	}
	assert.True(t, hasTraceID, "trace_id field missing")
	assert.True(t, hasSpanID, "span_id field missing")
	assertBoolFieldExists(t, fields, "trace_sampled", true)
}

func TestContextFields_Correlation(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req_456")
	ctx = WithOwner(ctx, "auditor@example.com")
	ctx = WithRecordID(ctx, 42)
	ctx = WithJobID(ctx, "6f1c6a2e-8d8e-4d0c-9d8b-2f3a5c1e7b90")

	fields := ContextFields(ctx)

	assert.Len(t, fields, 4)
	assertFieldExists(t, fields, "request.id", "req_456")
	assertFieldExists(t, fields, "owner", "auditor@example.com")
	assertFieldExists(t, fields, "job.id", "6f1c6a2e-8d8e-4d0c-9d8b-2f3a5c1e7b90")
	assertIntFieldExists(t, fields, "record.id", 42)
}

func TestRecordID_ZeroIsPresent(t *testing.T) {
	_, ok := RecordIDFromContext(context.Background())
	assert.False(t, ok)

	id, ok := RecordIDFromContext(WithRecordID(context.Background(), 0))
	assert.True(t, ok)
	assert.Equal(t, int64(0), id)
}

func assertFieldExists(t *testing.T, fields []zap.Field, key, expected string) {
	t.Helper()
	for _, field := range fields {
		if field.Key == key && field.String == expected {
			return
		}
	}
	t.Errorf("field %q with value %q not found", key, expected)
}

func assertIntFieldExists(t *testing.T, fields []zap.Field, key string, expected int64) {
	t.Helper()
	for _, field := range fields {
		if field.Key == key && field.Integer == expected {
			return
		}
	}
	t.Errorf("field %q with value %d not found", key, expected)
}

func assertBoolFieldExists(t *testing.T, fields []zap.Field, key string, expected bool) {
	t.Helper()
	want := int64(0)
	if expected {
		want = 1
	}
	assertIntFieldExists(t, fields, key, want)
}

func TestWithOwner(t *testing.T) {
	valid := []string{"u1", "auditor@example.com", "first.last", "tg-123456789"}
	for _, owner := range valid {
		t.Run(owner, func(t *testing.T) {
			assert.Equal(t, owner, OwnerFromContext(WithOwner(context.Background(), owner)))
		})
	}

	invalid := map[string]string{
		"empty":      "",
		"spaces":     "first last",
		"slash":      "a/b",
		"too long":   strings.Repeat("a", maxIDLen+1),
		"bad utf8":   "\xff\xfe",
		"cyrillic":   "аудитор",
		"semicolons": "a;drop",
	}
	for name, owner := range invalid {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, ValidateOwner(owner))
			assert.Panics(t, func() { WithOwner(context.Background(), owner) })
		})
	}
}

func TestWithRequestID(t *testing.T) {
	for _, id := range []string{"req_456", "req-abc-456", "reqABC456"} {
		assert.Equal(t, id, RequestIDFromContext(WithRequestID(context.Background(), id)))
	}

	assert.PanicsWithValue(t, "logging: requestID cannot be empty", func() {
		WithRequestID(context.Background(), "")
	})
	for _, id := range []string{"req 456", "req/456", "req@456", "req.456", strings.Repeat("a", 129)} {
		assert.Panics(t, func() { WithRequestID(context.Background(), id) }, id)
	}
}

func TestWithJobID(t *testing.T) {
	assert.Equal(t, "job-1", JobIDFromContext(WithJobID(context.Background(), "job-1")))
	assert.Empty(t, JobIDFromContext(context.Background()))
	assert.Panics(t, func() { WithJobID(context.Background(), "job 1") })
}
