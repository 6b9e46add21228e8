package logging

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 7)

	// Trace correlation (from OpenTelemetry)
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}
	if owner := OwnerFromContext(ctx); owner != "" {
		fields = append(fields, zap.String("owner", owner))
	}
	if id, ok := RecordIDFromContext(ctx); ok {
		fields = append(fields, zap.Int64("record.id", id))
	}
	if jobID := JobIDFromContext(ctx); jobID != "" {
		fields = append(fields, zap.String("job.id", jobID))
	}

	return fields
}

type requestCtxKey struct{}
type ownerCtxKey struct{}
type recordCtxKey struct{}
type jobCtxKey struct{}

const maxIDLen = 128

var (
	// idPattern allows alphanumeric, hyphen, underscore
	idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	// ownerPattern additionally allows dots and @ for e-mail style owners
	ownerPattern = regexp.MustCompile(`^[a-zA-Z0-9_.@-]+$`)
)

func validate(id, name string, pattern *regexp.Regexp) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%s contains invalid UTF-8", name)
	}
	if len(id) > maxIDLen {
		return fmt.Errorf("%s exceeds max length %d", name, maxIDLen)
	}
	if !pattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters", name)
	}
	return nil
}

// ValidateOwner reports whether owner may be stored in a context.
func ValidateOwner(owner string) error {
	return validate(owner, "owner", ownerPattern)
}

// ValidateRequestID reports whether id may be stored in a context.
func ValidateRequestID(id string) error {
	return validate(id, "requestID", idPattern)
}

// RequestIDFromContext extracts request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithRequestID adds request ID to context.
// Panics if requestID is empty or contains invalid characters.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if err := ValidateRequestID(requestID); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// OwnerFromContext extracts the record owner from context.
func OwnerFromContext(ctx context.Context) string {
	if o, ok := ctx.Value(ownerCtxKey{}).(string); ok {
		return o
	}
	return ""
}

// WithOwner adds the record owner to context.
// Panics if owner is empty or contains invalid characters.
func WithOwner(ctx context.Context, owner string) context.Context {
	if err := ValidateOwner(owner); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, ownerCtxKey{}, owner)
}

// RecordIDFromContext extracts the deviation record id from context.
func RecordIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(recordCtxKey{}).(int64)
	return id, ok
}

// WithRecordID adds the deviation record id to context.
func WithRecordID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, recordCtxKey{}, id)
}

// JobIDFromContext extracts the build job id from context.
func JobIDFromContext(ctx context.Context) string {
	if j, ok := ctx.Value(jobCtxKey{}).(string); ok {
		return j
	}
	return ""
}

// WithJobID adds the build job id to context.
// Panics if jobID is empty or contains invalid characters.
func WithJobID(ctx context.Context, jobID string) context.Context {
	if err := validate(jobID, "jobID", idPattern); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, jobCtxKey{}, jobID)
}
