package logging

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newBufferLogger(t *testing.T, cfg RedactionConfig) (*zap.Logger, *bytes.Buffer) {
	t.Helper()
	enc, err := newRedactingEncoder(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), cfg)
	require.NoError(t, err)
	var buf bytes.Buffer
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(&buf), zapcore.DebugLevel)), &buf
}

func TestRedactingEncoder_CallSiteFields(t *testing.T) {
	logger, buf := newBufferLogger(t, NewDefaultConfig().Redaction)

	logger.Info("auth attempt by ivan.petrov@corp.ru",
		zap.String("password", "hunter2"),
		zap.String("note", "key sk-ant-REDACTED in prompt"),
		zap.Error(errors.New("dial postgres://app:s3cr3t@db:5432/audit failed")),
		zap.Int("attempt", 2),
	)

	out := buf.String()
	for _, leaked := range []string{"hunter2", "ivan.petrov@corp.ru", "sk-ant-api03", "s3cr3t"} {
		assert.NotContains(t, out, leaked)
	}
	assert.Contains(t, out, `"password":"[REDACTED]"`)
	assert.Contains(t, out, `"note":"key [REDACTED] in prompt"`)
	assert.Contains(t, out, `"attempt":2`)
	assert.Contains(t, out, "auth attempt by [REDACTED]")
}

func TestRedactingEncoder_BoundFields(t *testing.T) {
	logger, buf := newBufferLogger(t, NewDefaultConfig().Redaction)

	logger.With(
		zap.String("Authorization", "Basic dXNlcjpwYXNz"),
		zap.Strings("token", []string{"a", "b"}),
		zap.String("owner", "qa@example.com"),
	).Info("bound")

	out := buf.String()
	assert.Contains(t, out, `"Authorization":"[REDACTED]"`)
	assert.Contains(t, out, `"token":"[REDACTED]"`)
	assert.NotContains(t, out, "qa@example.com")
}

func TestRedactingEncoder_KeysOnly(t *testing.T) {
	logger, buf := newBufferLogger(t, RedactionConfig{Enabled: true, Keys: []string{"password"}})

	logger.Info("contact qa@example.com", zap.String("password", "x"))

	assert.Contains(t, buf.String(), "qa@example.com")
	assert.Contains(t, buf.String(), `"password":"[REDACTED]"`)
}

func TestRedactingEncoder_Disabled(t *testing.T) {
	base := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	enc, err := newRedactingEncoder(base, RedactionConfig{Keys: []string{"password"}})
	require.NoError(t, err)
	assert.Same(t, base, enc)
}
