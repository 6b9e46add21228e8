package logging

import (
	"context"
	"testing"
	"time"

	"github.com/fyrsmithlabs/devaudit/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, NewDefaultConfig().Validate())

	tests := map[string]struct {
		mutate func(*Config)
		errMsg string
	}{
		"format":      {func(c *Config) { c.Format = "xml" }, "format must be json or console"},
		"no output":   {func(c *Config) { c.Stdout = false }, "at least one output"},
		"zero tick":   {func(c *Config) { c.Sampling.Tick = 0 }, "sampling tick"},
		"zero first":  {func(c *Config) { c.Sampling.Initial = 0 }, "sampling initial"},
		"empty field": {func(c *Config) { c.Fields["env"] = "" }, "constant field"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	t.Run("sampling off ignores its settings", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Sampling = SamplingConfig{}
		assert.NoError(t, cfg.Validate())
	})
}

func TestNew(t *testing.T) {
	t.Run("stdout", func(t *testing.T) {
		logger, err := New(NewDefaultConfig(), nil)
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
		assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("otel without provider", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Stdout = false
		cfg.OTEL = true
		_, err := New(cfg, nil)
		assert.ErrorContains(t, err, "logger provider")
	})

	t.Run("otel with provider", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.OTEL = true
		logger, err := New(cfg, noop.NewLoggerProvider())
		require.NoError(t, err)
		logger.Info("both sinks")
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Format = "xml"
		_, err := New(cfg, nil)
		assert.ErrorContains(t, err, "invalid logging config")
	})
}

func TestConstantFields_Sorted(t *testing.T) {
	fields := constantFields(map[string]string{"service": "devaudit", "env": "prod", "dc": "msk"})
	require.Len(t, fields, 3)
	assert.Equal(t, []string{"dc", "env", "service"}, []string{fields[0].Key, fields[1].Key, fields[2].Key})
}

func TestFor(t *testing.T) {
	logger, logs := NewObserved(zapcore.DebugLevel)

	assert.Same(t, logger, For(context.Background(), logger))

	ctx := WithOwner(context.Background(), "auditor@example.com")
	ctx = WithRecordID(ctx, 7)
	For(ctx, logger).Info("build started", zap.String("stage", "retrieve"))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "auditor@example.com", fields["owner"])
	assert.Equal(t, int64(7), fields["record.id"])
	assert.Equal(t, "retrieve", fields["stage"])
}

func TestSync_Observed(t *testing.T) {
	logger, _ := NewObserved(zapcore.InfoLevel)
	assert.NoError(t, Sync(logger))
}

func TestSampling(t *testing.T) {
	observed, logs := NewObserved(zapcore.DebugLevel)
	logger := zap.New(newSampledCore(observed.Core(), SamplingConfig{
		Enabled:    true,
		Tick:       config.Duration(time.Minute),
		Initial:    2,
		Thereafter: 0,
	}))

	child := logger.With(zap.String("component", "runner"))
	for i := 0; i < 10; i++ {
		child.Info("heartbeat")
		child.Error("generator unreachable")
	}

	assert.Equal(t, 2, logs.FilterMessage("heartbeat").Len())
	assert.Equal(t, 10, logs.FilterMessage("generator unreachable").Len())
	for _, e := range logs.All() {
		assert.Equal(t, "runner", e.ContextMap()["component"])
	}
}
