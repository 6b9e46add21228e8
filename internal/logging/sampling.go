package logging

import "go.uber.org/zap/zapcore"

func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	return &splitCore{
		Core:    core,
		sampled: zapcore.NewSamplerWithOptions(core, cfg.Tick.Duration(), cfg.Initial, cfg.Thereafter),
	}
}

// splitCore routes error and above to the raw core and everything else to
// the sampler.
type splitCore struct {
	zapcore.Core
	sampled zapcore.Core
}

func (c *splitCore) With(fields []zapcore.Field) zapcore.Core {
	return &splitCore{Core: c.Core.With(fields), sampled: c.sampled.With(fields)}
}

func (c *splitCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if ent.Level >= zapcore.ErrorLevel {
		return c.Core.Check(ent, ce)
	}
	return c.sampled.Check(ent, ce)
}
