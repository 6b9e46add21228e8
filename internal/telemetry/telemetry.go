package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry owns the providers created by New. All methods are safe on a
// nil receiver.
type Telemetry struct {
	cfg *Config

	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
	lp *sdklog.LoggerProvider

	failures []string
}

// Health reports which providers failed to start.
type Health struct {
	Healthy  bool     `json:"healthy"`
	Failures []string `json:"failures,omitempty"`
}

// New validates cfg and starts the enabled providers. Provider failures are
// recorded in Health rather than returned.
func New(ctx context.Context, cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}
	t := &Telemetry{cfg: cfg}
	if !cfg.Enabled {
		return t, nil
	}

	res := newResource(cfg)

	if tp, err := newTracerProvider(ctx, cfg, res); err != nil {
		t.fail("traces", err)
	} else {
		t.tp = tp
		otel.SetTracerProvider(tp)
	}

	if cfg.MetricsInterval > 0 {
		if mp, err := newMeterProvider(ctx, cfg, res); err != nil {
			t.fail("metrics", err)
		} else {
			t.mp = mp
			otel.SetMeterProvider(mp)
		}
	}

	if cfg.Logs {
		if lp, err := newLoggerProvider(ctx, cfg, res); err != nil {
			t.fail("logs", err)
		} else {
			t.lp = lp
		}
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return t, nil
}

func (t *Telemetry) fail(signal string, err error) {
	t.failures = append(t.failures, signal+": "+err.Error())
}

// Enabled reports whether telemetry was requested.
func (t *Telemetry) Enabled() bool {
	return t != nil && t.cfg != nil && t.cfg.Enabled
}

// Health returns the startup outcome.
func (t *Telemetry) Health() Health {
	if t == nil {
		return Health{Healthy: true}
	}
	return Health{Healthy: len(t.failures) == 0, Failures: t.failures}
}

// Tracer returns a tracer from the owned provider or the global one.
func (t *Telemetry) Tracer(name string) trace.Tracer {
	if t == nil || t.tp == nil {
		return otel.Tracer(name)
	}
	return t.tp.Tracer(name)
}

// Meter returns a meter from the owned provider or the global one.
func (t *Telemetry) Meter(name string) metric.Meter {
	if t == nil || t.mp == nil {
		return otel.Meter(name)
	}
	return t.mp.Meter(name)
}

// LoggerProvider returns the log provider for the otelzap bridge, or nil
// when logs are not exported.
func (t *Telemetry) LoggerProvider() log.LoggerProvider {
	if t == nil || t.lp == nil {
		return nil
	}
	return t.lp
}

// Shutdown flushes and stops the providers. Without a deadline on ctx the
// configured shutdown timeout applies.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok && t.cfg != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.ShutdownTimeout.Duration())
		defer cancel()
	}

	var errs []error
	if t.tp != nil {
		if err := t.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider shutdown: %w", err))
		}
	}
	if t.mp != nil {
		if err := t.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}
	if t.lp != nil {
		if err := t.lp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("log provider shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}
