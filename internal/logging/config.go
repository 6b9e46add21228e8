package logging

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/devaudit/internal/config"
	"go.uber.org/zap/zapcore"
)

// Config is the "logging" section of the daemon configuration.
type Config struct {
	Level  zapcore.Level `koanf:"level"`
	Format string        `koanf:"format"`

	// Stdout and OTEL select the sinks; at least one must be on.
	Stdout bool `koanf:"stdout"`
	OTEL   bool `koanf:"otel"`

	Caller   bool           `koanf:"caller"`
	Sampling SamplingConfig `koanf:"sampling"`

	// Fields are attached to every entry.
	Fields map[string]string `koanf:"fields"`

	Redaction RedactionConfig `koanf:"redaction"`
}

// SamplingConfig keeps the first Initial entries with the same message per
// Tick and every Thereafter-th one after that. Errors bypass sampling.
type SamplingConfig struct {
	Enabled    bool            `koanf:"enabled"`
	Tick       config.Duration `koanf:"tick"`
	Initial    int             `koanf:"initial"`
	Thereafter int             `koanf:"thereafter"`
}

// RedactionConfig controls what the stdout encoder hides.
type RedactionConfig struct {
	Enabled bool `koanf:"enabled"`

	// Keys are field names whose values are always replaced.
	Keys []string `koanf:"keys"`

	// Values runs the secrets redactor over every string value.
	Values bool `koanf:"values"`
}

// NewDefaultConfig returns the configuration used when the file has no
// "logging" section.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Stdout: true,
		Caller: true,
		Sampling: SamplingConfig{
			Enabled:    true,
			Tick:       config.Duration(time.Second),
			Initial:    100,
			Thereafter: 10,
		},
		Fields: map[string]string{"service": "devaudit"},
		Redaction: RedactionConfig{
			Enabled: true,
			Keys:    []string{"password", "api_key", "authorization", "token", "secret"},
			Values:  true,
		},
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be json or console, got %q", c.Format)
	}
	if !c.Stdout && !c.OTEL {
		return errors.New("at least one output must be enabled (stdout or otel)")
	}
	if c.Sampling.Enabled {
		if c.Sampling.Tick.Duration() <= 0 {
			return errors.New("sampling tick must be > 0")
		}
		if c.Sampling.Initial < 1 || c.Sampling.Thereafter < 0 {
			return fmt.Errorf("sampling initial must be >= 1 and thereafter >= 0, got %d/%d",
				c.Sampling.Initial, c.Sampling.Thereafter)
		}
	}
	for k, v := range c.Fields {
		if k == "" || v == "" {
			return fmt.Errorf("constant field %q=%q must have a key and a value", k, v)
		}
	}
	return nil
}
