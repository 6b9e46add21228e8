// Package config provides configuration loading for devaudit.
//
// Configuration comes from a YAML file overridden by DEVAUDIT_* environment
// variables. Sections owned by other packages (logging, telemetry) are read
// from the same Source with Section.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/devaudit/internal/secrets"
)

// Config holds the devaudit configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Taxonomy   TaxonomyConfig   `koanf:"taxonomy"`
	Index      IndexConfig      `koanf:"index"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Generator  GeneratorConfig  `koanf:"generator"`
	Store      StoreConfig      `koanf:"store"`
	Auth       AuthConfig       `koanf:"auth"`
	Redaction  secrets.Config   `koanf:"redaction"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	// JobRetention bounds the finished build jobs kept for polling.
	JobRetention int `koanf:"job_retention"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// TaxonomyConfig locates the two taxonomy files.
type TaxonomyConfig struct {
	Categories string `koanf:"categories"`
	Risks      string `koanf:"risks"`
}

// IndexConfig controls the embedding matrices and retrieval.
type IndexConfig struct {
	CategoriesMatrix string `koanf:"categories_matrix"`
	RisksMatrix      string `koanf:"risks_matrix"`
	// Rebuild ignores saved matrices.
	Rebuild     bool     `koanf:"rebuild"`
	MaxAttempts int      `koanf:"max_attempts"`
	Backoff     Duration `koanf:"backoff"`
	// SkipFailed stores zero rows for entries that cannot be embedded.
	SkipFailed bool `koanf:"skip_failed"`
	// K is the number of candidates per taxonomy.
	K int `koanf:"k"`
}

// EmbeddingsConfig selects the embedding provider.
type EmbeddingsConfig struct {
	Provider  string   `koanf:"provider"`
	Model     string   `koanf:"model"`
	BaseURL   string   `koanf:"base_url"`
	APIKey    Secret   `koanf:"api_key"`
	Dimension int      `koanf:"dimension"`
	CacheDir  string   `koanf:"cache_dir"`
	Timeout   Duration `koanf:"timeout"`
}

// GeneratorConfig selects the completion provider and generation limits.
type GeneratorConfig struct {
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   Secret `koanf:"api_key"`
	Title    string `koanf:"title"`

	// AttemptTimeout bounds one generation attempt; a timed out attempt is
	// retried once.
	AttemptTimeout Duration `koanf:"attempt_timeout"`
	Heartbeat      Duration `koanf:"heartbeat"`
	// RequestTimeout optionally caps one HTTP request. Zero leaves the bound
	// to the attempt timeout; a non-zero value may not be shorter than it.
	RequestTimeout Duration `koanf:"request_timeout"`
	RateLimit      float64  `koanf:"rate_limit"`
	Burst          int      `koanf:"burst"`

	Build      SamplingParams `koanf:"build"`
	Regenerate SamplingParams `koanf:"regenerate"`
}

// SamplingParams are per-request-kind sampling settings.
type SamplingParams struct {
	Temperature float64 `koanf:"temperature"`
	MaxTokens   int     `koanf:"max_tokens"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `koanf:"path"`
	// Timezone decides the calendar day of authorization grants.
	Timezone string `koanf:"timezone"`
}

// Location loads the grant timezone.
func (s StoreConfig) Location() (*time.Location, error) {
	return time.LoadLocation(s.Timezone)
}

// AuthConfig holds the daily password.
type AuthConfig struct {
	Password Secret `koanf:"password"`
	Disabled bool   `koanf:"disabled"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8085,
			ShutdownTimeout: Duration(10 * time.Second),
			JobRetention:    256,
		},
		Taxonomy: TaxonomyConfig{
			Categories: "deviation_categories.json",
			Risks:      "risks.json",
		},
		Index: IndexConfig{
			CategoriesMatrix: "emb_cache/cat_mat.npy",
			RisksMatrix:      "emb_cache/risk_mat.npy",
			MaxAttempts:      3,
			Backoff:          Duration(2 * time.Second),
			K:                20,
		},
		Embeddings: EmbeddingsConfig{
			Provider: "openai",
			Model:    "openai/text-embedding-3-small",
			BaseURL:  "https://openrouter.ai/api/v1",
			CacheDir: "~/.config/devaudit/models",
			Timeout:  Duration(60 * time.Second),
		},
		Generator: GeneratorConfig{
			Provider:       "openrouter",
			Model:          "openai/gpt-4o-mini",
			BaseURL:        "https://openrouter.ai/api/v1",
			Title:          "devaudit",
			AttemptTimeout: Duration(4 * time.Minute),
			Heartbeat:      Duration(15 * time.Second),
			Build:          SamplingParams{Temperature: 0.2, MaxTokens: 16000},
			Regenerate:     SamplingParams{Temperature: 0.25, MaxTokens: 16000},
		},
		Store: StoreConfig{
			Path:     "devaudit.db",
			Timezone: "Europe/Moscow",
		},
		Redaction: secrets.DefaultConfig(),
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("server.shutdown_timeout must be positive")
	}

	if c.Taxonomy.Categories == "" || c.Taxonomy.Risks == "" {
		return errors.New("taxonomy.categories and taxonomy.risks are required")
	}
	if c.Index.CategoriesMatrix == "" || c.Index.RisksMatrix == "" {
		return errors.New("index.categories_matrix and index.risks_matrix are required")
	}
	if c.Index.K < 1 {
		return fmt.Errorf("index.k must be positive, got %d", c.Index.K)
	}

	switch c.Embeddings.Provider {
	case "openai", "tei", "fastembed":
	default:
		return fmt.Errorf("unknown embeddings provider %q (openai, tei or fastembed)", c.Embeddings.Provider)
	}

	switch c.Generator.Provider {
	case "openrouter", "openai", "anthropic":
	default:
		return fmt.Errorf("unknown generator provider %q (openrouter, openai or anthropic)", c.Generator.Provider)
	}
	if c.Generator.AttemptTimeout <= 0 {
		return errors.New("generator.attempt_timeout must be positive")
	}
	if c.Generator.RequestTimeout != 0 && c.Generator.RequestTimeout < c.Generator.AttemptTimeout {
		return fmt.Errorf("generator.request_timeout (%s) must not be shorter than generator.attempt_timeout (%s)",
			c.Generator.RequestTimeout.Duration(), c.Generator.AttemptTimeout.Duration())
	}
	for name, p := range map[string]SamplingParams{"build": c.Generator.Build, "regenerate": c.Generator.Regenerate} {
		if p.Temperature < 0 || p.Temperature > 2 {
			return fmt.Errorf("generator.%s.temperature must be between 0 and 2, got %v", name, p.Temperature)
		}
		if p.MaxTokens < 1 {
			return fmt.Errorf("generator.%s.max_tokens must be positive", name)
		}
	}

	if c.Store.Path == "" {
		return errors.New("store.path is required")
	}
	if _, err := c.Store.Location(); err != nil {
		return fmt.Errorf("invalid store.timezone %q: %w", c.Store.Timezone, err)
	}

	if !c.Auth.Disabled && !c.Auth.Password.IsSet() {
		return errors.New("auth.password is required unless auth.disabled is set")
	}
	return nil
}
