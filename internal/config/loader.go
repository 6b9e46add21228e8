package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "DEVAUDIT_"
)

// Source is a loaded configuration tree.
type Source struct {
	k    *koanf.Koanf
	path string
}

// Read loads the YAML file at path, then applies environment overrides.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DEVAUDIT_SERVER_PORT, DEVAUDIT_AUTH_PASSWORD, etc.)
//  2. YAML config file (~/.config/devaudit/config.yaml)
//  3. Defaults
//
// A missing file is not an error. An existing file must live under
// ~/.config/devaudit/ or /etc/devaudit/, be at most 1MB and have 0600 or 0400
// permissions.
//
// # Environment Variable Mapping
//
// The prefix is stripped and the first underscore separates the section from
// the field. A double underscore descends one more level:
//
//	DEVAUDIT_SERVER_PORT              -> server.port
//	DEVAUDIT_GENERATOR_API_KEY        -> generator.api_key
//	DEVAUDIT_GENERATOR_BUILD__MAX_TOKENS -> generator.build.max_tokens
func Read(path string) (*Source, error) {
	k := koanf.New(".")

	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	return &Source{k: k, path: path}, nil
}

// Load reads the configuration and validates it.
func Load(path string) (*Config, error) {
	src, err := Read(path)
	if err != nil {
		return nil, err
	}
	return src.Config()
}

// Path returns the file the Source was read from.
func (s *Source) Path() string {
	return s.path
}

// Config decodes the devaudit sections over Default and validates them.
func (s *Source) Config() (*Config, error) {
	cfg := Default()
	if err := s.k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Section decodes the subtree at key into out. Values already in out are
// kept for keys the subtree does not set.
func (s *Source) Section(key string, out any) error {
	if err := s.k.Unmarshal(key, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s config: %w", key, err)
	}
	return nil
}

// DefaultPath returns ~/.config/devaudit/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "devaudit", "config.yaml"), nil
}

// EnsureConfigDir creates ~/.config/devaudit with 0700 permissions.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	dir := filepath.Join(home, ".config", "devaudit")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	return nil
}

func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	lower = strings.ReplaceAll(lower, "__", ".")
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

// readConfigFile opens the file once and validates the open descriptor to
// avoid a TOCTOU race.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// validateConfigPath checks that path resolves inside an allowed directory.
// It runs even if the file does not exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolved = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	allowed := []string{
		filepath.Join(home, ".config", "devaudit"),
		"/etc/devaudit",
	}
	for _, dir := range allowed {
		rel, err := filepath.Rel(dir, resolved)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/devaudit/ or /etc/devaudit/")
}

func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}
