package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_RejectsConfigOutsideAllowedDirs(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	err := run(context.Background(), filepath.Join(t.TempDir(), "config.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config path validation failed")
}

func TestRun_RequiresPassword(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".config", "devaudit"), 0700))

	err := run(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.password")
}

func TestRun_MissingTaxonomy(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", "devaudit")
	require.NoError(t, os.MkdirAll(dir, 0700))
	t.Setenv("DEVAUDIT_AUTH_PASSWORD", "pw")
	t.Setenv("DEVAUDIT_STORE_PATH", filepath.Join(home, "audit.db"))
	t.Setenv("DEVAUDIT_TAXONOMY_CATEGORIES", filepath.Join(home, "missing.json"))
	t.Setenv("DEVAUDIT_EMBEDDINGS_PROVIDER", "tei")
	t.Setenv("DEVAUDIT_EMBEDDINGS_BASE_URL", "http://127.0.0.1:1")

	err := run(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open catalog")
}
