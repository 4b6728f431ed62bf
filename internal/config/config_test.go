package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	t.Parallel()
	cfg := Default()
	assert.Equal(t, 8, cfg.Governor.MaxWorkers)
	assert.Equal(t, 50, cfg.Governor.RecycleAfter)
	assert.Equal(t, 30*time.Second, cfg.Governor.FileTimeout)
	assert.Equal(t, 50000, cfg.Governor.MaxSteps)
	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	require.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
governor:
  max_workers: 4
  file_timeout: 5s
store:
  backend: bolt
  path: /tmp/graphs.bolt
languages: [go, python]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Governor.MaxWorkers)
	assert.Equal(t, 5*time.Second, cfg.Governor.FileTimeout)
	assert.Equal(t, 50, cfg.Governor.RecycleAfter, "unset keys keep defaults")
	assert.Equal(t, BackendBolt, cfg.Store.Backend)
	assert.Equal(t, []string{"go", "python"}, cfg.Languages)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "tok")
	t.Setenv("CALLGRAPH_STORE_PATH", "/tmp/override.db")
	t.Setenv("CALLGRAPH_LOG_LEVEL", "debug")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tok", cfg.GitHub.Token)
	assert.Equal(t, "/tmp/override.db", cfg.Store.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: redis\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store backend")
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Governor.MaxWorkers = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Governor.FileTimeout = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Governor.MaxSteps = -1
	assert.Error(t, cfg.Validate())
}
