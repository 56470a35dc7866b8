package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAndExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "composer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_mode: production
postgres:
  host: db.internal
  port: "5433"
  name: composer
redis:
  addr: cache.internal:6379
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "production", cfg.LogMode)
	require.Equal(t, "db.internal", cfg.Postgres.Host)
	require.Equal(t, "cache.internal:6379", cfg.Redis.Addr)

	// A set env var wins over the file; unset ones take file values.
	t.Setenv("POSTGRES_HOST", "override.internal")
	os.Unsetenv("POSTGRES_PORT")
	os.Unsetenv("REDIS_ADDR")
	t.Cleanup(func() {
		os.Unsetenv("POSTGRES_PORT")
		os.Unsetenv("REDIS_ADDR")
	})

	cfg.Export()
	require.Equal(t, "override.internal", os.Getenv("POSTGRES_HOST"))
	require.Equal(t, "5433", os.Getenv("POSTGRES_PORT"))
	require.Equal(t, "cache.internal:6379", os.Getenv("REDIS_ADDR"))
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadWithoutFileUsesZeroConfig(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)
	require.Empty(t, cfg.LogMode)
}
