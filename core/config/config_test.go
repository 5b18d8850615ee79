package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "cta-dev", cfg.Storage.Bucket)
	assert.Equal(t, "fs", cfg.Archive.Backend)
	assert.Equal(t, "zstd", cfg.Relay.Codec)
	assert.Equal(t, 80, cfg.Relay.S3Threads)
	assert.Equal(t, 3, cfg.Relay.ListRetries)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("STORAGE_BUCKET", "cta-prod")
	t.Setenv("RELAY_ARCHIVE_THREADS", "7")
	t.Setenv("ARCHIVE_BACKEND", "gcs")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "cta-prod", cfg.Storage.Bucket)
	assert.Equal(t, 7, cfg.Relay.ArchiveThreads)
	assert.Equal(t, "gcs", cfg.Archive.Backend)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LOG_FORMAT=console\nSERVER_API_KEY=secret\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("LOG_FORMAT")
		os.Unsetenv("SERVER_API_KEY")
	})

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "secret", cfg.Server.ApiKey)
}
