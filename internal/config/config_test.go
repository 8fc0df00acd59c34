package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mailcache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "imap:\n  host: mail.example.com\n"))
	require.NoError(t, err)

	assert.Equal(t, "file", cfg.CacheBackend)
	assert.True(t, cfg.CacheEnabled)
	assert.Equal(t, 90, cfg.MaxCacheAgeDays)
	assert.Equal(t, 25, cfg.RemoteBatchSize)
	assert.Equal(t, 3, cfg.TextFetchWorkers)
	assert.Equal(t, 3, cfg.RetryMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBaseDelay)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "mail.example.com", cfg.IMAP.Host)
	assert.Equal(t, 993, cfg.IMAP.Port)
	assert.Equal(t, "INBOX", cfg.IMAP.Mailbox)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
cache_backend: sqlite
cache_enabled: false
max_cache_age_days: 30
log_level: debug
imap:
  host: mail.example.com
  port: 1993
`))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.CacheBackend)
	assert.False(t, cfg.CacheEnabled)
	assert.Equal(t, 30, cfg.MaxCacheAgeDays)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 1993, cfg.IMAP.Port)
}

func TestLoadRejectsInvalidBackend(t *testing.T) {
	_, err := Load(writeConfig(t, "cache_backend: redis\n"))
	assert.ErrorContains(t, err, "cache_backend")
}

func TestLoadRejectsNonPositiveValues(t *testing.T) {
	_, err := Load(writeConfig(t, "max_cache_age_days: 0\n"))
	assert.ErrorContains(t, err, "max_cache_age_days")

	_, err = Load(writeConfig(t, "remote_batch_size: -1\n"))
	assert.ErrorContains(t, err, "remote_batch_size")
}

func TestValidateExpandsHome(t *testing.T) {
	cfg, err := Load(writeConfig(t, "cache_dir: ~/cache-here\n"))
	require.NoError(t, err)

	home, err2 := os.UserHomeDir()
	require.NoError(t, err2)
	assert.Equal(t, filepath.Join(home, "cache-here"), cfg.CacheDir)
}
