package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.ScanInterval)
	assert.Equal(t, 15*time.Minute, cfg.FollowupDelay)
	assert.Equal(t, 2*time.Second, cfg.ScoreThanksDelay)
	assert.Equal(t, 1500*time.Millisecond, cfg.DetailThanksDelay)
	assert.Equal(t, "Europe/Moscow", cfg.ClinicTimezone)
	assert.False(t, cfg.TelegramEnabled())
	assert.False(t, cfg.GreenAPIEnabled())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("GREEN_API_INSTANCE_ID", "1101000001")
	t.Setenv("GREEN_API_TOKEN", "secret")
	t.Setenv("SCAN_INTERVAL", "90s")
	t.Setenv("SCAN_CONCURRENCY", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.TelegramEnabled())
	assert.True(t, cfg.GreenAPIEnabled())
	assert.Equal(t, 90*time.Second, cfg.ScanInterval)
	assert.Equal(t, 3, cfg.ScanConcurrency)
}

func TestLoadConfigFileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	content := `
log_level: debug
tables:
  db: /var/lib/bot/db.csv
  tomorrow: /var/lib/bot/tomorrow.csv
telegram:
  token: file-token
  manager_id: "195305791"
scan_interval: 2m
timezone: Europe/Moscow
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")

	cfg, err := Load()
	require.NoError(t, err)

	// File values override env values.
	assert.Equal(t, "file-token", cfg.TelegramBotToken)
	assert.Equal(t, "195305791", cfg.TelegramManagerID)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/var/lib/bot/db.csv", cfg.UsersCSVPath)
	assert.Equal(t, "/var/lib/bot/tomorrow.csv", cfg.TomorrowCSVPath)
	assert.Equal(t, 2*time.Minute, cfg.ScanInterval)
	// Untouched fields keep their defaults.
	assert.Equal(t, "data/Reviews.csv", cfg.ReviewsCSVPath)
}

func TestLoadConfigFileBadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("scan_interval: soon\n"), 0o600))

	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scan_interval")
}
