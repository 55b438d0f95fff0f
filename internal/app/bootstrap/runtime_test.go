package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/medreach/clinic-reminder-bot/internal/config"
	"github.com/medreach/clinic-reminder-bot/internal/dialog"
)

func testConfig(t *testing.T) *appconfig.Config {
	t.Helper()
	dir := t.TempDir()

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	return &appconfig.Config{
		UsersCSVPath:    filepath.Join(dir, "db.csv"),
		TomorrowCSVPath: write("tomorrow.csv", "Телефон,ДатаНачала,ИДВрач,ИДФилиал,Подтверждение,Перезапись\n"),
		TwoHoursCSVPath: write("2hours.csv", "Телефон,ДатаНачала,ИДВрач,ИДФилиал\n"),
		ReviewsCSVPath:  write("reviews.csv", "Телефон,ДатаНачала,Отзыв\n"),
		ClinicTimezone:  "Europe/Moscow",
		ScanInterval:    5 * time.Minute,
		ScanConcurrency: 4,
		FollowupDelay:   15 * time.Minute,
		DialogTTL:       24 * time.Hour,
	}
}

func TestBuildWiresEnabledChannels(t *testing.T) {
	cfg := testConfig(t)
	cfg.TelegramBotToken = "tok"
	cfg.GreenAPIInstanceID = "11"
	cfg.GreenAPIToken = "secret"

	rt, err := Build(context.Background(), cfg, prometheus.NewRegistry(), nil)
	require.NoError(t, err)

	require.NotNil(t, rt.Telegram)
	require.NotNil(t, rt.WhatsApp)
	assert.NotNil(t, rt.Telegram.Machine)
	assert.NotNil(t, rt.Telegram.Coordinator)
	assert.NotNil(t, rt.WhatsApp.Followups)
	assert.NotNil(t, rt.TelegramClient)
	assert.NotNil(t, rt.GreenAPIClient)

	// Users table is created on first run.
	_, err = os.Stat(cfg.UsersCSVPath)
	assert.NoError(t, err)
}

func TestBuildTelegramOnly(t *testing.T) {
	cfg := testConfig(t)
	cfg.TelegramBotToken = "tok"

	rt, err := Build(context.Background(), cfg, prometheus.NewRegistry(), nil)
	require.NoError(t, err)
	assert.NotNil(t, rt.Telegram)
	assert.Nil(t, rt.WhatsApp)
	assert.Nil(t, rt.GreenAPIClient)
}

func TestBuildFailsWithoutTransports(t *testing.T) {
	cfg := testConfig(t)
	_, err := Build(context.Background(), cfg, prometheus.NewRegistry(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no transport configured")
}

func TestBuildFailsOnBadTimezone(t *testing.T) {
	cfg := testConfig(t)
	cfg.TelegramBotToken = "tok"
	cfg.ClinicTimezone = "Mars/Olympus"
	_, err := Build(context.Background(), cfg, prometheus.NewRegistry(), nil)
	require.Error(t, err)
}

func TestBuildRegistersCollectorsPerRegistry(t *testing.T) {
	cfg := testConfig(t)
	cfg.TelegramBotToken = "tok"

	// Two runtimes in one process must not collide on metric registration.
	reg1 := prometheus.NewRegistry()
	rt1, err := Build(context.Background(), cfg, reg1, nil)
	require.NoError(t, err)

	cfg2 := testConfig(t)
	cfg2.TelegramBotToken = "tok"
	rt2, err := Build(context.Background(), cfg2, prometheus.NewRegistry(), nil)
	require.NoError(t, err)
	assert.NotNil(t, rt2.ScanMetrics)

	// Collectors land on the registry the runtime was built with.
	rt1.ScanMetrics.ObserveSkippedRun()
	families, err := reg1.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "clinic_scan_skipped_runs_total" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestBuildStateStoreFallsBackToMemory(t *testing.T) {
	s := BuildStateStore(nil, "telegram", time.Hour)
	_, ok := s.(*dialog.MemoryStateStore)
	assert.True(t, ok)
}
