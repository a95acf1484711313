package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, "2025-10-09", cfg.Season.Anchor)
	assert.Equal(t, "America/Los_Angeles", cfg.Season.Timezone)
	assert.Equal(t, 14, cfg.Season.LengthDays)
	assert.Equal(t, 5, cfg.Leaderboard.DefaultLimit)
	assert.Equal(t, time.Minute, cfg.Scheduler.Interval)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "hunter2")
	path := writeConfig(t, "postgres:\n  password: ${TEST_DB_PASSWORD}\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("SPOTBOT_STORAGE_DRIVER", "sqlite")
	t.Setenv("SPOTBOT_AUTH_ADMIN_IDS", "U1,U2")
	t.Setenv("SPOTBOT_SCHEDULER_INTERVAL", "30s")
	path := writeConfig(t, "storage:\n  driver: postgres\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, []string{"U1", "U2"}, cfg.Auth.AdminIDs)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.Interval)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestSeasonAnchorTime(t *testing.T) {
	cfg := DefaultConfig()

	anchor, err := cfg.Season.AnchorTime()
	require.NoError(t, err)

	assert.Equal(t, "America/Los_Angeles", anchor.Location().String())
	assert.Equal(t, 0, anchor.Hour())
	assert.Equal(t, "2025-10-09", anchor.Format("2006-01-02"))
}

func TestSeasonAnchorRejectsBadTimezone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Season.Timezone = "Mars/Olympus"

	_, err := cfg.Season.AnchorTime()
	require.Error(t, err)
}
