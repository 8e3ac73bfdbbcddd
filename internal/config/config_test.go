package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PULSE_DB_DSN", filepath.Join(t.TempDir(), "nested", "pulse.db"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.True(t, cfg.HealthCheck.Enabled)
	assert.Equal(t, 10000, cfg.HealthCheck.SchedulerIntervalMs)
	assert.Equal(t, 10, cfg.HealthCheck.ThreadPoolSize)
	assert.Equal(t, MaintenanceCountsAgainstUptime, cfg.Uptime.MaintenancePolicy)
	assert.Equal(t, 5*time.Minute, cfg.Uptime.HistoryCacheTTL)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.DirExists(t, filepath.Dir(cfg.DatabaseDSN))
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PULSE_DB_DSN", filepath.Join(t.TempDir(), "pulse.db"))
	t.Setenv("PULSE_HEALTH_CHECK_POOL_SIZE", "4")
	t.Setenv("PULSE_HEALTH_CHECK_ENABLED", "false")
	t.Setenv("PULSE_UPTIME_MAINTENANCE_POLICY", "EXCLUDE")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.HealthCheck.ThreadPoolSize)
	assert.False(t, cfg.HealthCheck.Enabled)
	assert.Equal(t, MaintenanceExcludedFromUptime, cfg.Uptime.MaintenancePolicy)
}

func TestLoadRejectsUnknownPolicy(t *testing.T) {
	t.Setenv("PULSE_DB_DSN", filepath.Join(t.TempDir(), "pulse.db"))
	t.Setenv("PULSE_UPTIME_MAINTENANCE_POLICY", "ignore")

	_, err := Load()
	assert.Error(t, err)
}
