package services

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pulseboard/pulseboard/backend/internal/config"
	"github.com/pulseboard/pulseboard/backend/internal/database"
)

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=5000&_journal_mode=WAL"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func testHealthDefaults() config.HealthCheckDefaults {
	return config.HealthCheckDefaults{
		Enabled:                true,
		SchedulerIntervalMs:    10000,
		ThreadPoolSize:         10,
		DefaultIntervalSeconds: 60,
		DefaultTimeoutSeconds:  10,
	}
}

func testUptimeConfig() config.UptimeConfig {
	return config.UptimeConfig{
		RecorderCron:      "10 0 * * *",
		BackfillDays:      7,
		MaintenancePolicy: config.MaintenanceCountsAgainstUptime,
	}
}

func netIP(s string) net.IP { return net.ParseIP(s) }
