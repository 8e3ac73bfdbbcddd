package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pulseboard/pulseboard/backend/internal/config"
	"github.com/pulseboard/pulseboard/backend/internal/database"
	"github.com/pulseboard/pulseboard/backend/internal/logger"
	"github.com/pulseboard/pulseboard/backend/internal/models"
	"github.com/pulseboard/pulseboard/backend/internal/services"
	"github.com/pulseboard/pulseboard/backend/internal/util"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T, cfg config.UptimeConfig) (*gorm.DB, *util.FixedClock, *services.MaintenanceService, *services.UptimeRecorder) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	clock := util.NewFixedClock(now)
	overlay := services.NewOverlayService(db, clock)
	return db, clock,
		services.NewMaintenanceService(db, nil, clock),
		services.NewUptimeRecorder(db, overlay, clock, time.UTC, cfg, nil)
}

func TestNew_RejectsBadSchedule(t *testing.T) {
	_, _, maint, rec := setup(t, config.UptimeConfig{})
	_, err := New(rec, maint, config.UptimeConfig{RecorderCron: "not a schedule"}, time.UTC)
	assert.Error(t, err)
}

func TestNew_RegistersJobs(t *testing.T) {
	cfg := config.UptimeConfig{RecorderCron: "10 0 * * *", MaintenancePolicy: config.MaintenanceCountsAgainstUptime}
	_, _, maint, rec := setup(t, cfg)
	r, err := New(rec, maint, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Entries())
}

func TestRefreshMaintenance(t *testing.T) {
	cfg := config.UptimeConfig{RecorderCron: "10 0 * * *", MaintenancePolicy: config.MaintenanceCountsAgainstUptime}
	db, clock, maint, rec := setup(t, cfg)
	ctx := context.Background()

	app := models.App{Name: "api"}
	require.NoError(t, db.Create(&app).Error)
	m, err := maint.Schedule(ctx, services.ScheduleMaintenanceInput{
		AppID: app.ID, Title: "patch", StartsAt: now.Add(30 * time.Second), EndsAt: now.Add(time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, models.MaintenanceScheduled, m.Status)

	r, err := New(rec, maint, cfg, time.UTC)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	r.refreshMaintenance(ctx)

	got, err := maint.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MaintenanceInProgress, got.Status)
}

func TestBackfill(t *testing.T) {
	cfg := config.UptimeConfig{RecorderCron: "10 0 * * *", BackfillDays: 3, MaintenancePolicy: config.MaintenanceCountsAgainstUptime}
	db, _, maint, rec := setup(t, cfg)

	app := models.App{Name: "api", CreatedAt: now.AddDate(0, 0, -10)}
	require.NoError(t, db.Create(&app).Error)

	r, err := New(rec, maint, cfg, time.UTC)
	require.NoError(t, err)
	r.backfill(context.Background())

	var count int64
	require.NoError(t, db.Model(&models.UptimeHistory{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}

func TestCronLoggerFields(t *testing.T) {
	f := fields([]interface{}{"entry", 1, "dangling"})
	assert.Equal(t, 1, f["entry"])
	assert.Len(t, f, 1)

	assert.NotPanics(t, func() {
		cronLogger{entry: logger.Log()}.Error(errors.New("boom"), "job failed", "now", now)
	})
}
