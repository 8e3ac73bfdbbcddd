package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard/backend/internal/models"
	"github.com/pulseboard/pulseboard/backend/internal/util"
)

func TestMaintenanceService_ScheduleAndRefresh(t *testing.T) {
	db := setupServiceDB(t)
	h := seedHierarchy(t, db, 2, 3)
	clock := util.NewFixedClock(testNow)
	svc := NewMaintenanceService(db, nil, clock)
	ctx := context.Background()

	m, err := svc.Schedule(ctx, ScheduleMaintenanceInput{
		AppID:        h.App.ID,
		Title:        "Database upgrade",
		StartsAt:     testNow.Add(time.Hour),
		EndsAt:       testNow.Add(3 * time.Hour),
		ComponentIDs: []string{h.Comps[0].ID, h.Comps[0].ID},
	})
	require.NoError(t, err)
	assert.Equal(t, models.MaintenanceScheduled, m.Status)
	assert.Len(t, m.Components, 1)

	n, err := svc.RefreshStatuses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	clock.Advance(90 * time.Minute)
	n, err = svc.RefreshStatuses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := svc.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MaintenanceInProgress, got.Status)

	clock.Advance(2 * time.Hour)
	_, err = svc.RefreshStatuses(ctx)
	require.NoError(t, err)
	got, err = svc.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MaintenanceCompleted, got.Status)

	_, err = svc.Cancel(ctx, m.ID)
	assert.ErrorIs(t, err, ErrMaintenanceClosed)
}

func TestMaintenanceService_CancelExcludesWindow(t *testing.T) {
	db := setupServiceDB(t)
	h := seedHierarchy(t, db, 1, 3)
	clock := util.NewFixedClock(testNow)
	svc := NewMaintenanceService(db, nil, clock)
	overlay := NewOverlayService(db, clock)
	ctx := context.Background()

	m, err := svc.Schedule(ctx, ScheduleMaintenanceInput{
		AppID:    h.App.ID,
		Title:    "Live migration",
		StartsAt: testNow.Add(-time.Hour),
		EndsAt:   testNow.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, models.MaintenanceInProgress, m.Status)

	active, err := overlay.ActiveMaintenance(ctx, compRef(h.Comps[0].ID), testNow)
	require.NoError(t, err)
	assert.Len(t, active, 1, "app-wide window covers every component")

	m, err = svc.Cancel(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MaintenanceCancelled, m.Status)

	active, err = overlay.ActiveMaintenance(ctx, compRef(h.Comps[0].ID), testNow)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = svc.Cancel(ctx, m.ID)
	assert.ErrorIs(t, err, ErrMaintenanceClosed)

	upcoming, err := svc.List(ctx, h.App.ID, true)
	require.NoError(t, err)
	assert.Empty(t, upcoming)
}

func TestMaintenanceService_Validation(t *testing.T) {
	db := setupServiceDB(t)
	h := seedHierarchy(t, db, 1, 3)
	svc := NewMaintenanceService(db, nil, util.NewFixedClock(testNow))
	ctx := context.Background()

	_, err := svc.Schedule(ctx, ScheduleMaintenanceInput{AppID: h.App.ID, Title: "x", StartsAt: testNow, EndsAt: testNow})
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = svc.Schedule(ctx, ScheduleMaintenanceInput{AppID: "nope", Title: "x", StartsAt: testNow, EndsAt: testNow.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrEntityNotFound)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMaintenanceMissing)
}
