package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMaintenance_StatusAtAndActive(t *testing.T) {
	start := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	m := Maintenance{StartsAt: start, EndsAt: start.Add(2 * time.Hour), Status: MaintenanceScheduled}

	assert.Equal(t, MaintenanceScheduled, m.StatusAt(start.Add(-time.Minute)))
	assert.Equal(t, MaintenanceInProgress, m.StatusAt(start))
	assert.Equal(t, MaintenanceCompleted, m.StatusAt(start.Add(2*time.Hour)))

	assert.True(t, m.ActiveAt(start))
	assert.False(t, m.ActiveAt(start.Add(2*time.Hour)), "end is exclusive")

	m.Status = MaintenanceCancelled
	assert.False(t, m.ActiveAt(start.Add(time.Minute)))
	assert.Equal(t, MaintenanceCancelled, m.StatusAt(start.Add(time.Minute)))
}

func TestMaintenance_Covers(t *testing.T) {
	appWide := Maintenance{}
	assert.True(t, appWide.Covers("any"))

	scoped := Maintenance{Components: []MaintenanceComponent{{ComponentID: "c1"}}}
	assert.True(t, scoped.Covers("c1"))
	assert.False(t, scoped.Covers("c2"))
}
