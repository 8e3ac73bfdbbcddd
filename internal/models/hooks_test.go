package models

import (
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory db: %v", err)
	}
	if err := db.AutoMigrate(&App{}, &Component{}, &Platform{}, &Incident{}, &IncidentUpdate{}, &IncidentComponent{}, &Maintenance{}, &MaintenanceComponent{}, &UptimeHistory{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return db
}

func TestComponent_BeforeCreateDefaults(t *testing.T) {
	db := setupTestDB(t)
	c := &Component{AppID: "app-1", Name: "api"}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if c.ID == "" {
		t.Fatalf("expected ID to be populated by BeforeCreate")
	}
	if c.Status != StatusOperational {
		t.Fatalf("expected default status OPERATIONAL, got %q", c.Status)
	}
	if c.CheckType != CheckTypeNone {
		t.Fatalf("expected default check type NONE, got %q", c.CheckType)
	}
	if c.CheckFailureThreshold != 3 {
		t.Fatalf("expected default failure threshold 3, got %d", c.CheckFailureThreshold)
	}
}

func TestIncident_BeforeCreateDefaults(t *testing.T) {
	db := setupTestDB(t)
	i := &Incident{AppID: "app-1", Title: "db slow", StartedAt: time.Now()}
	if err := db.Create(i).Error; err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if i.Status != IncidentInvestigating {
		t.Fatalf("expected INVESTIGATING, got %q", i.Status)
	}
}

func TestUptimeHistory_CreateRejectsMissingScope(t *testing.T) {
	db := setupTestDB(t)
	row := &UptimeHistory{ScopeKey: "x", RecordDate: "2024-01-01"}
	if err := db.Create(row).Error; err == nil {
		t.Fatalf("expected scope validation error")
	}
}
