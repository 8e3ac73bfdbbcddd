package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MaintenanceStatus string

const (
	MaintenanceScheduled  MaintenanceStatus = "SCHEDULED"
	MaintenanceInProgress MaintenanceStatus = "IN_PROGRESS"
	MaintenanceCompleted  MaintenanceStatus = "COMPLETED"
	MaintenanceCancelled  MaintenanceStatus = "CANCELLED"
)

// Maintenance is a planned window on an app. An empty component set means the
// whole app is under maintenance.
type Maintenance struct {
	ID         string                 `gorm:"primaryKey" json:"id"`
	AppID      string                 `json:"app_id" gorm:"index;not null"`
	Title      string                 `json:"title"`
	Status     MaintenanceStatus      `json:"status"`
	StartsAt   time.Time              `json:"starts_at" gorm:"index"`
	EndsAt     time.Time              `json:"ends_at" gorm:"index"`
	IsPublic   bool                   `json:"is_public"`
	Components []MaintenanceComponent `json:"components,omitempty" gorm:"foreignKey:MaintenanceID"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

type MaintenanceComponent struct {
	MaintenanceID string `gorm:"primaryKey" json:"maintenance_id"`
	ComponentID   string `gorm:"primaryKey" json:"component_id"`
}

// Covers reports whether the window targets componentID, either directly or
// because it spans the whole app.
func (m *Maintenance) Covers(componentID string) bool {
	if len(m.Components) == 0 {
		return true
	}
	for _, c := range m.Components {
		if c.ComponentID == componentID {
			return true
		}
	}
	return false
}

// ActiveAt reports whether t falls inside [StartsAt, EndsAt) of a window that
// was not cancelled.
func (m *Maintenance) ActiveAt(t time.Time) bool {
	if m.Status == MaintenanceCancelled {
		return false
	}
	return !t.Before(m.StartsAt) && t.Before(m.EndsAt)
}

// StatusAt derives the time-driven status. Cancelled windows stay cancelled.
func (m *Maintenance) StatusAt(t time.Time) MaintenanceStatus {
	switch {
	case m.Status == MaintenanceCancelled:
		return MaintenanceCancelled
	case t.Before(m.StartsAt):
		return MaintenanceScheduled
	case t.Before(m.EndsAt):
		return MaintenanceInProgress
	default:
		return MaintenanceCompleted
	}
}

func (m *Maintenance) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Status == "" {
		m.Status = MaintenanceScheduled
	}
	return
}
