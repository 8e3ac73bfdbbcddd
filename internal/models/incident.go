package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type IncidentStatus string

const (
	IncidentInvestigating IncidentStatus = "INVESTIGATING"
	IncidentIdentified    IncidentStatus = "IDENTIFIED"
	IncidentMonitoring    IncidentStatus = "MONITORING"
	IncidentResolved      IncidentStatus = "RESOLVED"
)

type IncidentSeverity string

const (
	SeverityMinor    IncidentSeverity = "MINOR"
	SeverityMajor    IncidentSeverity = "MAJOR"
	SeverityCritical IncidentSeverity = "CRITICAL"
)

// Incident is an operator-declared disruption of an app. ResolvedAt nil means ongoing.
type Incident struct {
	ID         string              `gorm:"primaryKey" json:"id"`
	AppID      string              `json:"app_id" gorm:"index;not null"`
	Title      string              `json:"title"`
	Status     IncidentStatus      `json:"status"`
	Severity   IncidentSeverity    `json:"severity"`
	StartedAt  time.Time           `json:"started_at" gorm:"index"`
	ResolvedAt *time.Time          `json:"resolved_at" gorm:"index"`
	IsPublic   bool                `json:"is_public"`
	Updates    []IncidentUpdate    `json:"updates,omitempty" gorm:"foreignKey:IncidentID"`
	Components []IncidentComponent `json:"components,omitempty" gorm:"foreignKey:IncidentID"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// IncidentUpdate entries are append-only.
type IncidentUpdate struct {
	ID         string         `gorm:"primaryKey" json:"id"`
	IncidentID string         `json:"incident_id" gorm:"index"`
	Status     IncidentStatus `json:"status"`
	Message    string         `json:"message"`
	CreatedAt  time.Time      `json:"created_at"`
}

// IncidentComponent marks a component as affected by an incident.
type IncidentComponent struct {
	IncidentID      string `gorm:"primaryKey" json:"incident_id"`
	ComponentID     string `gorm:"primaryKey" json:"component_id"`
	ComponentStatus Status `json:"component_status"`
}

// IsResolved reports whether the incident reached its terminal state.
func (i *Incident) IsResolved() bool {
	return i.Status == IncidentResolved
}

// Affects reports whether componentID is in the affected set.
func (i *Incident) Affects(componentID string) bool {
	for _, c := range i.Components {
		if c.ComponentID == componentID {
			return true
		}
	}
	return false
}

func (i *Incident) BeforeCreate(tx *gorm.DB) (err error) {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	if i.Status == "" {
		i.Status = IncidentInvestigating
	}
	if i.Severity == "" {
		i.Severity = SeverityMinor
	}
	return
}

func (u *IncidentUpdate) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}
