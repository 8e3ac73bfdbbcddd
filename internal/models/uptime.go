package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MinutesPerDay is the length of a day without a DST shift.
const MinutesPerDay = 1440

// RecordDateLayout is the storage format of UptimeHistory.RecordDate.
const RecordDateLayout = "2006-01-02"

// UptimeHistory is the daily uptime rollup of exactly one app, component or
// platform. (ScopeKey, RecordDate) is unique so recomputation upserts.
type UptimeHistory struct {
	ID          string  `gorm:"primaryKey" json:"id"`
	ScopeKey    string  `gorm:"uniqueIndex:idx_uptime_scope_date;not null" json:"-"`
	RecordDate  string  `gorm:"uniqueIndex:idx_uptime_scope_date;type:varchar(10);not null" json:"record_date"`
	AppID       *string `gorm:"index" json:"app_id,omitempty"`
	ComponentID *string `gorm:"index" json:"component_id,omitempty"`
	PlatformID  *string `gorm:"index" json:"platform_id,omitempty"`

	Status             Status          `json:"status"`
	UptimePercentage   decimal.Decimal `gorm:"type:decimal(6,3)" json:"uptime_percentage"`
	TotalMinutes       int             `json:"total_minutes"`
	OperationalMinutes int             `json:"operational_minutes"`
	DegradedMinutes    int             `json:"degraded_minutes"`
	OutageMinutes      int             `json:"outage_minutes"`
	MaintenanceMinutes int             `json:"maintenance_minutes"`
	IncidentCount      int             `json:"incident_count"`
	MaintenanceCount   int             `json:"maintenance_count"`

	CreatedAt time.Time `json:"created_at"`
}

var ErrUptimeScope = errors.New("uptime history row must reference exactly one of app, component or platform")

// SetScope points the row at ref, clearing the other scope columns.
func (u *UptimeHistory) SetScope(ref EntityRef) {
	id := ref.ID
	u.AppID, u.ComponentID, u.PlatformID = nil, nil, nil
	switch ref.Kind {
	case KindApp:
		u.AppID = &id
	case KindComponent:
		u.ComponentID = &id
	case KindPlatform:
		u.PlatformID = &id
	}
	u.ScopeKey = ref.String()
}

func (u *UptimeHistory) BeforeSave(tx *gorm.DB) (err error) {
	set := 0
	for _, p := range []*string{u.AppID, u.ComponentID, u.PlatformID} {
		if p != nil {
			set++
		}
	}
	if set != 1 {
		return ErrUptimeScope
	}
	return nil
}

func (u *UptimeHistory) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

// CheckHeartbeat is one probe outcome for an entity.
type CheckHeartbeat struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	EntityKind EntityKind `json:"entity_kind" gorm:"index:idx_heartbeat_entity"`
	EntityID   string     `json:"entity_id" gorm:"index:idx_heartbeat_entity"`
	Success    bool       `json:"success"`
	DurationMs int64      `json:"duration_ms"`
	Message    string     `json:"message"`
	CreatedAt  time.Time  `json:"created_at" gorm:"index"`
}
