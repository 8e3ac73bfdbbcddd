package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EntityKind names one of the three checkable tables.
type EntityKind string

const (
	KindApp       EntityKind = "app"
	KindComponent EntityKind = "component"
	KindPlatform  EntityKind = "platform"
)

// ParseEntityKind accepts both the singular kind and the plural route segment.
func ParseEntityKind(v string) (EntityKind, error) {
	switch v {
	case "app", "apps":
		return KindApp, nil
	case "component", "components":
		return KindComponent, nil
	case "platform", "platforms":
		return KindPlatform, nil
	}
	return "", fmt.Errorf("unknown entity kind %q", v)
}

// EntityRef identifies a single app, component or platform.
type EntityRef struct {
	Kind EntityKind `json:"kind"`
	ID   string     `json:"id"`
}

func (r EntityRef) String() string {
	return string(r.Kind) + ":" + r.ID
}

// CheckConfig is the stored health-check configuration of an entity.
type CheckConfig struct {
	CheckEnabled          bool      `json:"check_enabled"`
	CheckType             CheckType `json:"check_type" gorm:"default:NONE"`
	CheckURL              string    `json:"check_url"`
	CheckIntervalSeconds  int       `json:"check_interval_seconds"`
	CheckTimeoutSeconds   int       `json:"check_timeout_seconds"`
	CheckExpectedStatus   int       `json:"check_expected_status"` // HTTP_GET only, 0 means 200
	CheckFailureThreshold int       `json:"check_failure_threshold" gorm:"default:3"`
}

// CheckState is the mutable result of the most recent probes. Only the
// status aggregator writes it.
type CheckState struct {
	LastCheckAt         *time.Time `json:"last_check_at"`
	LastCheckSuccess    *bool      `json:"last_check_success"`
	LastCheckMessage    string     `json:"last_check_message"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	// ProbeStatus is the entity's own probe verdict; Status additionally
	// folds in children for apps and platforms.
	ProbeStatus Status `json:"probe_status" gorm:"default:OPERATIONAL"`
}

type Platform struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	OrganizationID string    `json:"organization_id" gorm:"index"`
	Name           string    `json:"name"`
	Status         Status    `json:"status" gorm:"default:OPERATIONAL"`
	CheckConfig    `gorm:"embedded"`
	CheckState     `gorm:"embedded"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type App struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	OrganizationID string    `json:"organization_id" gorm:"index"`
	PlatformID     *string   `json:"platform_id" gorm:"index"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Status         Status    `json:"status" gorm:"default:OPERATIONAL"`
	CheckConfig    `gorm:"embedded"`
	CheckState     `gorm:"embedded"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Component struct {
	ID          string `gorm:"primaryKey" json:"id"`
	AppID       string `json:"app_id" gorm:"index;not null"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      Status `json:"status" gorm:"default:OPERATIONAL"`
	// CheckInheritFromApp makes the probe use the parent app's check target.
	// Counters and status stay the component's own.
	CheckInheritFromApp bool `json:"check_inherit_from_app"`
	CheckConfig         `gorm:"embedded"`
	CheckState          `gorm:"embedded"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (p *Platform) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	fillDefaults(&p.Status, &p.CheckConfig, &p.CheckState)
	return
}

func (a *App) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	fillDefaults(&a.Status, &a.CheckConfig, &a.CheckState)
	return
}

func (c *Component) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	fillDefaults(&c.Status, &c.CheckConfig, &c.CheckState)
	return
}

func fillDefaults(status *Status, cfg *CheckConfig, state *CheckState) {
	if *status == "" {
		*status = StatusOperational
	}
	if cfg.CheckType == "" {
		cfg.CheckType = CheckTypeNone
	}
	if cfg.CheckFailureThreshold < 1 {
		cfg.CheckFailureThreshold = 3
	}
	if state.ProbeStatus == "" {
		state.ProbeStatus = StatusOperational
	}
}
