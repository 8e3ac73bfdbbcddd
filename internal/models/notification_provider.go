package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationEvent classifies an outbound message so providers can opt out.
type NotificationEvent string

const (
	EventStatusChange NotificationEvent = "uptime"
	EventIncident     NotificationEvent = "incident"
	EventMaintenance  NotificationEvent = "maintenance"
)

// NotificationProvider is an external destination addressed by a shoutrrr
// service URL (slack://, discord://, generic+https://, ...).
type NotificationProvider struct {
	ID      string `gorm:"primaryKey" json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	URL     string `json:"url"`
	Enabled bool   `json:"enabled" gorm:"index"`

	NotifyUptime      bool `json:"notify_uptime" gorm:"default:true"`
	NotifyIncidents   bool `json:"notify_incidents" gorm:"default:true"`
	NotifyMaintenance bool `json:"notify_maintenance" gorm:"default:true"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Wants reports whether p is subscribed to event. Unknown events go to every
// provider.
func (p NotificationProvider) Wants(event NotificationEvent) bool {
	switch event {
	case EventStatusChange:
		return p.NotifyUptime
	case EventIncident:
		return p.NotifyIncidents
	case EventMaintenance:
		return p.NotifyMaintenance
	}
	return true
}

func (p *NotificationProvider) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return
}
