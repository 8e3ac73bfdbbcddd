package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotificationType string

const (
	NotificationTypeInfo    NotificationType = "info"
	NotificationTypeSuccess NotificationType = "success"
	NotificationTypeWarning NotificationType = "warning"
	NotificationTypeError   NotificationType = "error"
)

// Notification is an operator inbox entry. Status-change entries carry the
// entity they are about; system entries leave EntityKind empty.
type Notification struct {
	ID         string           `gorm:"primaryKey" json:"id"`
	Type       NotificationType `json:"type"`
	Title      string           `json:"title"`
	Message    string           `json:"message"`
	EntityKind EntityKind       `json:"entity_kind,omitempty" gorm:"index:idx_notification_entity"`
	EntityID   string           `json:"entity_id,omitempty" gorm:"index:idx_notification_entity"`
	Read       bool             `json:"read" gorm:"index"`
	CreatedAt  time.Time        `json:"created_at" gorm:"index"`
}

// Entity returns the referenced entity, or false for system entries.
func (n Notification) Entity() (EntityRef, bool) {
	if n.EntityKind == "" {
		return EntityRef{}, false
	}
	return EntityRef{Kind: n.EntityKind, ID: n.EntityID}, true
}

func (n *Notification) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return
}
