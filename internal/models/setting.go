package models

import "time"

// Setting is a single key/value pair of runtime configuration.
type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"uniqueIndex;not null" json:"key"`
	Value     string    `json:"value"`
	Type      string    `json:"type"`     // string, int, bool
	Category  string    `json:"category"` // e.g. health_check
	UpdatedAt time.Time `json:"updated_at"`
}
