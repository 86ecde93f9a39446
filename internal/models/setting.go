package models

import "time"

// Setting is a generic key/value row for small pieces of persisted state.
type Setting struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Key       string    `json:"key" gorm:"uniqueIndex"`
	Value     string    `json:"value" gorm:"type:text"`
	Category  string    `json:"category" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`
}
