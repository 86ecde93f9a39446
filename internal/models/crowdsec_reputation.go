package models

import (
	"time"
)

// CrowdSecReputation caches one CTI smoke lookup. NotFound marks a confirmed
// "no data for this IP" answer, which is distinct from a row that does not exist.
type CrowdSecReputation struct {
	IP        string    `json:"ip" gorm:"primaryKey"`
	Payload   string    `json:"payload" gorm:"type:text"`
	NotFound  bool      `json:"not_found"`
	FetchedAt time.Time `json:"fetched_at"`
	ExpiresAt time.Time `json:"expires_at" gorm:"index"`
}

// Expired reports whether the entry should no longer be served at now.
func (r *CrowdSecReputation) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
