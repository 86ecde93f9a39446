package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationProvider is an external destination (shoutrrr URL) that
// receives pattern alerts.
type NotificationProvider struct {
	ID      string `gorm:"primaryKey" json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"` // discord, slack, gotify, telegram, generic
	URL     string `json:"url"`  // shoutrrr service URL
	Enabled bool   `json:"enabled"`

	// Alert preferences
	MinConfidence         float64 `json:"min_confidence"`
	NotifyScanSweep       bool    `json:"notify_scan_sweep"`
	NotifyBruteForce      bool    `json:"notify_brute_force"`
	NotifyDDoS            bool    `json:"notify_ddos"`
	NotifyExploitCampaign bool    `json:"notify_exploit_campaign"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Wants reports whether the provider subscribes to alerts for p.
func (n *NotificationProvider) Wants(p *ThreatPattern) bool {
	if p.Confidence < n.MinConfidence {
		return false
	}
	switch p.PatternType {
	case PatternScanSweep:
		return n.NotifyScanSweep
	case PatternBruteForce:
		return n.NotifyBruteForce
	case PatternDDoS:
		return n.NotifyDDoS
	case PatternExploitCampaign:
		return n.NotifyExploitCampaign
	default:
		return false
	}
}

func (n *NotificationProvider) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.Type = strings.ToLower(strings.TrimSpace(n.Type))
	if n.Type == "" {
		n.Type = "generic"
	}
	return
}
