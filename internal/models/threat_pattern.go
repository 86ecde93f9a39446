package models

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PatternType names a multi-event attack correlation.
type PatternType string

const (
	PatternScanSweep       PatternType = "scan_sweep"
	PatternBruteForce      PatternType = "brute_force"
	PatternExploitCampaign PatternType = "exploit_campaign"
	PatternDDoS            PatternType = "ddos"
)

// ThreatPattern is a correlation produced by one detector run. Only the
// alerting bookkeeping (LastAlertedAt) changes after creation.
type ThreatPattern struct {
	ID            uint        `json:"id" gorm:"primaryKey"`
	UUID          string      `json:"uuid" gorm:"uniqueIndex"`
	PatternType   PatternType `json:"pattern_type" gorm:"index"`
	DetectedAt    time.Time   `json:"detected_at" gorm:"index"`
	SourceIPs     string      `json:"source_ips" gorm:"type:text"` // JSON array
	TargetPort    *int        `json:"target_port"`
	EventCount    int         `json:"event_count"`
	FirstSeen     time.Time   `json:"first_seen"`
	LastSeen      time.Time   `json:"last_seen"`
	Confidence    float64     `json:"confidence"`
	DedupKey      *string     `json:"dedup_key,omitempty" gorm:"uniqueIndex"`
	LastAlertedAt *time.Time  `json:"last_alerted_at"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`

	// EventIDs holds the ids of the events in the detection window. It is
	// only populated by detectors and never stored.
	EventIDs []uint `json:"-" gorm:"-"`
}

// SetSourceIPs stores ips as a JSON array.
func (p *ThreatPattern) SetSourceIPs(ips []string) {
	if ips == nil {
		ips = []string{}
	}
	b, _ := json.Marshal(ips)
	p.SourceIPs = string(b)
}

// SourceIPList decodes the stored source IPs; malformed content yields an empty list.
func (p *ThreatPattern) SourceIPList() []string {
	var ips []string
	if p.SourceIPs == "" {
		return ips
	}
	if err := json.Unmarshal([]byte(p.SourceIPs), &ips); err != nil {
		return nil
	}
	return ips
}

// MergeSourceIPs unions other into the stored list, keeping at most limit entries (0 = unlimited).
func (p *ThreatPattern) MergeSourceIPs(other []string, limit int) {
	seen := make(map[string]struct{})
	var merged []string
	for _, ip := range append(p.SourceIPList(), other...) {
		if _, ok := seen[ip]; ok {
			continue
		}
		seen[ip] = struct{}{}
		merged = append(merged, ip)
	}
	sort.Strings(merged)
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	p.SetSourceIPs(merged)
}

// NeedsAlert reports whether the pattern changed since it was last notified.
func (p *ThreatPattern) NeedsAlert() bool {
	if p.LastAlertedAt == nil {
		return true
	}
	return p.LastSeen.After(*p.LastAlertedAt)
}

func (p *ThreatPattern) BeforeCreate(tx *gorm.DB) (err error) {
	if p.UUID == "" {
		p.UUID = uuid.New().String()
	}
	if p.SourceIPs == "" {
		p.SetSourceIPs(nil)
	}
	p.FirstSeen = p.FirstSeen.UTC()
	p.LastSeen = p.LastSeen.UTC()
	return
}
