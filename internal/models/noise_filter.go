package models

import (
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Wikid82/gatewatch/internal/logger"
)

// ThreatNoiseFilter is a user rule that hides matching events from reports.
// A nil field is a wildcard; IP fields accept an exact address or a CIDR.
type ThreatNoiseFilter struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	UUID        string    `json:"uuid" gorm:"uniqueIndex"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	SourceIP    *string   `json:"source_ip"`
	DestIP      *string   `json:"dest_ip"`
	DestPort    *int      `json:"dest_port"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Matches reports whether an event with the given endpoints is covered by the filter.
// A filter with every field nil matches all events.
func (f *ThreatNoiseFilter) Matches(sourceIP, destIP string, destPort int) bool {
	if f.SourceIP != nil && !ipFieldMatches(*f.SourceIP, sourceIP) {
		return false
	}
	if f.DestIP != nil && !ipFieldMatches(*f.DestIP, destIP) {
		return false
	}
	if f.DestPort != nil && *f.DestPort != destPort {
		return false
	}
	return true
}

// MatchesEvent is Matches applied to an event's endpoints.
func (f *ThreatNoiseFilter) MatchesEvent(e *ThreatEvent) bool {
	return f.Matches(e.SourceIP, e.DestIP, e.DestPort)
}

func ipFieldMatches(rule, value string) bool {
	rule = strings.TrimSpace(rule)
	if rule == value {
		return true
	}
	ip := net.ParseIP(value)
	if ip == nil {
		return false
	}
	if strings.Contains(rule, "/") {
		_, ipNet, err := net.ParseCIDR(rule)
		if err != nil {
			logger.Log().WithField("cidr", rule).Debug("noise filter: invalid CIDR treated as non-match")
			return false
		}
		return ipNet.Contains(ip)
	}
	if ruleIP := net.ParseIP(rule); ruleIP != nil {
		return ruleIP.Equal(ip)
	}
	return false
}

func (f *ThreatNoiseFilter) BeforeCreate(tx *gorm.DB) (err error) {
	if f.UUID == "" {
		f.UUID = uuid.New().String()
	}
	return
}
