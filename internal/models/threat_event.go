package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventSource identifies which gateway feed produced an event.
type EventSource string

const (
	EventSourceIPS         EventSource = "ips"
	EventSourceTrafficFlow EventSource = "traffic_flow"
)

// EventAction is the gateway's verdict on the traffic.
type EventAction string

const (
	ActionBlocked  EventAction = "blocked"
	ActionDetected EventAction = "detected"
)

// FlowDirection is the direction of a traffic-flow connection relative to the gateway.
type FlowDirection string

const (
	DirectionIncoming FlowDirection = "incoming"
	DirectionOutgoing FlowDirection = "outgoing"
)

// RiskLevel is the gateway's risk rating of a traffic flow.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// KillChainStage is the coarse attack phase assigned to an event.
type KillChainStage string

const (
	StageMonitored             KillChainStage = "monitored"
	StageReconnaissance        KillChainStage = "reconnaissance"
	StageAttemptedExploitation KillChainStage = "attempted_exploitation"
	StageActiveExploitation    KillChainStage = "active_exploitation"
	StagePostExploitation      KillChainStage = "post_exploitation"
)

// KillChainStages lists every stage in escalation order.
var KillChainStages = []KillChainStage{
	StageMonitored,
	StageReconnaissance,
	StageAttemptedExploitation,
	StageActiveExploitation,
	StagePostExploitation,
}

const (
	MinSeverity = 1
	MaxSeverity = 5
)

// ThreatEvent is the normalized unit the analysis pipeline works on. IPS
// events carry signature fields, traffic-flow events carry direction and
// risk level. Geo fields stay nil until an enrichment pass writes them together.
type ThreatEvent struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UUID      string    `json:"uuid" gorm:"uniqueIndex"`
	SourceID  string    `json:"source_id" gorm:"uniqueIndex"` // id in the gateway, used for dedup
	Timestamp time.Time `json:"timestamp" gorm:"index"`

	SourceIP   string `json:"source_ip" gorm:"index"`
	SourcePort int    `json:"source_port"`
	DestIP     string `json:"dest_ip" gorm:"index"`
	DestPort   int    `json:"dest_port" gorm:"index"`
	Protocol   string `json:"protocol"`

	SignatureID   string        `json:"signature_id,omitempty"`
	SignatureName string        `json:"signature_name,omitempty"`
	Category      string        `json:"category,omitempty"`
	Direction     FlowDirection `json:"direction,omitempty"`
	RiskLevel     RiskLevel     `json:"risk_level,omitempty"`

	EventSource EventSource `json:"event_source" gorm:"index"`
	Severity    int         `json:"severity"`
	Action      EventAction `json:"action"`

	CountryCode *string  `json:"country_code" gorm:"index"`
	City        *string  `json:"city"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	ASN         *uint    `json:"asn"`
	ASNOrg      *string  `json:"asn_org"`

	KillChainStage KillChainStage `json:"kill_chain_stage" gorm:"index"`
	PatternID      *uint          `json:"pattern_id,omitempty" gorm:"index"`

	CreatedAt time.Time `json:"created_at"`
}

// ClampSeverity forces a raw severity into the [1,5] range.
func ClampSeverity(s int) int {
	if s < MinSeverity {
		return MinSeverity
	}
	if s > MaxSeverity {
		return MaxSeverity
	}
	return s
}

// HasGeo reports whether an enrichment pass has already written the geo fields.
func (e *ThreatEvent) HasGeo() bool {
	return e.CountryCode != nil
}

func (e *ThreatEvent) BeforeSave(tx *gorm.DB) (err error) {
	if e.UUID == "" {
		e.UUID = uuid.New().String()
	}
	if e.SourceID == "" {
		e.SourceID = e.UUID
	}
	e.Severity = ClampSeverity(e.Severity)
	e.Timestamp = e.Timestamp.UTC()
	return
}
