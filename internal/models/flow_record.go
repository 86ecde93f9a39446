package models

import "time"

// FlowRecord is a typed traffic-flow log entry as produced by the gateway
// log normalizer, before it becomes a ThreatEvent.
type FlowRecord struct {
	SourceID   string        `json:"source_id"`
	Timestamp  time.Time     `json:"timestamp"`
	SourceIP   string        `json:"source_ip"`
	SourcePort int           `json:"source_port"`
	DestIP     string        `json:"dest_ip"`
	DestPort   int           `json:"dest_port"`
	Protocol   string        `json:"protocol"`
	Action     string        `json:"action"` // blocked, allowed, ...
	RiskLevel  RiskLevel     `json:"risk_level"`
	Direction  FlowDirection `json:"direction"`
}
