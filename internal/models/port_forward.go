package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MaxPortsPerRange caps how many ports a single forwarded range expands to.
const MaxPortsPerRange = 100

// PortForward is a gateway port-forward (DNAT) rule exposing an internal
// service on one external port or an inclusive "start-end" range.
type PortForward struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	UUID         string    `json:"uuid" gorm:"uniqueIndex"`
	Name         string    `json:"name"`
	Protocol     string    `json:"protocol"` // tcp, udp, tcp_udp
	ExternalPort string    `json:"external_port"`
	InternalIP   string    `json:"internal_ip"`
	InternalPort int       `json:"internal_port"`
	Enabled      bool      `json:"enabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Ports expands ExternalPort into individual ports, capped at MaxPortsPerRange.
func (p *PortForward) Ports() ([]int, error) {
	spec := strings.TrimSpace(p.ExternalPort)
	if spec == "" {
		return nil, fmt.Errorf("empty external port")
	}
	start, end := spec, spec
	if i := strings.Index(spec, "-"); i >= 0 {
		start, end = strings.TrimSpace(spec[:i]), strings.TrimSpace(spec[i+1:])
	}
	lo, err := strconv.Atoi(start)
	if err != nil {
		return nil, fmt.Errorf("invalid port %q: %w", start, err)
	}
	hi, err := strconv.Atoi(end)
	if err != nil {
		return nil, fmt.Errorf("invalid port %q: %w", end, err)
	}
	if lo < 1 || hi > 65535 || lo > hi {
		return nil, fmt.Errorf("invalid port range %q", spec)
	}
	ports := make([]int, 0, min(hi-lo+1, MaxPortsPerRange))
	for port := lo; port <= hi && len(ports) < MaxPortsPerRange; port++ {
		ports = append(ports, port)
	}
	return ports, nil
}

func (p *PortForward) BeforeCreate(tx *gorm.DB) (err error) {
	if p.UUID == "" {
		p.UUID = uuid.New().String()
	}
	return
}
