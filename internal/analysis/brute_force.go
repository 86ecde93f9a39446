package analysis

import (
	"fmt"
	"time"

	"github.com/Wikid82/gatewatch/internal/models"
)

const (
	BruteForceWindow    = 10 * time.Minute
	BruteForceMinEvents = 20
	bruteForceFullAt    = 50
)

// BruteForceDetector flags repeated attempts from one source against one
// authentication-bearing port.
type BruteForceDetector struct{}

type sourcePortKey struct {
	ip   string
	port int
}

func (BruteForceDetector) Name() string { return string(models.PatternBruteForce) }

func (BruteForceDetector) Detect(events []models.ThreatEvent) []models.ThreatPattern {
	return slideWindows(events, windowRule[sourcePortKey]{
		size: BruteForceWindow,
		keyOf: func(e *models.ThreatEvent) (sourcePortKey, bool) {
			return sourcePortKey{ip: e.SourceIP, port: e.DestPort}, isBruteForcePort(e.DestPort)
		},
		evaluate: func(k sourcePortKey, window []models.ThreatEvent) (models.ThreatPattern, bool) {
			if len(window) < BruteForceMinEvents {
				return models.ThreatPattern{}, false
			}
			port := k.port
			return newPattern(models.PatternBruteForce, window, []string{k.ip}, &port,
				ratioConfidence(len(window), bruteForceFullAt), fmt.Sprintf("bf:%s:%d", k.ip, k.port)), true
		},
	})
}
