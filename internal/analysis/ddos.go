package analysis

import (
	"fmt"
	"time"

	"github.com/Wikid82/gatewatch/internal/models"
)

const (
	DDoSWindow     = 5 * time.Minute
	DDoSMinEvents  = 100
	DDoSMinSources = 10
	ddosFullAt     = 50
)

// DDoSDetector flags high volume against one destination from many sources.
// Both the event and the distinct-source thresholds must be met.
type DDoSDetector struct{}

type destKey struct {
	ip   string
	port int
}

func (DDoSDetector) Name() string { return string(models.PatternDDoS) }

func (DDoSDetector) Detect(events []models.ThreatEvent) []models.ThreatPattern {
	return slideWindows(events, windowRule[destKey]{
		size: DDoSWindow,
		keyOf: func(e *models.ThreatEvent) (destKey, bool) {
			return destKey{ip: e.DestIP, port: e.DestPort}, e.DestIP != ""
		},
		evaluate: func(k destKey, window []models.ThreatEvent) (models.ThreatPattern, bool) {
			if len(window) < DDoSMinEvents {
				return models.ThreatPattern{}, false
			}
			sources, sample := distinctSources(window, MaxSampledSourceIPs)
			if sources < DDoSMinSources {
				return models.ThreatPattern{}, false
			}
			port := k.port
			return newPattern(models.PatternDDoS, window, sample, &port,
				ratioConfidence(sources, ddosFullAt), fmt.Sprintf("ddos:%s:%d", k.ip, k.port)), true
		},
	})
}
