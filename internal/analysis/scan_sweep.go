package analysis

import (
	"fmt"
	"time"

	"github.com/Wikid82/gatewatch/internal/models"
)

const (
	ScanSweepWindow   = time.Hour
	ScanSweepMinPorts = 10
	scanSweepFullAt   = 20
)

// ScanSweepDetector flags a source touching many distinct ports within an
// hour. Only events already classified as reconnaissance count.
type ScanSweepDetector struct{}

func (ScanSweepDetector) Name() string { return string(models.PatternScanSweep) }

func (ScanSweepDetector) Detect(events []models.ThreatEvent) []models.ThreatPattern {
	return slideWindows(events, windowRule[string]{
		size: ScanSweepWindow,
		keyOf: func(e *models.ThreatEvent) (string, bool) {
			return e.SourceIP, e.KillChainStage == models.StageReconnaissance
		},
		evaluate: func(ip string, window []models.ThreatEvent) (models.ThreatPattern, bool) {
			ports := distinctPorts(window)
			if ports < ScanSweepMinPorts {
				return models.ThreatPattern{}, false
			}
			return newPattern(models.PatternScanSweep, window, []string{ip}, nil,
				ratioConfidence(ports, scanSweepFullAt), fmt.Sprintf("ss:%s", ip)), true
		},
	})
}
