package analysis

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Wikid82/gatewatch/internal/logger"
	"github.com/Wikid82/gatewatch/internal/metrics"
	"github.com/Wikid82/gatewatch/internal/models"
)

// Orchestrator runs a set of detectors over the same batch. A detector that
// panics is logged and skipped; the others still run.
type Orchestrator struct {
	detectors []Detector
}

// NewOrchestrator returns an orchestrator over detectors, or over the four
// built-in detectors when none are given.
func NewOrchestrator(detectors ...Detector) *Orchestrator {
	if len(detectors) == 0 {
		detectors = DefaultDetectors()
	}
	return &Orchestrator{detectors: detectors}
}

// DefaultDetectors returns the built-in detectors.
func DefaultDetectors() []Detector {
	return []Detector{
		ScanSweepDetector{},
		BruteForceDetector{},
		DDoSDetector{},
		ExploitCampaignDetector{},
	}
}

// Run returns the concatenated output of every detector that completed.
// The caller must not mutate events while Run is in progress.
func (o *Orchestrator) Run(events []models.ThreatEvent) []models.ThreatPattern {
	var all []models.ThreatPattern
	for _, d := range o.detectors {
		patterns, err := runDetector(d, events)
		if err != nil {
			metrics.IncDetectorFailure(d.Name())
			logger.Log().WithFields(logrus.Fields{
				"detector": d.Name(),
				"events":   len(events),
			}).WithError(err).Error("pattern detector failed, skipping")
			continue
		}
		for i := range patterns {
			metrics.IncPatternDetected(string(patterns[i].PatternType))
		}
		all = append(all, patterns...)
	}
	return all
}

func runDetector(d Detector, events []models.ThreatEvent) (patterns []models.ThreatPattern, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return d.Detect(events), nil
}
