package analysis

import (
	"fmt"
	"strings"
	"time"

	"github.com/Wikid82/gatewatch/internal/models"
)

// Exploit campaigns reuse the scan sweep's distinct-count conventions, counted
// over source IPs instead of ports.
const (
	ExploitCampaignWindow     = time.Hour
	ExploitCampaignMinSources = 10
	exploitCampaignFullAt     = 20
)

// ExploitCampaignDetector flags one exploit signature fired by many distinct
// sources within an hour.
type ExploitCampaignDetector struct{}

func (ExploitCampaignDetector) Name() string { return string(models.PatternExploitCampaign) }

func (ExploitCampaignDetector) Detect(events []models.ThreatEvent) []models.ThreatPattern {
	return slideWindows(events, windowRule[string]{
		size:  ExploitCampaignWindow,
		keyOf: exploitSignatureKey,
		evaluate: func(sig string, window []models.ThreatEvent) (models.ThreatPattern, bool) {
			sources, sample := distinctSources(window, MaxSampledSourceIPs)
			if sources < ExploitCampaignMinSources {
				return models.ThreatPattern{}, false
			}
			return newPattern(models.PatternExploitCampaign, window, sample, singlePort(window),
				ratioConfidence(sources, exploitCampaignFullAt), fmt.Sprintf("ec:%s", sig)), true
		},
	})
}

func exploitSignatureKey(e *models.ThreatEvent) (string, bool) {
	if e.EventSource != models.EventSourceIPS {
		return "", false
	}
	if e.KillChainStage != models.StageAttemptedExploitation && e.KillChainStage != models.StageActiveExploitation {
		return "", false
	}
	if e.SignatureID != "" {
		return e.SignatureID, true
	}
	name := strings.ToLower(strings.TrimSpace(e.SignatureName))
	return name, name != ""
}
