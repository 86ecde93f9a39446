package analysis

import (
	"strings"

	"github.com/Wikid82/gatewatch/internal/models"
)

// Keyword sets matched against lower-cased "category signature" text. The
// order of evaluation is post-exploitation, exploitation, reconnaissance.
var (
	PostExploitationKeywords = []string{"trojan", "malware", "c2", "cnc", "backdoor", "rat", "exfiltration", "botnet"}
	ExploitationKeywords     = []string{"exploit", "cve", "rce", "overflow", "injection", "sqli", "xss", "shellcode", "attack"}
	ReconnaissanceKeywords   = []string{"scan", "policy", "info", "icmp", "recon", "discovery"}
)

// Classify assigns a kill chain stage to a normalized event. The result
// depends only on the event's source, severity, action, direction, dest
// port, category, signature name and risk level.
func Classify(e models.ThreatEvent) models.KillChainStage {
	if e.Severity <= 1 {
		return models.StageMonitored
	}

	switch e.EventSource {
	case models.EventSourceTrafficFlow:
		if stage, ok := classifyFlow(e); ok {
			return stage
		}
	case models.EventSourceIPS:
		if stage, ok := classifySignature(e); ok {
			return stage
		}
	}

	return classifyBySeverity(e)
}

func classifyFlow(e models.ThreatEvent) (models.KillChainStage, bool) {
	sensitive := IsSensitivePort(e.DestPort)

	switch e.Direction {
	case models.DirectionOutgoing:
		if e.RiskLevel == models.RiskHigh {
			return models.StagePostExploitation, true
		}
	case models.DirectionIncoming:
		switch {
		case e.Action != models.ActionBlocked && sensitive:
			if e.Severity >= 3 {
				return models.StageActiveExploitation, true
			}
			return models.StageAttemptedExploitation, true
		case e.Action == models.ActionBlocked && sensitive:
			return models.StageAttemptedExploitation, true
		case e.Action == models.ActionBlocked:
			return models.StageReconnaissance, true
		}
	}
	return "", false
}

func classifySignature(e models.ThreatEvent) (models.KillChainStage, bool) {
	text := strings.ToLower(e.Category + " " + e.SignatureName)

	if containsAny(text, PostExploitationKeywords) {
		return models.StagePostExploitation, true
	}
	if containsAny(text, ExploitationKeywords) {
		if e.Action == models.ActionBlocked || e.Severity <= 2 {
			return models.StageAttemptedExploitation, true
		}
		return models.StageActiveExploitation, true
	}
	if containsAny(text, ReconnaissanceKeywords) {
		return models.StageReconnaissance, true
	}
	return "", false
}

func classifyBySeverity(e models.ThreatEvent) models.KillChainStage {
	switch {
	case e.Severity >= 4 && e.Action == models.ActionDetected:
		return models.StageActiveExploitation
	case e.Severity >= 4:
		return models.StageAttemptedExploitation
	default:
		return models.StageReconnaissance
	}
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
