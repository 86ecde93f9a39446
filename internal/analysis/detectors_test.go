package analysis

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/gatewatch/internal/models"
)

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func reconEvent(ip string, port int, at time.Time) models.ThreatEvent {
	return models.ThreatEvent{
		Timestamp:      at,
		SourceIP:       ip,
		DestIP:         "198.51.100.10",
		DestPort:       port,
		EventSource:    models.EventSourceTrafficFlow,
		Severity:       2,
		Action:         models.ActionBlocked,
		KillChainStage: models.StageReconnaissance,
	}
}

func TestScanSweep_Boundary(t *testing.T) {
	var events []models.ThreatEvent
	for i := 0; i < 9; i++ {
		events = append(events, reconEvent("203.0.113.5", 1000+i, baseTime.Add(time.Duration(i)*time.Minute)))
	}
	assert.Empty(t, ScanSweepDetector{}.Detect(events))

	events = append(events, reconEvent("203.0.113.5", 2000, baseTime.Add(30*time.Minute)))
	patterns := ScanSweepDetector{}.Detect(events)
	require.Len(t, patterns, 1)

	p := patterns[0]
	assert.Equal(t, models.PatternScanSweep, p.PatternType)
	assert.InDelta(t, 0.5, p.Confidence, 1e-9)
	assert.Equal(t, 10, p.EventCount)
	assert.Equal(t, []string{"203.0.113.5"}, p.SourceIPList())
	assert.Equal(t, baseTime, p.FirstSeen)
	assert.Equal(t, baseTime.Add(30*time.Minute), p.LastSeen)
	require.NotNil(t, p.DedupKey)
	assert.Equal(t, "ss:203.0.113.5", *p.DedupKey)
	assert.Nil(t, p.TargetPort)
}

func TestScanSweep_IgnoresNonReconAndRepeatedPorts(t *testing.T) {
	var events []models.ThreatEvent
	for i := 0; i < 12; i++ {
		e := reconEvent("203.0.113.5", 1000+i, baseTime.Add(time.Duration(i)*time.Minute))
		e.KillChainStage = models.StageAttemptedExploitation
		events = append(events, e)
	}
	for i := 0; i < 30; i++ {
		events = append(events, reconEvent("203.0.113.6", 22, baseTime.Add(time.Duration(i)*time.Second)))
	}
	assert.Empty(t, ScanSweepDetector{}.Detect(events))
}

func TestScanSweep_WindowSlides(t *testing.T) {
	// ten ports spread over ~2 hours never fit in one window
	var events []models.ThreatEvent
	for i := 0; i < 10; i++ {
		events = append(events, reconEvent("203.0.113.5", 1000+i, baseTime.Add(time.Duration(i)*13*time.Minute)))
	}
	assert.Empty(t, ScanSweepDetector{}.Detect(events))
}

func TestScanSweep_UnsortedInputAndOnePerGroup(t *testing.T) {
	var events []models.ThreatEvent
	for i := 29; i >= 0; i-- {
		events = append(events, reconEvent("203.0.113.5", 1000+i, baseTime.Add(time.Duration(i)*time.Minute)))
	}
	original := make([]models.ThreatEvent, len(events))
	copy(original, events)

	patterns := ScanSweepDetector{}.Detect(events)
	require.Len(t, patterns, 1)
	assert.Equal(t, 10, patterns[0].EventCount)
	assert.Equal(t, baseTime, patterns[0].FirstSeen)
	assert.Equal(t, original, events, "input batch must not be reordered")
}

func bruteEvent(ip string, port int, at time.Time) models.ThreatEvent {
	return models.ThreatEvent{
		Timestamp:   at,
		SourceIP:    ip,
		DestIP:      "198.51.100.20",
		DestPort:    port,
		EventSource: models.EventSourceIPS,
		Severity:    3,
		Action:      models.ActionBlocked,
	}
}

func TestBruteForce_Boundary(t *testing.T) {
	var events []models.ThreatEvent
	for i := 0; i < 19; i++ {
		events = append(events, bruteEvent("203.0.113.7", 22, baseTime.Add(time.Duration(i)*20*time.Second)))
	}
	assert.Empty(t, BruteForceDetector{}.Detect(events))

	events = append(events, bruteEvent("203.0.113.7", 22, baseTime.Add(9*time.Minute)))
	patterns := BruteForceDetector{}.Detect(events)
	require.Len(t, patterns, 1)

	p := patterns[0]
	assert.Equal(t, models.PatternBruteForce, p.PatternType)
	require.NotNil(t, p.DedupKey)
	assert.Equal(t, "bf:203.0.113.7:22", *p.DedupKey)
	require.NotNil(t, p.TargetPort)
	assert.Equal(t, 22, *p.TargetPort)
	assert.Equal(t, 20, p.EventCount)
	assert.InDelta(t, 0.4, p.Confidence, 1e-9)
}

func TestBruteForce_IgnoresOtherPorts(t *testing.T) {
	var events []models.ThreatEvent
	for i := 0; i < 40; i++ {
		events = append(events, bruteEvent("203.0.113.7", 8081, baseTime.Add(time.Duration(i)*time.Second)))
	}
	assert.Empty(t, BruteForceDetector{}.Detect(events))
}

func TestBruteForce_GroupsBySourceAndPort(t *testing.T) {
	var events []models.ThreatEvent
	for i := 0; i < 20; i++ {
		at := baseTime.Add(time.Duration(i) * time.Second)
		events = append(events, bruteEvent("203.0.113.7", 22, at))
		events = append(events, bruteEvent("203.0.113.7", 3389, at))
		events = append(events, bruteEvent(fmt.Sprintf("203.0.113.%d", 100+i), 22, at))
	}
	patterns := BruteForceDetector{}.Detect(events)
	require.Len(t, patterns, 2)
	assert.Equal(t, "bf:203.0.113.7:22", *patterns[0].DedupKey)
	assert.Equal(t, "bf:203.0.113.7:3389", *patterns[1].DedupKey)
}

func ddosEvents(total, sources int) []models.ThreatEvent {
	events := make([]models.ThreatEvent, 0, total)
	for i := 0; i < total; i++ {
		events = append(events, models.ThreatEvent{
			Timestamp:   baseTime.Add(time.Duration(i) * time.Second),
			SourceIP:    fmt.Sprintf("192.0.2.%d", i%sources+1),
			DestIP:      "198.51.100.30",
			DestPort:    443,
			EventSource: models.EventSourceTrafficFlow,
			Severity:    3,
			Action:      models.ActionBlocked,
		})
	}
	return events
}

func TestDDoS_DualThreshold(t *testing.T) {
	assert.Empty(t, DDoSDetector{}.Detect(ddosEvents(150, 3)))

	patterns := DDoSDetector{}.Detect(ddosEvents(150, 15))
	require.Len(t, patterns, 1)

	p := patterns[0]
	assert.Equal(t, models.PatternDDoS, p.PatternType)
	assert.Equal(t, 100, p.EventCount, "fires on the first window reaching the thresholds")
	assert.InDelta(t, 15.0/50.0, p.Confidence, 1e-9)
	assert.Len(t, p.SourceIPList(), 15)
	require.NotNil(t, p.TargetPort)
	assert.Equal(t, 443, *p.TargetPort)
	assert.Equal(t, "ddos:198.51.100.30:443", *p.DedupKey)
}

func TestDDoS_SamplesAtMostTwentySources(t *testing.T) {
	patterns := DDoSDetector{}.Detect(ddosEvents(200, 60))
	require.Len(t, patterns, 1)
	assert.Len(t, patterns[0].SourceIPList(), MaxSampledSourceIPs)
	assert.InDelta(t, 1.0, patterns[0].Confidence, 1e-9)
}

func exploitEvents(sig string, sources int) []models.ThreatEvent {
	var events []models.ThreatEvent
	for i := 0; i < sources; i++ {
		events = append(events, models.ThreatEvent{
			Timestamp:      baseTime.Add(time.Duration(i) * time.Minute),
			SourceIP:       fmt.Sprintf("192.0.2.%d", i+1),
			DestIP:         "198.51.100.40",
			DestPort:       8080,
			EventSource:    models.EventSourceIPS,
			SignatureID:    sig,
			SignatureName:  "ET EXPLOIT Log4j JNDI",
			Severity:       4,
			Action:         models.ActionBlocked,
			KillChainStage: models.StageAttemptedExploitation,
		})
	}
	return events
}

func TestExploitCampaign_Boundary(t *testing.T) {
	assert.Empty(t, ExploitCampaignDetector{}.Detect(exploitEvents("2034647", 9)))

	patterns := ExploitCampaignDetector{}.Detect(exploitEvents("2034647", 10))
	require.Len(t, patterns, 1)
	p := patterns[0]
	assert.Equal(t, models.PatternExploitCampaign, p.PatternType)
	assert.Equal(t, "ec:2034647", *p.DedupKey)
	assert.InDelta(t, 0.5, p.Confidence, 1e-9)
	require.NotNil(t, p.TargetPort)
	assert.Equal(t, 8080, *p.TargetPort)
}

func TestExploitCampaign_FallsBackToSignatureName(t *testing.T) {
	events := exploitEvents("", 12)
	events[3].DestPort = 443
	patterns := ExploitCampaignDetector{}.Detect(events)
	require.Len(t, patterns, 1)
	assert.Equal(t, "ec:et exploit log4j jndi", *patterns[0].DedupKey)
	assert.Nil(t, patterns[0].TargetPort)
}

func TestExploitCampaign_IgnoresReconnaissance(t *testing.T) {
	events := exploitEvents("2034647", 15)
	for i := range events {
		events[i].KillChainStage = models.StageReconnaissance
	}
	assert.Empty(t, ExploitCampaignDetector{}.Detect(events))
}
