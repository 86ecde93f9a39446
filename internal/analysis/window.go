package analysis

import (
	"math"
	"sort"
	"time"

	"github.com/Wikid82/gatewatch/internal/models"
)

// now is the detection clock; tests pin it.
var now = func() time.Time { return time.Now().UTC() }

// MaxSampledSourceIPs bounds the source IPs recorded on a pattern.
const MaxSampledSourceIPs = 20

// Detector finds one kind of multi-event attack pattern in a time-ordered batch.
type Detector interface {
	Name() string
	Detect(events []models.ThreatEvent) []models.ThreatPattern
}

// windowRule parameterizes slideWindows for one detector.
type windowRule[K comparable] struct {
	size time.Duration
	// keyOf returns the group key of an event, or false to skip it.
	keyOf func(e *models.ThreatEvent) (K, bool)
	// evaluate inspects window (oldest first) and returns a pattern when it qualifies.
	evaluate func(key K, window []models.ThreatEvent) (models.ThreatPattern, bool)
}

// slideWindows partitions events by key, sorts each group by time and scans
// it with a window [start..i] no wider than rule.size. Scanning a group stops
// at its first qualifying window, so each group yields at most one pattern.
// The input slice is never reordered.
func slideWindows[K comparable](events []models.ThreatEvent, rule windowRule[K]) []models.ThreatPattern {
	groups := make(map[K][]models.ThreatEvent)
	var order []K
	for i := range events {
		key, ok := rule.keyOf(&events[i])
		if !ok {
			continue
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], events[i])
	}

	var patterns []models.ThreatPattern
	for _, key := range order {
		group := groups[key]
		sort.SliceStable(group, func(a, b int) bool {
			return group[a].Timestamp.Before(group[b].Timestamp)
		})

		start := 0
		for i := range group {
			for group[i].Timestamp.Sub(group[start].Timestamp) > rule.size {
				start++
			}
			if p, ok := rule.evaluate(key, group[start:i+1]); ok {
				patterns = append(patterns, p)
				break
			}
		}
	}
	return patterns
}

func newPattern(kind models.PatternType, window []models.ThreatEvent, sourceIPs []string, targetPort *int, confidence float64, dedupKey string) models.ThreatPattern {
	p := models.ThreatPattern{
		PatternType: kind,
		DetectedAt:  now(),
		TargetPort:  targetPort,
		EventCount:  len(window),
		FirstSeen:   window[0].Timestamp,
		LastSeen:    window[len(window)-1].Timestamp,
		Confidence:  confidence,
	}
	if dedupKey != "" {
		p.DedupKey = &dedupKey
	}
	for i := range window {
		if window[i].ID != 0 {
			p.EventIDs = append(p.EventIDs, window[i].ID)
		}
	}
	p.SetSourceIPs(sourceIPs)
	return p
}

// ratioConfidence is min(1, n/full).
func ratioConfidence(n, full int) float64 {
	return math.Min(1, float64(n)/float64(full))
}

func distinctPorts(window []models.ThreatEvent) int {
	seen := make(map[int]struct{}, len(window))
	for i := range window {
		seen[window[i].DestPort] = struct{}{}
	}
	return len(seen)
}

// distinctSources returns the number of unique source IPs and up to limit
// of them in order of first appearance.
func distinctSources(window []models.ThreatEvent, limit int) (int, []string) {
	seen := make(map[string]struct{}, len(window))
	var sample []string
	for i := range window {
		ip := window[i].SourceIP
		if _, ok := seen[ip]; ok {
			continue
		}
		seen[ip] = struct{}{}
		if len(sample) < limit {
			sample = append(sample, ip)
		}
	}
	return len(seen), sample
}

// singlePort returns the shared dest port of window, or nil if ports differ.
func singlePort(window []models.ThreatEvent) *int {
	port := window[0].DestPort
	for i := range window {
		if window[i].DestPort != port {
			return nil
		}
	}
	return &port
}
