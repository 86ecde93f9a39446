package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	eventsIngestedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gatewatch_events_ingested_total",
		Help: "Total number of threat events persisted, by kill chain stage",
	}, []string{"stage"})
	flowsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gatewatch_flows_dropped_total",
		Help: "Total number of traffic flows discarded by the interest filter",
	})
	patternsDetectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gatewatch_patterns_detected_total",
		Help: "Total number of attack patterns produced by detectors, by type",
	}, []string{"type"})
	detectorFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gatewatch_detector_failures_total",
		Help: "Total number of recovered detector panics, by detector",
	}, []string{"detector"})
	reputationRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gatewatch_reputation_requests_total",
		Help: "Reputation lookups by outcome (cache_hit, found, not_found, quota, error)",
	}, []string{"outcome"})
	geoLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gatewatch_geo_lookups_total",
		Help: "Geo/ASN lookups by outcome (hit, private, miss)",
	}, []string{"outcome"})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry prometheus.Registerer) {
	registry.MustRegister(
		eventsIngestedTotal,
		flowsDroppedTotal,
		patternsDetectedTotal,
		detectorFailuresTotal,
		reputationRequestsTotal,
		geoLookupsTotal,
	)
}

// IncEventIngested counts a persisted event at the given stage.
func IncEventIngested(stage string) { eventsIngestedTotal.WithLabelValues(stage).Inc() }

// IncFlowDropped counts a flow rejected by the interest filter.
func IncFlowDropped() { flowsDroppedTotal.Inc() }

// IncPatternDetected counts a detector output.
func IncPatternDetected(patternType string) { patternsDetectedTotal.WithLabelValues(patternType).Inc() }

// IncDetectorFailure counts a recovered detector panic.
func IncDetectorFailure(detector string) { detectorFailuresTotal.WithLabelValues(detector).Inc() }

// IncReputation counts a reputation lookup outcome.
func IncReputation(outcome string) { reputationRequestsTotal.WithLabelValues(outcome).Inc() }

// IncGeoLookup counts a geo lookup outcome.
func IncGeoLookup(outcome string) { geoLookupsTotal.WithLabelValues(outcome).Inc() }
