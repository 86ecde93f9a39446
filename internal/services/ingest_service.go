package services

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Wikid82/gatewatch/internal/analysis"
	"github.com/Wikid82/gatewatch/internal/geoip"
	"github.com/Wikid82/gatewatch/internal/logger"
	"github.com/Wikid82/gatewatch/internal/metrics"
	"github.com/Wikid82/gatewatch/internal/models"
)

// EventStore persists normalized events.
type EventStore interface {
	SaveEvents(ctx context.Context, events []models.ThreatEvent) ([]models.ThreatEvent, error)
}

// FlowNormalizer turns a flow record that passed the interest filter into
// an event. Returning false discards the record.
type FlowNormalizer interface {
	Normalize(r models.FlowRecord) (models.ThreatEvent, bool)
}

// FlowNormalizerFunc adapts a function to FlowNormalizer.
type FlowNormalizerFunc func(r models.FlowRecord) (models.ThreatEvent, bool)

func (f FlowNormalizerFunc) Normalize(r models.FlowRecord) (models.ThreatEvent, bool) { return f(r) }

// DefaultFlowNormalizer maps flow fields one to one and derives severity
// from the gateway's risk level.
var DefaultFlowNormalizer = FlowNormalizerFunc(func(r models.FlowRecord) (models.ThreatEvent, bool) {
	if r.SourceIP == "" || r.Timestamp.IsZero() {
		return models.ThreatEvent{}, false
	}
	action := models.ActionDetected
	if strings.EqualFold(strings.TrimSpace(r.Action), string(models.ActionBlocked)) {
		action = models.ActionBlocked
	}
	risk := models.RiskLevel(strings.ToLower(string(r.RiskLevel)))
	severity := 2
	switch risk {
	case models.RiskHigh:
		severity = 4
	case models.RiskMedium:
		severity = 3
	}
	return models.ThreatEvent{
		SourceID:    r.SourceID,
		Timestamp:   r.Timestamp,
		SourceIP:    r.SourceIP,
		SourcePort:  r.SourcePort,
		DestIP:      r.DestIP,
		DestPort:    r.DestPort,
		Protocol:    strings.ToLower(r.Protocol),
		Direction:   models.FlowDirection(strings.ToLower(string(r.Direction))),
		RiskLevel:   risk,
		EventSource: models.EventSourceTrafficFlow,
		Severity:    severity,
		Action:      action,
	}, true
})

// IngestResult reports what happened to a submitted batch.
type IngestResult struct {
	Received   int `json:"received"`
	Dropped    int `json:"dropped"`
	Stored     int `json:"stored"`
	Duplicates int `json:"duplicates"`
	Enriched   int `json:"enriched"`
}

// IngestService classifies, enriches and persists incoming telemetry.
type IngestService struct {
	store      EventStore
	normalizer FlowNormalizer
	geo        *geoip.Service
}

// NewIngestService creates the ingest pipeline. geo may be nil.
func NewIngestService(store EventStore, normalizer FlowNormalizer, geo *geoip.Service) *IngestService {
	if normalizer == nil {
		normalizer = DefaultFlowNormalizer
	}
	return &IngestService{store: store, normalizer: normalizer, geo: geo}
}

// IngestEvents classifies each event once and stores those not seen before.
func (s *IngestService) IngestEvents(ctx context.Context, events []models.ThreatEvent) (IngestResult, error) {
	res := IngestResult{Received: len(events)}
	if len(events) == 0 {
		return res, nil
	}

	batch := make([]models.ThreatEvent, len(events))
	copy(batch, events)
	for i := range batch {
		batch[i].Severity = models.ClampSeverity(batch[i].Severity)
		if batch[i].EventSource == "" {
			batch[i].EventSource = models.EventSourceIPS
		}
		batch[i].KillChainStage = analysis.Classify(batch[i])
	}

	if s.geo != nil && s.geo.Loaded() {
		res.Enriched = s.geo.EnrichEvents(ctx, batch)
	}

	stored, err := s.store.SaveEvents(ctx, batch)
	if err != nil {
		return res, err
	}
	res.Stored = len(stored)
	res.Duplicates = len(batch) - len(stored)
	for i := range stored {
		metrics.IncEventIngested(string(stored[i].KillChainStage))
	}

	logger.Log().WithFields(logrus.Fields{
		"received":   res.Received,
		"stored":     res.Stored,
		"duplicates": res.Duplicates,
	}).Debug("ingest: events processed")
	return res, nil
}

// IngestFlows streams records through the interest filter, normalizes the
// survivors and ingests them as events.
func (s *IngestService) IngestFlows(ctx context.Context, records []models.FlowRecord) (IngestResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	in := make(chan models.FlowRecord)
	go func() {
		defer close(in)
		for _, r := range records {
			select {
			case in <- r:
			case <-ctx.Done():
				return
			}
		}
	}()

	dropped := 0
	var events []models.ThreatEvent
	for r := range analysis.FilterFlows(ctx, in, func(models.FlowRecord) {
		dropped++
		metrics.IncFlowDropped()
	}) {
		e, ok := s.normalizer.Normalize(r)
		if !ok {
			dropped++
			metrics.IncFlowDropped()
			continue
		}
		events = append(events, e)
	}
	if err := ctx.Err(); err != nil {
		return IngestResult{Received: len(records)}, err
	}

	res, err := s.IngestEvents(ctx, events)
	res.Received = len(records)
	res.Dropped = dropped
	return res, err
}
