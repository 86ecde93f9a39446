package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Wikid82/gatewatch/internal/analysis"
	"github.com/Wikid82/gatewatch/internal/logger"
	"github.com/Wikid82/gatewatch/internal/models"
)

var ErrCycleRunning = errors.New("analysis cycle already running")

// PatternStore is the persistence surface of an analysis cycle.
type PatternStore interface {
	EventsSince(ctx context.Context, since time.Time) ([]models.ThreatEvent, error)
	UpsertPattern(ctx context.Context, p *models.ThreatPattern) (*models.ThreatPattern, bool, error)
	LinkEvents(ctx context.Context, patternID uint, eventIDs []uint) error
}

// CycleResult summarizes one analysis run.
type CycleResult struct {
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
	Events    int       `json:"events"`
	Detected  int       `json:"detected"`
	Created   int       `json:"created"`
	Updated   int       `json:"updated"`
	Alerted   int       `json:"alerted"`
}

// AnalysisService runs the detectors over the recent window and persists
// what they find.
type AnalysisService struct {
	store    PatternStore
	orch     *analysis.Orchestrator
	alerts   *AlertService
	lookback time.Duration

	mu sync.Mutex
}

// NewAnalysisService creates the service. alerts may be nil.
func NewAnalysisService(store PatternStore, orch *analysis.Orchestrator, alerts *AlertService, lookback time.Duration) *AnalysisService {
	if orch == nil {
		orch = analysis.NewOrchestrator()
	}
	if lookback <= 0 {
		lookback = time.Hour
	}
	return &AnalysisService{store: store, orch: orch, alerts: alerts, lookback: lookback}
}

// RunCycle loads events from the lookback window, runs every detector and
// upserts the resulting patterns by dedup key, so re-detecting the same
// activity on the next cycle extends the stored pattern instead of
// duplicating it. Concurrent calls return ErrCycleRunning.
func (s *AnalysisService) RunCycle(ctx context.Context) (CycleResult, error) {
	if !s.mu.TryLock() {
		return CycleResult{}, ErrCycleRunning
	}
	defer s.mu.Unlock()

	res := CycleResult{StartedAt: time.Now().UTC()}
	events, err := s.store.EventsSince(ctx, res.StartedAt.Add(-s.lookback))
	if err != nil {
		return res, fmt.Errorf("load events: %w", err)
	}
	res.Events = len(events)

	detected := s.orch.Run(events)
	res.Detected = len(detected)

	stored := make([]models.ThreatPattern, 0, len(detected))
	for i := range detected {
		p, created, err := s.store.UpsertPattern(ctx, &detected[i])
		if err != nil {
			return res, err
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
		if err := s.store.LinkEvents(ctx, p.ID, detected[i].EventIDs); err != nil {
			return res, fmt.Errorf("link events to pattern %d: %w", p.ID, err)
		}
		stored = append(stored, *p)
	}

	if s.alerts != nil && len(stored) > 0 {
		n, err := s.alerts.Notify(ctx, stored)
		res.Alerted = n
		if err != nil {
			logger.Log().WithError(err).Warn("analysis: alerting failed")
		}
	}

	res.Duration = time.Since(res.StartedAt).String()
	logger.Log().WithFields(logrus.Fields{
		"events":   res.Events,
		"detected": res.Detected,
		"created":  res.Created,
		"updated":  res.Updated,
		"alerted":  res.Alerted,
	}).Info("analysis cycle complete")
	return res, nil
}
