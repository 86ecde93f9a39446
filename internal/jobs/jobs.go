package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Wikid82/gatewatch/internal/config"
	"github.com/Wikid82/gatewatch/internal/geoip"
	"github.com/Wikid82/gatewatch/internal/logger"
	"github.com/Wikid82/gatewatch/internal/services"
)

// Job names.
const (
	JobAnalysis        = "analysis"
	JobGeoBackfill     = "geo_backfill"
	JobReputationPurge = "reputation_purge"
	JobRetention       = "retention"
	JobGeoIPUpdate     = "geoip_update"
)

// Deps are the services the background jobs drive.
type Deps struct {
	Repo       *services.ThreatRepository
	Analysis   *services.AnalysisService
	Backfill   *services.GeoBackfillService
	Geo        *geoip.Service
	Downloader *geoip.Downloader
}

// Register schedules every Gatewatch job on s according to cfg.
func Register(s *Scheduler, cfg config.Config, d Deps) error {
	if err := s.Add(JobAnalysis, cfg.Analysis.Schedule, func(ctx context.Context) error {
		_, err := d.Analysis.RunCycle(ctx)
		if errors.Is(err, services.ErrCycleRunning) {
			return nil
		}
		return err
	}); err != nil {
		return err
	}

	if err := s.Add(JobGeoBackfill, cfg.Analysis.BackfillSchedule, func(ctx context.Context) error {
		_, err := d.Backfill.Run(ctx)
		return err
	}); err != nil {
		return err
	}

	if err := s.Add(JobReputationPurge, cfg.CrowdSec.PurgeSchedule, func(ctx context.Context) error {
		n, err := d.Repo.PurgeExpiredReputation(ctx, time.Now().UTC())
		if err == nil && n > 0 {
			logger.Log().WithField("entries", n).Info("purged expired reputation cache entries")
		}
		return err
	}); err != nil {
		return err
	}

	retentionSpec := cfg.Analysis.RetentionSchedule
	if cfg.Analysis.RetentionDays <= 0 {
		retentionSpec = ""
	}
	if err := s.Add(JobRetention, retentionSpec, func(ctx context.Context) error {
		cutoff := time.Now().UTC().AddDate(0, 0, -cfg.Analysis.RetentionDays)
		patterns, events, err := d.Repo.DeleteBefore(ctx, cutoff)
		if err == nil && patterns+events > 0 {
			logger.Log().WithFields(logrus.Fields{
				"patterns": patterns,
				"events":   events,
				"cutoff":   cutoff.Format(time.RFC3339),
			}).Info("retention cleanup complete")
		}
		return err
	}); err != nil {
		return err
	}

	geoSpec := cfg.GeoIP.UpdateSchedule
	if cfg.GeoIP.LicenseKey == "" || d.Downloader == nil {
		geoSpec = ""
	}
	return s.Add(JobGeoIPUpdate, geoSpec, func(ctx context.Context) error {
		return d.Downloader.Update(ctx, d.Geo)
	})
}
