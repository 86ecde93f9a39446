package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/Wikid82/gatewatch/internal/analysis"
	"github.com/Wikid82/gatewatch/internal/api/routes"
	"github.com/Wikid82/gatewatch/internal/config"
	"github.com/Wikid82/gatewatch/internal/crowdsec"
	"github.com/Wikid82/gatewatch/internal/database"
	"github.com/Wikid82/gatewatch/internal/geoip"
	"github.com/Wikid82/gatewatch/internal/jobs"
	"github.com/Wikid82/gatewatch/internal/logger"
	"github.com/Wikid82/gatewatch/internal/metrics"
	"github.com/Wikid82/gatewatch/internal/server"
	"github.com/Wikid82/gatewatch/internal/services"
	"github.com/Wikid82/gatewatch/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log().WithError(err).Fatal("load config")
	}

	// Log to both stdout and a rotated file
	mw := io.MultiWriter(os.Stdout, logger.RotatingFile(cfg.LogDir, "gatewatch.log"))
	logger.Init(cfg.Debug, mw)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Handle CLI commands
	if len(os.Args) > 1 && os.Args[1] == "geoip-update" {
		geo := geoip.NewService(cfg.GeoIP.Dir)
		defer geo.Close()
		dl := geoip.NewDownloader(cfg.GeoIP.Dir, cfg.GeoIP.LicenseKey, cfg.GeoIP.DownloadURL)
		if err := dl.Update(ctx, geo); err != nil {
			logger.Log().WithError(err).Fatal("geoip update failed")
		}
		logger.Log().WithField("dir", cfg.GeoIP.Dir).Info("GeoIP databases updated")
		return
	}

	logger.Log().WithFields(logrus.Fields{
		"version":     version.Full(),
		"environment": cfg.Environment,
	}).Infof("starting %s", version.Name)

	metrics.Register(prometheus.DefaultRegisterer)

	db, err := database.Connect(cfg.DatabasePath)
	if err != nil {
		logger.Log().WithError(err).Fatal("connect database")
	}

	repo := services.NewThreatRepository(db)

	geo := geoip.NewService(cfg.GeoIP.Dir)
	defer geo.Close()
	var downloader *geoip.Downloader
	if cfg.GeoIP.LicenseKey != "" {
		downloader = geoip.NewDownloader(cfg.GeoIP.Dir, cfg.GeoIP.LicenseKey, cfg.GeoIP.DownloadURL)
		if !geo.Complete() {
			if err := downloader.Update(ctx, geo); err != nil {
				logger.Log().WithError(err).Warn("initial GeoIP download failed, continuing with the databases present")
			}
		}
	}
	if cfg.GeoIP.WatchDir {
		if err := os.MkdirAll(cfg.GeoIP.Dir, 0o755); err != nil {
			logger.Log().WithError(err).Warn("cannot create GeoIP directory, file watching disabled")
		} else {
			go func() {
				if err := geoip.NewWatcher(geo, 0).Run(ctx); err != nil {
					logger.Log().WithError(err).Warn("GeoIP watcher stopped")
				}
			}()
		}
	}

	quota := crowdsec.NewQuotaCounter(ctx, cfg.CrowdSec.DailyQuota, cfg.CrowdSec.SafetyMargin, repo)
	reputation := crowdsec.NewService(crowdsec.NewClient(cfg.CrowdSec.BaseURL, cfg.CrowdSec.APIKey), repo, quota)
	if cfg.CrowdSec.APIKey == "" {
		logger.Log().Info("CrowdSec API key not set, reputation lookups disabled")
	}

	alerts := services.NewAlertService(db, repo)
	analysisService := services.NewAnalysisService(repo, analysis.NewOrchestrator(), alerts, cfg.Analysis.Lookback)
	backfill := services.NewGeoBackfillService(repo, geo, cfg.Analysis.BackfillBatchSize)

	scheduler := jobs.NewScheduler()
	if err := jobs.Register(scheduler, cfg, jobs.Deps{
		Repo:       repo,
		Analysis:   analysisService,
		Backfill:   backfill,
		Geo:        geo,
		Downloader: downloader,
	}); err != nil {
		logger.Log().WithError(err).Fatal("register jobs")
	}
	scheduler.Start()
	defer scheduler.Stop()

	srv := server.New(cfg, routes.Deps{
		Repo:         repo,
		NoiseFilters: services.NewNoiseFilterService(db),
		PortForwards: services.NewPortForwardService(db),
		Exposure:     services.NewExposureService(repo),
		Ingest:       services.NewIngestService(repo, nil, geo),
		Analysis:     analysisService,
		Alerts:       alerts,
		Updates:      services.NewUpdateService(),
		Reputation:   reputation,
		Geo:          geo,
		Scheduler:    scheduler,
	})

	if err := srv.Run(ctx); err != nil {
		logger.Log().WithError(err).Error("server error")
		return
	}
	logger.Log().Info("shutdown complete")
}
