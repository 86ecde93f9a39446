package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Wikid82/gatewatch/internal/api/handlers"
	"github.com/Wikid82/gatewatch/internal/crowdsec"
	"github.com/Wikid82/gatewatch/internal/geoip"
	"github.com/Wikid82/gatewatch/internal/jobs"
	"github.com/Wikid82/gatewatch/internal/services"
)

// Deps holds the services the API exposes. Scheduler and Metrics are optional.
type Deps struct {
	Repo         *services.ThreatRepository
	NoiseFilters *services.NoiseFilterService
	PortForwards *services.PortForwardService
	Exposure     *services.ExposureService
	Ingest       *services.IngestService
	Analysis     *services.AnalysisService
	Alerts       *services.AlertService
	Updates      *services.UpdateService
	Reputation   *crowdsec.Service
	Geo          *geoip.Service
	Scheduler    *jobs.Scheduler
	Metrics      http.Handler
}

// Register wires up the versioned API routes and the metrics endpoint.
func Register(router *gin.Engine, d Deps) {
	metricsHandler := d.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	router.GET("/metrics", gin.WrapH(metricsHandler))

	api := router.Group("/api/v1")
	healthHandler := handlers.NewHealthHandler(d.Repo, d.Geo, d.Reputation)
	api.GET("/health", healthHandler.Check)

	eventHandler := handlers.NewEventHandler(d.Repo, d.NoiseFilters)
	api.GET("/events", eventHandler.List)
	api.GET("/events/:id", eventHandler.Get)
	api.GET("/attack-sequence/:ip", eventHandler.AttackSequence)

	statsHandler := handlers.NewStatsHandler(d.Repo)
	stats := api.Group("/stats")
	stats.GET("/summary", statsHandler.Summary)
	stats.GET("/top-sources", statsHandler.TopSources)
	stats.GET("/top-ports", statsHandler.TopPorts)
	stats.GET("/countries", statsHandler.Countries)
	stats.GET("/timeline", statsHandler.Timeline)
	stats.GET("/kill-chain", statsHandler.KillChain)

	patternHandler := handlers.NewPatternHandler(d.Repo)
	api.GET("/patterns", patternHandler.List)
	api.GET("/patterns/:id", patternHandler.Get)

	noiseHandler := handlers.NewNoiseFilterHandler(d.NoiseFilters)
	api.GET("/noise-filters", noiseHandler.List)
	api.POST("/noise-filters", noiseHandler.Create)
	api.PUT("/noise-filters/:id", noiseHandler.Update)
	api.DELETE("/noise-filters/:id", noiseHandler.Delete)

	forwardHandler := handlers.NewPortForwardHandler(d.PortForwards)
	api.GET("/port-forwards", forwardHandler.List)
	api.POST("/port-forwards", forwardHandler.Create)
	api.DELETE("/port-forwards/:id", forwardHandler.Delete)

	exposureHandler := handlers.NewExposureHandler(d.Exposure, d.PortForwards)
	api.GET("/exposure", exposureHandler.Report)

	reputationHandler := handlers.NewReputationHandler(d.Reputation)
	api.GET("/reputation/quota", reputationHandler.Quota)
	api.GET("/reputation/:ip", reputationHandler.Get)

	geoHandler := handlers.NewGeoHandler(d.Geo)
	api.GET("/geo/:ip", geoHandler.Lookup)
	api.POST("/geo/reload", geoHandler.Reload)

	analysisHandler := handlers.NewAnalysisHandler(d.Analysis)
	api.POST("/analysis/run", analysisHandler.Run)

	ingestHandler := handlers.NewIngestHandler(d.Ingest)
	api.POST("/ingest/events", ingestHandler.Events)
	api.POST("/ingest/flows", ingestHandler.Flows)

	providerHandler := handlers.NewNotificationProviderHandler(d.Alerts)
	api.GET("/notification-providers", providerHandler.List)
	api.POST("/notification-providers", providerHandler.Create)
	api.POST("/notification-providers/test", providerHandler.Test)
	api.DELETE("/notification-providers/:id", providerHandler.Delete)

	if d.Updates != nil {
		updateHandler := handlers.NewUpdateHandler(d.Updates)
		api.GET("/system/updates", updateHandler.Check)
	}

	if d.Scheduler != nil {
		jobHandler := handlers.NewJobHandler(d.Scheduler)
		api.GET("/jobs", jobHandler.List)
		api.POST("/jobs/:name/run", jobHandler.Run)
	}
}
