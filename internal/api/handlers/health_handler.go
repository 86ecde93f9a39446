package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/gatewatch/internal/crowdsec"
	"github.com/Wikid82/gatewatch/internal/geoip"
	"github.com/Wikid82/gatewatch/internal/logger"
	"github.com/Wikid82/gatewatch/internal/services"
	"github.com/Wikid82/gatewatch/internal/version"
)

const healthPingTimeout = 2 * time.Second

// HealthHandler reports build metadata and the state of the enrichment
// sources. Geo and reputation are optional and reported as disabled when nil.
type HealthHandler struct {
	repo       *services.ThreatRepository
	geo        *geoip.Service
	reputation *crowdsec.Service
}

func NewHealthHandler(repo *services.ThreatRepository, geo *geoip.Service, reputation *crowdsec.Service) *HealthHandler {
	return &HealthHandler{repo: repo, geo: geo, reputation: reputation}
}

// Check handles GET /api/v1/health. Only an unreachable database makes the
// service unhealthy; missing geo databases or CrowdSec key degrade it.
func (h *HealthHandler) Check(c *gin.Context) {
	status := "ok"
	code := http.StatusOK

	database := "ok"
	if h.repo != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
		defer cancel()
		if err := h.repo.Ping(ctx); err != nil {
			logger.Log().WithError(err).Warn("health: database ping failed")
			database = "unreachable"
			status = "unavailable"
			code = http.StatusServiceUnavailable
		}
	}

	var city, asn bool
	if h.geo != nil {
		city, asn = h.geo.Databases()
	}
	configured := h.reputation != nil && h.reputation.Configured()
	reputation := gin.H{"configured": configured}
	if configured {
		reputation["remaining"] = h.reputation.Quota().Remaining
	}

	if status == "ok" && !(city && asn && configured) {
		status = "degraded"
	}

	c.JSON(code, gin.H{
		"status":     status,
		"service":    version.Name,
		"version":    version.Version,
		"git_commit": version.GitCommit,
		"build_time": version.BuildTime,
		"database":   database,
		"geoip":      gin.H{"city": city, "asn": asn},
		"crowdsec":   reputation,
	})
}
