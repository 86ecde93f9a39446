package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/gatewatch/internal/services"
)

const maxTimelineBuckets = 1000

type StatsHandler struct {
	repo *services.ThreatRepository
	now  func() time.Time
}

func NewStatsHandler(repo *services.ThreatRepository) *StatsHandler {
	return &StatsHandler{repo: repo, now: time.Now}
}

func (h *StatsHandler) since(c *gin.Context) (time.Time, bool) {
	now := h.now().UTC()
	since, err := parseTime(c, "since", now, now.Add(-defaultWindow))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return time.Time{}, false
	}
	return since, true
}

func (h *StatsHandler) limit(c *gin.Context) (int, bool) {
	limit, err := parseInt(c, "limit", 10)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return 0, false
	}
	return limit, true
}

// Summary handles GET /api/v1/stats/summary
func (h *StatsHandler) Summary(c *gin.Context) {
	since, ok := h.since(c)
	if !ok {
		return
	}
	summary, err := h.repo.Summary(c.Request.Context(), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// TopSources handles GET /api/v1/stats/top-sources
func (h *StatsHandler) TopSources(c *gin.Context) {
	since, ok := h.since(c)
	if !ok {
		return
	}
	limit, ok := h.limit(c)
	if !ok {
		return
	}
	rows, err := h.repo.TopSources(c.Request.Context(), since, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rows == nil {
		rows = []services.SourceCount{}
	}
	c.JSON(http.StatusOK, rows)
}

// TopPorts handles GET /api/v1/stats/top-ports
func (h *StatsHandler) TopPorts(c *gin.Context) {
	since, ok := h.since(c)
	if !ok {
		return
	}
	limit, ok := h.limit(c)
	if !ok {
		return
	}
	rows, err := h.repo.TopPorts(c.Request.Context(), since, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rows == nil {
		rows = []services.PortCount{}
	}
	c.JSON(http.StatusOK, rows)
}

// Countries handles GET /api/v1/stats/countries
func (h *StatsHandler) Countries(c *gin.Context) {
	since, ok := h.since(c)
	if !ok {
		return
	}
	rows, err := h.repo.CountryDistribution(c.Request.Context(), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rows == nil {
		rows = []services.CountryCount{}
	}
	c.JSON(http.StatusOK, rows)
}

// KillChain handles GET /api/v1/stats/kill-chain
func (h *StatsHandler) KillChain(c *gin.Context) {
	since, ok := h.since(c)
	if !ok {
		return
	}
	rows, err := h.repo.KillChainDistribution(c.Request.Context(), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

// Timeline handles GET /api/v1/stats/timeline
func (h *StatsHandler) Timeline(c *gin.Context) {
	now := h.now().UTC()
	since, ok := h.since(c)
	if !ok {
		return
	}
	until, err := parseTime(c, "until", now, now)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	bucket := time.Hour
	if raw := c.Query("bucket"); raw != "" {
		bucket, err = time.ParseDuration(raw)
		if err != nil || bucket < time.Minute {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bucket: minimum is 1m"})
			return
		}
	}
	if until.Before(since) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "until must not be before since"})
		return
	}
	if until.Sub(since)/bucket > maxTimelineBuckets {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many buckets: widen the bucket or narrow the range"})
		return
	}

	rows, err := h.repo.Timeline(c.Request.Context(), since, until, bucket)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bucket": bucket.String(), "buckets": rows})
}
