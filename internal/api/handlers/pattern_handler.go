package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/gatewatch/internal/models"
	"github.com/Wikid82/gatewatch/internal/services"
)

type PatternHandler struct {
	repo *services.ThreatRepository
	now  func() time.Time
}

func NewPatternHandler(repo *services.ThreatRepository) *PatternHandler {
	return &PatternHandler{repo: repo, now: time.Now}
}

// patternView decodes the stored source IP list for API consumers.
type patternView struct {
	models.ThreatPattern
	SourceIPs []string `json:"source_ips"`
}

func viewPattern(p models.ThreatPattern) patternView {
	ips := p.SourceIPList()
	if ips == nil {
		ips = []string{}
	}
	return patternView{ThreatPattern: p, SourceIPs: ips}
}

// List handles GET /api/v1/patterns
func (h *PatternHandler) List(c *gin.Context) {
	now := h.now().UTC()
	since, err := parseTime(c, "since", now, now.Add(-7*defaultWindow))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit, err := parseInt(c, "limit", defaultPageSize)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	q := services.PatternQuery{Since: since, Limit: limit}
	if t := c.Query("type"); t != "" {
		switch models.PatternType(t) {
		case models.PatternScanSweep, models.PatternBruteForce, models.PatternExploitCampaign, models.PatternDDoS:
			q.Type = models.PatternType(t)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pattern type"})
			return
		}
	}

	patterns, err := h.repo.ListPatterns(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	views := make([]patternView, 0, len(patterns))
	for _, p := range patterns {
		views = append(views, viewPattern(p))
	}
	c.JSON(http.StatusOK, views)
}

// Get handles GET /api/v1/patterns/:id
func (h *PatternHandler) Get(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.repo.GetPattern(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrPatternNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "pattern not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	events, err := h.repo.PatternEvents(c.Request.Context(), p.ID, defaultPageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if events == nil {
		events = []models.ThreatEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"pattern": viewPattern(*p), "events": events})
}
