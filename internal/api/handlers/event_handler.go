package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/gatewatch/internal/models"
	"github.com/Wikid82/gatewatch/internal/services"
)

const (
	defaultWindow   = 24 * time.Hour
	defaultPageSize = 100
	maxPageSize     = 1000
)

type EventHandler struct {
	repo  *services.ThreatRepository
	noise *services.NoiseFilterService
	now   func() time.Time
}

func NewEventHandler(repo *services.ThreatRepository, noise *services.NoiseFilterService) *EventHandler {
	return &EventHandler{repo: repo, noise: noise, now: time.Now}
}

// List handles GET /api/v1/events
func (h *EventHandler) List(c *gin.Context) {
	q, err := h.eventQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	events, err := h.repo.QueryEvents(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	hidden := 0
	if c.Query("include_filtered") != "true" {
		events, hidden, err = h.noise.Apply(c.Request.Context(), events)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	if events == nil {
		events = []models.ThreatEvent{}
	}

	c.JSON(http.StatusOK, gin.H{
		"events":   events,
		"count":    len(events),
		"filtered": hidden,
		"since":    q.Since,
		"until":    q.Until,
	})
}

func (h *EventHandler) eventQuery(c *gin.Context) (services.EventQuery, error) {
	now := h.now().UTC()
	since, err := parseTime(c, "since", now, now.Add(-defaultWindow))
	if err != nil {
		return services.EventQuery{}, err
	}
	until, err := parseTime(c, "until", now, now)
	if err != nil {
		return services.EventQuery{}, err
	}
	if until.Before(since) {
		return services.EventQuery{}, errors.New("until must not be before since")
	}

	q := services.EventQuery{
		Since:    since,
		Until:    until,
		SourceIP: strings.TrimSpace(c.Query("source_ip")),
		DestIP:   strings.TrimSpace(c.Query("dest_ip")),
		Protocol: strings.ToLower(strings.TrimSpace(c.Query("protocol"))),
	}
	if q.SourceIP != "" && !validIP(q.SourceIP) {
		return q, errors.New("invalid source_ip")
	}
	if q.DestIP != "" && !validIP(q.DestIP) {
		return q, errors.New("invalid dest_ip")
	}
	if c.Query("dest_port") != "" {
		port, err := parseInt(c, "dest_port", 0)
		if err != nil || port < 1 || port > 65535 {
			return q, errors.New("invalid dest_port")
		}
		q.DestPort = &port
	}
	if stage := c.Query("stage"); stage != "" {
		if !knownStage(models.KillChainStage(stage)) {
			return q, errors.New("invalid stage")
		}
		q.Stage = models.KillChainStage(stage)
	}
	if src := c.Query("event_source"); src != "" {
		switch models.EventSource(src) {
		case models.EventSourceIPS, models.EventSourceTrafficFlow:
			q.EventSource = models.EventSource(src)
		default:
			return q, errors.New("invalid event_source")
		}
	}

	limit, err := parseInt(c, "limit", defaultPageSize)
	if err != nil {
		return q, err
	}
	if limit == 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	q.Limit = limit
	if q.Offset, err = parseInt(c, "offset", 0); err != nil {
		return q, err
	}
	return q, nil
}

func knownStage(s models.KillChainStage) bool {
	for _, st := range models.KillChainStages {
		if st == s {
			return true
		}
	}
	return false
}

// Get handles GET /api/v1/events/:id
func (h *EventHandler) Get(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	event, err := h.repo.GetEvent(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrEventNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, event)
}

// AttackSequence handles GET /api/v1/attack-sequence/:ip
// It returns every event from the address in chronological order.
func (h *EventHandler) AttackSequence(c *gin.Context) {
	ip := c.Param("ip")
	if !validIP(ip) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid IP address"})
		return
	}
	now := h.now().UTC()
	since, err := parseTime(c, "since", now, now.Add(-7*defaultWindow))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	events, err := h.repo.AttackSequence(c.Request.Context(), ip, since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if events == nil {
		events = []models.ThreatEvent{}
	}

	stages := make([]models.KillChainStage, 0, len(events))
	var highest models.KillChainStage
	for _, e := range events {
		if len(stages) == 0 || stages[len(stages)-1] != e.KillChainStage {
			stages = append(stages, e.KillChainStage)
		}
		if stageRank(e.KillChainStage) > stageRank(highest) {
			highest = e.KillChainStage
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"ip":            ip,
		"events":        events,
		"progression":   stages,
		"highest_stage": highest,
	})
}

func stageRank(s models.KillChainStage) int {
	for i, st := range models.KillChainStages {
		if st == s {
			return i + 1
		}
	}
	return 0
}
