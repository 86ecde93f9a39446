package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/gatewatch/internal/models"
	"github.com/Wikid82/gatewatch/internal/services"
)

const maxIngestBatch = 5000

type IngestHandler struct {
	service *services.IngestService
}

func NewIngestHandler(service *services.IngestService) *IngestHandler {
	return &IngestHandler{service: service}
}

// Events handles POST /api/v1/ingest/events
func (h *IngestHandler) Events(c *gin.Context) {
	var events []models.ThreatEvent
	if err := c.ShouldBindJSON(&events); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(events) > maxIngestBatch {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("batch exceeds %d events", maxIngestBatch)})
		return
	}
	for i := range events {
		// Server-assigned fields.
		events[i].ID = 0
		events[i].PatternID = nil
	}
	result, err := h.service.IngestEvents(c.Request.Context(), events)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Flows handles POST /api/v1/ingest/flows
func (h *IngestHandler) Flows(c *gin.Context) {
	var records []models.FlowRecord
	if err := c.ShouldBindJSON(&records); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(records) > maxIngestBatch {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("batch exceeds %d records", maxIngestBatch)})
		return
	}
	result, err := h.service.IngestFlows(c.Request.Context(), records)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
