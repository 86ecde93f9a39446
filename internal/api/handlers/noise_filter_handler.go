package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/gatewatch/internal/models"
	"github.com/Wikid82/gatewatch/internal/services"
)

type NoiseFilterHandler struct {
	service *services.NoiseFilterService
}

func NewNoiseFilterHandler(service *services.NoiseFilterService) *NoiseFilterHandler {
	return &NoiseFilterHandler{service: service}
}

// List handles GET /api/v1/noise-filters
func (h *NoiseFilterHandler) List(c *gin.Context) {
	filters, err := h.service.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if filters == nil {
		filters = []models.ThreatNoiseFilter{}
	}
	c.JSON(http.StatusOK, filters)
}

// Create handles POST /api/v1/noise-filters
func (h *NoiseFilterHandler) Create(c *gin.Context) {
	var f models.ThreatNoiseFilter
	if err := c.ShouldBindJSON(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f.ID = 0
	if err := h.service.Create(c.Request.Context(), &f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, f)
}

// Update handles PUT /api/v1/noise-filters/:id
func (h *NoiseFilterHandler) Update(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var updates models.ThreatNoiseFilter
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	f, err := h.service.Update(c.Request.Context(), id, &updates)
	if err != nil {
		if errors.Is(err, services.ErrNoiseFilterNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "noise filter not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, f)
}

// Delete handles DELETE /api/v1/noise-filters/:id
func (h *NoiseFilterHandler) Delete(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, services.ErrNoiseFilterNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "noise filter not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "noise filter deleted"})
}
