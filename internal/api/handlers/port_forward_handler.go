package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/gatewatch/internal/models"
	"github.com/Wikid82/gatewatch/internal/services"
)

type PortForwardHandler struct {
	service *services.PortForwardService
}

func NewPortForwardHandler(service *services.PortForwardService) *PortForwardHandler {
	return &PortForwardHandler{service: service}
}

// List handles GET /api/v1/port-forwards
func (h *PortForwardHandler) List(c *gin.Context) {
	rules, err := h.service.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rules == nil {
		rules = []models.PortForward{}
	}
	c.JSON(http.StatusOK, rules)
}

// Create handles POST /api/v1/port-forwards
func (h *PortForwardHandler) Create(c *gin.Context) {
	var rule models.PortForward
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule.ID = 0
	if err := h.service.Create(c.Request.Context(), &rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// Delete handles DELETE /api/v1/port-forwards/:id
func (h *PortForwardHandler) Delete(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, services.ErrPortForwardNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "port forward not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "port forward deleted"})
}
