package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/gatewatch/internal/geoip"
)

type GeoHandler struct {
	service *geoip.Service
}

func NewGeoHandler(service *geoip.Service) *GeoHandler {
	return &GeoHandler{service: service}
}

// Lookup handles GET /api/v1/geo/:ip
func (h *GeoHandler) Lookup(c *gin.Context) {
	ip := c.Param("ip")
	if !validIP(ip) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid IP address"})
		return
	}
	if !h.service.Available() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "GeoIP database not loaded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ip": ip, "geo": h.service.Enrich(c.Request.Context(), ip)})
}

// Reload handles POST /api/v1/geo/reload
func (h *GeoHandler) Reload(c *gin.Context) {
	if err := h.service.Reload(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"available": h.service.Available()})
}
