package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/gatewatch/internal/logger"
	"github.com/Wikid82/gatewatch/internal/services"
)

// UpdateHandler exposes the release check so operators can tell whether
// newer detection logic has shipped.
type UpdateHandler struct {
	service *services.UpdateService
}

func NewUpdateHandler(service *services.UpdateService) *UpdateHandler {
	return &UpdateHandler{service: service}
}

// Check handles GET /api/v1/system/updates. refresh=true bypasses the
// hourly cache.
func (h *UpdateHandler) Check(c *gin.Context) {
	if raw := c.Query("refresh"); raw != "" {
		refresh, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "refresh must be a boolean"})
			return
		}
		if refresh {
			h.service.ClearCache()
		}
	}

	info, err := h.service.CheckForUpdates(c.Request.Context())
	if err != nil {
		logger.Log().WithError(err).Warn("release check failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "release check failed"})
		return
	}
	c.JSON(http.StatusOK, info)
}
