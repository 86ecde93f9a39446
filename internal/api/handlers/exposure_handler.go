package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/gatewatch/internal/services"
)

type ExposureHandler struct {
	exposure *services.ExposureService
	rules    *services.PortForwardService
	now      func() time.Time
}

func NewExposureHandler(exposure *services.ExposureService, rules *services.PortForwardService) *ExposureHandler {
	return &ExposureHandler{exposure: exposure, rules: rules, now: time.Now}
}

// Report handles GET /api/v1/exposure
func (h *ExposureHandler) Report(c *gin.Context) {
	now := h.now().UTC()
	since, err := parseTime(c, "since", now, now.Add(-7*defaultWindow))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rules, err := h.rules.ListEnabled(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	report, err := h.exposure.Report(c.Request.Context(), rules, since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}
