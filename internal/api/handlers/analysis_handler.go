package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/gatewatch/internal/services"
)

type AnalysisHandler struct {
	service *services.AnalysisService
}

func NewAnalysisHandler(service *services.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{service: service}
}

// Run handles POST /api/v1/analysis/run
func (h *AnalysisHandler) Run(c *gin.Context) {
	result, err := h.service.RunCycle(c.Request.Context())
	if err != nil {
		if errors.Is(err, services.ErrCycleRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
