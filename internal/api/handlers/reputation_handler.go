package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/gatewatch/internal/crowdsec"
)

type ReputationHandler struct {
	service *crowdsec.Service
}

func NewReputationHandler(service *crowdsec.Service) *ReputationHandler {
	return &ReputationHandler{service: service}
}

// Get handles GET /api/v1/reputation/:ip
// Lookup failures are reported through the result status, never as 5xx.
func (h *ReputationHandler) Get(c *gin.Context) {
	ip := c.Param("ip")
	if !validIP(ip) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid IP address"})
		return
	}
	result := h.service.GetReputation(c.Request.Context(), ip)
	resp := gin.H{"result": result}
	if result.Reputation != nil {
		resp["malicious"] = result.Reputation.Malicious()
	}
	c.JSON(http.StatusOK, resp)
}

// Quota handles GET /api/v1/reputation/quota
func (h *ReputationHandler) Quota(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Quota())
}
