package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/gatewatch/internal/jobs"
)

type JobHandler struct {
	scheduler *jobs.Scheduler
}

func NewJobHandler(scheduler *jobs.Scheduler) *JobHandler {
	return &JobHandler{scheduler: scheduler}
}

// List handles GET /api/v1/jobs
func (h *JobHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": h.scheduler.Jobs()})
}

// Run handles POST /api/v1/jobs/:name/run
// The job runs asynchronously under the scheduler's skip-if-running guard.
func (h *JobHandler) Run(c *gin.Context) {
	name := c.Param("name")
	if !h.scheduler.Trigger(name) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "job triggered", "job": name})
}
