package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pulseboard/pulseboard/backend/internal/services"
)

// CheckHandler serves on-demand probes and the stored status of an entity.
type CheckHandler struct {
	scheduler  *services.CheckScheduler
	aggregator *services.StatusAggregator
}

func NewCheckHandler(scheduler *services.CheckScheduler, aggregator *services.StatusAggregator) *CheckHandler {
	return &CheckHandler{scheduler: scheduler, aggregator: aggregator}
}

// Trigger runs a probe now. A failed probe is still a 200; the body says so.
func (h *CheckHandler) Trigger(c *gin.Context) {
	ref, ok := entityRef(c)
	if !ok {
		return
	}
	res, err := h.scheduler.TriggerNow(c.Request.Context(), ref)
	if err != nil {
		respondError(c, err, "Failed to record check result")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     res.Success,
		"message":     res.Message,
		"duration_ms": res.DurationMs(),
	})
}

func (h *CheckHandler) Status(c *gin.Context) {
	ref, ok := entityRef(c)
	if !ok {
		return
	}
	status, err := h.aggregator.HealthStatus(c.Request.Context(), ref)
	if err != nil {
		respondError(c, err, "Failed to load status")
		return
	}
	c.JSON(http.StatusOK, status)
}
