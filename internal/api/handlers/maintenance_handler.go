package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pulseboard/pulseboard/backend/internal/services"
)

type MaintenanceHandler struct {
	service *services.MaintenanceService
}

func NewMaintenanceHandler(service *services.MaintenanceService) *MaintenanceHandler {
	return &MaintenanceHandler{service: service}
}

// List returns maintenance windows by start time. ?upcoming=true hides ended and cancelled ones.
func (h *MaintenanceHandler) List(c *gin.Context) {
	out, err := h.service.List(c.Request.Context(), c.Query("app_id"), c.Query("upcoming") == "true")
	if err != nil {
		respondError(c, err, "Failed to list maintenance")
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *MaintenanceHandler) Get(c *gin.Context) {
	m, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to load maintenance")
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *MaintenanceHandler) Schedule(c *gin.Context) {
	var in services.ScheduleMaintenanceInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m, err := h.service.Schedule(c.Request.Context(), in)
	if err != nil {
		respondError(c, err, "Failed to schedule maintenance")
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *MaintenanceHandler) Cancel(c *gin.Context) {
	m, err := h.service.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to cancel maintenance")
		return
	}
	c.JSON(http.StatusOK, m)
}
