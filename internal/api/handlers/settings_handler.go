package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pulseboard/pulseboard/backend/internal/services"
)

// SettingsHandler exposes the runtime scheduler settings. Changes apply on the
// scheduler's next tick.
type SettingsHandler struct {
	service *services.SettingsService
}

func NewSettingsHandler(service *services.SettingsService) *SettingsHandler {
	return &SettingsHandler{service: service}
}

func (h *SettingsHandler) GetHealthCheck(c *gin.Context) {
	settings, err := h.service.HealthCheck()
	if err != nil {
		respondError(c, err, "Failed to fetch settings")
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *SettingsHandler) UpdateHealthCheck(c *gin.Context) {
	current, err := h.service.HealthCheck()
	if err != nil {
		respondError(c, err, "Failed to fetch settings")
		return
	}
	// fields missing from the body keep their current value
	if err := c.ShouldBindJSON(&current); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.UpdateHealthCheck(current); err != nil {
		respondError(c, err, "Failed to save settings")
		return
	}
	c.JSON(http.StatusOK, current)
}
