package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pulseboard/pulseboard/backend/internal/models"
	"github.com/pulseboard/pulseboard/backend/internal/services"
)

// NotificationProviderHandler manages external delivery targets.
type NotificationProviderHandler struct {
	service *services.NotificationService
}

func NewNotificationProviderHandler(service *services.NotificationService) *NotificationProviderHandler {
	return &NotificationProviderHandler{service: service}
}

// providerRequest is the writable subset of a provider. Subscriptions default
// to on when omitted.
type providerRequest struct {
	Name              string `json:"name"`
	Type              string `json:"type"`
	URL               string `json:"url"`
	Enabled           bool   `json:"enabled"`
	NotifyUptime      *bool  `json:"notify_uptime"`
	NotifyIncidents   *bool  `json:"notify_incidents"`
	NotifyMaintenance *bool  `json:"notify_maintenance"`
}

func (r providerRequest) model(id string) models.NotificationProvider {
	on := func(b *bool) bool { return b == nil || *b }
	return models.NotificationProvider{
		ID:                id,
		Name:              r.Name,
		Type:              r.Type,
		URL:               r.URL,
		Enabled:           r.Enabled,
		NotifyUptime:      on(r.NotifyUptime),
		NotifyIncidents:   on(r.NotifyIncidents),
		NotifyMaintenance: on(r.NotifyMaintenance),
	}
}

func bindProvider(c *gin.Context, id string) (models.NotificationProvider, bool) {
	var req providerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return models.NotificationProvider{}, false
	}
	return req.model(id), true
}

func (h *NotificationProviderHandler) List(c *gin.Context) {
	providers, err := h.service.ListProviders()
	if err != nil {
		respondError(c, err, "Failed to list providers")
		return
	}
	c.JSON(http.StatusOK, providers)
}

func (h *NotificationProviderHandler) Create(c *gin.Context) {
	provider, ok := bindProvider(c, "")
	if !ok {
		return
	}
	if err := h.service.CreateProvider(&provider); err != nil {
		respondError(c, err, "Failed to create provider")
		return
	}
	c.JSON(http.StatusCreated, provider)
}

func (h *NotificationProviderHandler) Update(c *gin.Context) {
	provider, ok := bindProvider(c, c.Param("id"))
	if !ok {
		return
	}
	if err := h.service.UpdateProvider(&provider); err != nil {
		respondError(c, err, "Failed to update provider")
		return
	}
	c.JSON(http.StatusOK, provider)
}

func (h *NotificationProviderHandler) Delete(c *gin.Context) {
	if err := h.service.DeleteProvider(c.Param("id")); err != nil {
		respondError(c, err, "Failed to delete provider")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Provider deleted"})
}

// Test sends a message through an unsaved provider definition. A failure is
// also left in the inbox so it shows up next to status changes.
func (h *NotificationProviderHandler) Test(c *gin.Context) {
	provider, ok := bindProvider(c, "")
	if !ok {
		return
	}
	if err := h.service.TestProvider(provider); err != nil {
		_, _ = h.service.Create(models.NotificationTypeError, "Test Failed",
			fmt.Sprintf("Provider %s test failed: %v", provider.Name, err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Test notification sent"})
}
