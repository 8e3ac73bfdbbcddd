package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pulseboard/pulseboard/backend/internal/models"
	"github.com/pulseboard/pulseboard/backend/internal/services"
)

const maxNotificationLimit = 500

// NotificationHandler serves the operator inbox fed by status changes.
type NotificationHandler struct {
	service *services.NotificationService
}

func NewNotificationHandler(service *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// List handles GET /notifications?unread=true&kind=component&id=...&limit=50.
func (h *NotificationHandler) List(c *gin.Context) {
	filter := services.NotificationFilter{UnreadOnly: c.Query("unread") == "true"}

	if raw := c.Query("kind"); raw != "" {
		kind, err := models.ParseEntityKind(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id := c.Query("id")
		if id == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id is required with kind"})
			return
		}
		filter.Entity = &models.EntityRef{Kind: kind, ID: id}
	}

	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxNotificationLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		filter.Limit = n
	}

	notifications, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, "Failed to list notifications")
		return
	}
	c.JSON(http.StatusOK, notifications)
}

func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	if err := h.service.MarkAsRead(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err, "Failed to mark notification as read")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	n, err := h.service.MarkAllAsRead(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to mark all notifications as read")
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}
