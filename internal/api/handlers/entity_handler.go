package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pulseboard/pulseboard/backend/internal/models"
	"github.com/pulseboard/pulseboard/backend/internal/services"
)

// EntityHandler manages platforms, apps and components.
type EntityHandler struct {
	service    *services.EntityService
	aggregator *services.StatusAggregator
}

func NewEntityHandler(service *services.EntityService, aggregator *services.StatusAggregator) *EntityHandler {
	return &EntityHandler{service: service, aggregator: aggregator}
}

// RegisterRoutes mounts the listing routes on read and the mutating ones on write.
func (h *EntityHandler) RegisterRoutes(read, write *gin.RouterGroup) {
	read.GET("/platforms", h.ListPlatforms)
	read.GET("/apps", h.ListApps)
	read.GET("/components", h.ListComponents)

	write.POST("/platforms", h.CreatePlatform)
	write.POST("/apps", h.CreateApp)
	write.POST("/components", h.CreateComponent)
	write.PUT("/components/:id/status", h.SetComponentStatus)
	write.PUT("/entities/:kind/:id/check", h.UpdateCheck)
	write.DELETE("/entities/:kind/:id", h.Delete)
}

func (h *EntityHandler) ListPlatforms(c *gin.Context) {
	out, err := h.service.ListPlatforms(c.Request.Context(), c.Query("organization_id"))
	if err != nil {
		respondError(c, err, "Failed to list platforms")
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *EntityHandler) CreatePlatform(c *gin.Context) {
	var p models.Platform
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p.ID = ""
	if err := h.service.CreatePlatform(c.Request.Context(), &p); err != nil {
		respondError(c, err, "Failed to create platform")
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *EntityHandler) ListApps(c *gin.Context) {
	out, err := h.service.ListApps(c.Request.Context(), c.Query("organization_id"), c.Query("platform_id"))
	if err != nil {
		respondError(c, err, "Failed to list apps")
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *EntityHandler) CreateApp(c *gin.Context) {
	var a models.App
	if err := c.ShouldBindJSON(&a); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a.ID = ""
	if err := h.service.CreateApp(c.Request.Context(), &a); err != nil {
		respondError(c, err, "Failed to create app")
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h *EntityHandler) ListComponents(c *gin.Context) {
	out, err := h.service.ListComponents(c.Request.Context(), c.Query("app_id"))
	if err != nil {
		respondError(c, err, "Failed to list components")
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *EntityHandler) CreateComponent(c *gin.Context) {
	var comp models.Component
	if err := c.ShouldBindJSON(&comp); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	comp.ID = ""
	if err := h.service.CreateComponent(c.Request.Context(), &comp); err != nil {
		respondError(c, err, "Failed to create component")
		return
	}
	c.JSON(http.StatusCreated, comp)
}

type setStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

// SetComponentStatus is the operator override for a component's status.
func (h *EntityHandler) SetComponentStatus(c *gin.Context) {
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status, err := models.ParseStatus(req.Status)
	if err != nil || status == models.StatusMaintenance {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be OPERATIONAL, DEGRADED, PARTIAL_OUTAGE or MAJOR_OUTAGE"})
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "set by operator"
	}
	id := c.Param("id")
	if err := h.aggregator.SetComponentStatus(c.Request.Context(), id, status, reason); err != nil {
		respondError(c, err, "Failed to set component status")
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": status})
}

func (h *EntityHandler) UpdateCheck(c *gin.Context) {
	ref, ok := entityRef(c)
	if !ok {
		return
	}
	var upd services.CheckUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.UpdateCheck(c.Request.Context(), ref, upd); err != nil {
		respondError(c, err, "Failed to update check configuration")
		return
	}
	status, err := h.aggregator.HealthStatus(c.Request.Context(), ref)
	if err != nil {
		respondError(c, err, "Failed to load status")
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *EntityHandler) Delete(c *gin.Context) {
	ref, ok := entityRef(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), ref); err != nil {
		respondError(c, err, "Failed to delete entity")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Deleted"})
}
