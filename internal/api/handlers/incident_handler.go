package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pulseboard/pulseboard/backend/internal/models"
	"github.com/pulseboard/pulseboard/backend/internal/services"
)

type IncidentHandler struct {
	service *services.IncidentService
}

func NewIncidentHandler(service *services.IncidentService) *IncidentHandler {
	return &IncidentHandler{service: service}
}

// List returns incidents, newest first. ?app_id filters, ?active=true hides resolved ones.
func (h *IncidentHandler) List(c *gin.Context) {
	out, err := h.service.List(c.Request.Context(), c.Query("app_id"), c.Query("active") == "true")
	if err != nil {
		respondError(c, err, "Failed to list incidents")
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *IncidentHandler) Get(c *gin.Context) {
	inc, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to load incident")
		return
	}
	c.JSON(http.StatusOK, inc)
}

func (h *IncidentHandler) Create(c *gin.Context) {
	var in services.CreateIncidentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	inc, err := h.service.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, err, "Failed to create incident")
		return
	}
	c.JSON(http.StatusCreated, inc)
}

type incidentUpdateRequest struct {
	Status  models.IncidentStatus `json:"status" binding:"required"`
	Message string                `json:"message"`
}

// AddUpdate appends a timeline entry; status RESOLVED resolves the incident.
func (h *IncidentHandler) AddUpdate(c *gin.Context) {
	var req incidentUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	inc, err := h.service.AddUpdate(c.Request.Context(), c.Param("id"), req.Status, req.Message)
	if err != nil {
		respondError(c, err, "Failed to update incident")
		return
	}
	c.JSON(http.StatusOK, inc)
}

type resolveRequest struct {
	Message string `json:"message"`
}

func (h *IncidentHandler) Resolve(c *gin.Context) {
	var req resolveRequest
	// body is optional
	_ = c.ShouldBindJSON(&req)
	inc, err := h.service.Resolve(c.Request.Context(), c.Param("id"), req.Message)
	if err != nil {
		respondError(c, err, "Failed to resolve incident")
		return
	}
	c.JSON(http.StatusOK, inc)
}
