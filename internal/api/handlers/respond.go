package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pulseboard/pulseboard/backend/internal/api/middleware"
	"github.com/pulseboard/pulseboard/backend/internal/models"
	"github.com/pulseboard/pulseboard/backend/internal/services"
)

// statusFor maps service errors onto HTTP statuses. Unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrEntityNotFound),
		errors.Is(err, services.ErrIncidentNotFound),
		errors.Is(err, services.ErrMaintenanceMissing),
		errors.Is(err, services.ErrNotificationNotFound),
		errors.Is(err, services.ErrProviderNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrCheckInProgress),
		errors.Is(err, services.ErrIncidentResolved),
		errors.Is(err, services.ErrMaintenanceClosed):
		return http.StatusConflict
	case errors.Is(err, services.ErrInvalidCheckConfig),
		errors.Is(err, services.ErrInvalidKind),
		errors.Is(err, services.ErrInvalidDays),
		errors.Is(err, services.ErrInvalidDate),
		errors.Is(err, services.ErrInvalidWindow),
		errors.Is(err, services.ErrNoChecks),
		errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondError writes err as {"error": ...}. Internal errors are logged and
// replaced by fallback so storage details do not leak.
func respondError(c *gin.Context, err error, fallback string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		middleware.GetRequestLogger(c).WithError(err).Error(fallback)
		c.JSON(status, gin.H{"error": fallback})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// entityRef reads the :kind and :id path parameters.
func entityRef(c *gin.Context) (models.EntityRef, bool) {
	kind, err := models.ParseEntityKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return models.EntityRef{}, false
	}
	return models.EntityRef{Kind: kind, ID: c.Param("id")}, true
}
