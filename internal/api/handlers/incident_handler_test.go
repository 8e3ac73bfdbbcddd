package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard/backend/internal/models"
	"github.com/pulseboard/pulseboard/backend/internal/services"
)

func TestIncidentHandler_Lifecycle(t *testing.T) {
	f := newFixture(t)
	_, app, comp := f.seed(t)

	w := f.do(t, http.MethodPost, "/api/v1/incidents", map[string]interface{}{
		"app_id":     app.ID,
		"title":      "Checkout errors",
		"severity":   "critical",
		"message":    "Investigating elevated 5xx",
		"is_public":  true,
		"components": []map[string]string{{"component_id": comp.ID}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	inc := decode[models.Incident](t, w)
	assert.Equal(t, models.SeverityCritical, inc.Severity)
	assert.Equal(t, models.IncidentInvestigating, inc.Status)

	w = f.do(t, http.MethodGet, "/api/v1/status/components/"+comp.ID, nil)
	assert.Equal(t, models.StatusMajorOutage, decode[services.HealthStatus](t, w).Status)

	w = f.do(t, http.MethodPost, "/api/v1/incidents/"+inc.ID+"/updates", map[string]string{
		"status": "IDENTIFIED", "message": "Bad deploy",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.IncidentIdentified, decode[models.Incident](t, w).Status)

	w = f.do(t, http.MethodGet, "/api/v1/incidents?active=true&app_id="+app.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Incident](t, w), 1)

	w = f.do(t, http.MethodPost, "/api/v1/incidents/"+inc.ID+"/resolve", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resolved := decode[models.Incident](t, w)
	assert.Equal(t, models.IncidentResolved, resolved.Status)
	assert.NotNil(t, resolved.ResolvedAt)
	assert.Len(t, resolved.Updates, 3)

	w = f.do(t, http.MethodGet, "/api/v1/status/apps/"+app.ID, nil)
	assert.Equal(t, models.StatusOperational, decode[services.HealthStatus](t, w).Status)

	w = f.do(t, http.MethodPost, "/api/v1/incidents/"+inc.ID+"/resolve", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/incidents/"+inc.ID+"/updates", map[string]string{"status": "MONITORING"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/incidents?active=true", nil)
	assert.Empty(t, decode[[]models.Incident](t, w))
}

func TestIncidentHandler_Errors(t *testing.T) {
	f := newFixture(t)
	_, app, comp := f.seed(t)

	w := f.do(t, http.MethodPost, "/api/v1/incidents", map[string]interface{}{"title": "no app"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/incidents", map[string]interface{}{
		"app_id": app.ID, "title": "x", "severity": "APOCALYPTIC",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/incidents", map[string]interface{}{
		"app_id": app.ID, "title": "x",
		"components": []map[string]string{{"component_id": comp.ID, "status": "MAINTENANCE"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/incidents/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/incidents/missing/resolve", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
