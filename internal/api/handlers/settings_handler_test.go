package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard/backend/internal/services"
)

func TestSettingsHandler_HealthCheck(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/settings/health-check", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[services.HealthCheckSettings](t, w)
	assert.True(t, got.Enabled)
	assert.Equal(t, 4, got.ThreadPoolSize)

	w = f.do(t, http.MethodPut, "/api/v1/settings/health-check", map[string]interface{}{"thread_pool_size": 8})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got = decode[services.HealthCheckSettings](t, w)
	assert.Equal(t, 8, got.ThreadPoolSize)
	assert.Equal(t, 10000, got.SchedulerIntervalMs, "omitted fields keep their value")

	w = f.do(t, http.MethodGet, "/api/v1/settings/health-check", nil)
	assert.Equal(t, 8, decode[services.HealthCheckSettings](t, w).ThreadPoolSize)

	w = f.do(t, http.MethodPut, "/api/v1/settings/health-check", map[string]interface{}{"scheduler_interval_ms": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "scheduler_interval_ms")
}
