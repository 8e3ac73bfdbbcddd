package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard/backend/internal/services"
)

func TestUptimeHandler_History(t *testing.T) {
	f := newFixture(t)
	_, app, _ := f.seed(t)

	w := f.do(t, http.MethodGet, "/api/v1/uptime/apps/"+app.ID+"/history?days=7", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view := decode[services.UptimeHistoryView](t, w)
	assert.Len(t, view.Entries, 7)
	assert.Equal(t, "2026-03-04", view.From)
	assert.Equal(t, "2026-03-10", view.To)
	assert.Equal(t, "100", view.AggregatePercentage.String())

	for _, q := range []string{"days=0", "days=366", "days=abc"} {
		w = f.do(t, http.MethodGet, "/api/v1/uptime/apps/"+app.ID+"/history?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}

	w = f.do(t, http.MethodGet, "/api/v1/uptime/apps/missing/history", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUptimeHandler_RecordAndRecordAll(t *testing.T) {
	f := newFixture(t)
	_, _, comp := f.seed(t)

	w := f.do(t, http.MethodPost, "/api/v1/uptime/components/"+comp.ID+"/record?date=2026-03-09", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	row := decode[map[string]interface{}](t, w)
	assert.Equal(t, "2026-03-09", row["record_date"])
	assert.Equal(t, "OPERATIONAL", row["status"])

	w = f.do(t, http.MethodPost, "/api/v1/uptime/components/"+comp.ID+"/record?date=09-03-2026", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/uptime/components/"+comp.ID+"/record?date=2026-04-01", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "future dates are rejected")

	w = f.do(t, http.MethodPost, "/api/v1/uptime/record-all", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	summary := decode[services.RecordSummary](t, w)
	assert.Equal(t, "2026-03-09", summary.Date, "defaults to yesterday")
	assert.Equal(t, 3, summary.Written)
	assert.Zero(t, summary.Skipped)

	w = f.do(t, http.MethodGet, "/api/v1/uptime/components/"+comp.ID+"/history?days=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[services.UptimeHistoryView](t, w)
	require.Len(t, view.Entries, 2)
	assert.True(t, view.Entries[0].HasData)
	assert.False(t, view.Entries[1].HasData)
}
