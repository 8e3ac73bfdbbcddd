package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)

	before := testutil.ToFloat64(probesTotal.WithLabelValues("component", "failure"))
	ObserveProbe("component", "HTTP_GET", false, 20*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(probesTotal.WithLabelValues("component", "failure")))

	IncUptimeRecord("app", "skipped")
	assert.Equal(t, float64(1), testutil.ToFloat64(uptimeRecordsTotal.WithLabelValues("app", "skipped")))

	IncProbeSkipped("pool_full")
	assert.GreaterOrEqual(t, testutil.ToFloat64(probesSkippedTotal.WithLabelValues("pool_full")), float64(1))
}

func TestRateLimitedCounter(t *testing.T) {
	before := testutil.ToFloat64(rateLimitedTotal)
	IncRateLimited()
	IncRateLimited()
	assert.Equal(t, before+2, testutil.ToFloat64(rateLimitedTotal))
}

func TestHandlerPanicCounter(t *testing.T) {
	before := testutil.ToFloat64(handlerPanicsTotal.WithLabelValues("/api/v1/status/:kind/:id"))
	IncHandlerPanic("/api/v1/status/:kind/:id")
	assert.Equal(t, before+1, testutil.ToFloat64(handlerPanicsTotal.WithLabelValues("/api/v1/status/:kind/:id")))
}
