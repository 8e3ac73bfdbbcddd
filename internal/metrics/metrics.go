package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	probesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pulseboard_probes_total",
		Help: "Total number of health probes executed, by entity kind and outcome",
	}, []string{"kind", "result"})
	probeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pulseboard_probe_duration_seconds",
		Help:    "Duration of health probes",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind", "check_type"})
	probesSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pulseboard_probes_skipped_total",
		Help: "Due probes not dispatched during a tick, by reason",
	}, []string{"reason"})
	statusTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pulseboard_status_transitions_total",
		Help: "Number of stored status changes, by entity kind and new status",
	}, []string{"kind", "status"})
	uptimeRecordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pulseboard_uptime_records_total",
		Help: "Uptime history rows written or skipped, by scope kind and result",
	}, []string{"kind", "result"})
	notificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pulseboard_notifications_total",
		Help: "External notification deliveries, by provider type and result",
	}, []string{"type", "result"})
	rateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pulseboard_rate_limited_total",
		Help: "Public API requests rejected by the per-client rate limit",
	})
	handlerPanicsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pulseboard_http_panics_total",
		Help: "HTTP handler panics recovered, by route",
	}, []string{"route"})
	schedulerTickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pulseboard_scheduler_tick_seconds",
		Help:    "Time spent selecting and dispatching due entities per tick",
		Buckets: prometheus.DefBuckets,
	})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry prometheus.Registerer) {
	registry.MustRegister(
		probesTotal,
		probeDuration,
		probesSkippedTotal,
		statusTransitionsTotal,
		uptimeRecordsTotal,
		notificationsTotal,
		rateLimitedTotal,
		handlerPanicsTotal,
		schedulerTickDuration,
	)
}

// ObserveProbe records one probe execution.
func ObserveProbe(kind, checkType string, success bool, d time.Duration) {
	result := "failure"
	if success {
		result = "success"
	}
	probesTotal.WithLabelValues(kind, result).Inc()
	probeDuration.WithLabelValues(kind, checkType).Observe(d.Seconds())
}

// IncProbeSkipped counts a due entity left for the next tick.
func IncProbeSkipped(reason string) { probesSkippedTotal.WithLabelValues(reason).Inc() }

// IncStatusTransition counts a persisted status change.
func IncStatusTransition(kind, status string) {
	statusTransitionsTotal.WithLabelValues(kind, status).Inc()
}

// IncUptimeRecord counts an uptime recorder outcome ("written" or "skipped").
func IncUptimeRecord(kind, result string) { uptimeRecordsTotal.WithLabelValues(kind, result).Inc() }

// IncNotification counts an external notification delivery ("sent" or "failed").
func IncNotification(providerType, result string) {
	notificationsTotal.WithLabelValues(providerType, result).Inc()
}

// IncRateLimited counts a request dropped by the rate limiter.
func IncRateLimited() { rateLimitedTotal.Inc() }

// IncHandlerPanic counts a recovered handler panic.
func IncHandlerPanic(route string) { handlerPanicsTotal.WithLabelValues(route).Inc() }

// ObserveSchedulerTick records how long one scheduler tick took.
func ObserveSchedulerTick(d time.Duration) { schedulerTickDuration.Observe(d.Seconds()) }
