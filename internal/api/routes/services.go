package routes

import (
	"gorm.io/gorm"

	"github.com/pulseboard/pulseboard/backend/internal/cache"
	"github.com/pulseboard/pulseboard/backend/internal/config"
	"github.com/pulseboard/pulseboard/backend/internal/events"
	"github.com/pulseboard/pulseboard/backend/internal/services"
	"github.com/pulseboard/pulseboard/backend/internal/util"
)

// Services bundles the long-lived components shared by the HTTP layer and the
// background jobs.
type Services struct {
	DB            *gorm.DB
	Clock         util.Clock
	Overlay       *services.OverlayService
	Notifications *services.NotificationService
	Aggregator    *services.StatusAggregator
	Settings      *services.SettingsService
	Scheduler     *services.CheckScheduler
	Entities      *services.EntityService
	Incidents     *services.IncidentService
	Maintenance   *services.MaintenanceService
	Recorder      *services.UptimeRecorder
	History       *services.UptimeHistoryReader
}

// Options overrides the collaborators NewServices would otherwise create.
// Zero values select the production defaults.
type Options struct {
	Prober    services.Prober
	Clock     util.Clock
	Store     cache.Store
	Publisher events.Publisher
}

// NewServices wires every service against db.
func NewServices(db *gorm.DB, cfg config.Config, opts Options) *Services {
	if opts.Clock == nil {
		opts.Clock = util.SystemClock{}
	}
	if opts.Prober == nil {
		opts.Prober = services.NewProbeExecutor()
	}
	if opts.Store == nil {
		opts.Store = cache.Noop{}
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Noop{}
	}
	loc := cfg.Location()

	overlay := services.NewOverlayService(db, opts.Clock)
	notifications := services.NewNotificationService(db)
	aggregator := services.NewStatusAggregator(db, opts.Clock, overlay, notifications, opts.Publisher)
	settings := services.NewSettingsService(db, cfg.HealthCheck)

	return &Services{
		DB:            db,
		Clock:         opts.Clock,
		Overlay:       overlay,
		Notifications: notifications,
		Aggregator:    aggregator,
		Settings:      settings,
		Scheduler:     services.NewCheckScheduler(db, opts.Prober, aggregator, settings, opts.Clock),
		Entities:      services.NewEntityService(db, aggregator),
		Incidents:     services.NewIncidentService(db, aggregator, notifications, opts.Clock),
		Maintenance:   services.NewMaintenanceService(db, notifications, opts.Clock),
		Recorder:      services.NewUptimeRecorder(db, overlay, opts.Clock, loc, cfg.Uptime, opts.Store),
		History:       services.NewUptimeHistoryReader(db, opts.Clock, loc, opts.Store),
	}
}
