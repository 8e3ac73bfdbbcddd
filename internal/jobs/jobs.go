// Package jobs runs the cron-driven background work: the daily uptime
// recorder and the maintenance status refresher.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/pulseboard/pulseboard/backend/internal/config"
	"github.com/pulseboard/pulseboard/backend/internal/logger"
	"github.com/pulseboard/pulseboard/backend/internal/services"
)

// MaintenanceRefreshSpec is how often maintenance windows are moved along.
const MaintenanceRefreshSpec = "@every 1m"

// Runner owns the cron scheduler. Jobs never overlap with themselves.
type Runner struct {
	cron        *cron.Cron
	recorder    *services.UptimeRecorder
	maintenance *services.MaintenanceService
	cfg         config.UptimeConfig
	ctx         context.Context
}

func New(recorder *services.UptimeRecorder, maintenance *services.MaintenanceService, cfg config.UptimeConfig, loc *time.Location) (*Runner, error) {
	if loc == nil {
		loc = time.UTC
	}
	log := cronLogger{entry: logger.Component("cron")}
	r := &Runner{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(log),
			cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
		),
		recorder:    recorder,
		maintenance: maintenance,
		cfg:         cfg,
		ctx:         context.Background(),
	}
	if _, err := r.cron.AddFunc(cfg.RecorderCron, func() { r.recorder.RunDaily(r.ctx) }); err != nil {
		return nil, fmt.Errorf("invalid uptime recorder schedule %q: %w", cfg.RecorderCron, err)
	}
	if _, err := r.cron.AddFunc(MaintenanceRefreshSpec, func() { r.refreshMaintenance(r.ctx) }); err != nil {
		return nil, fmt.Errorf("schedule maintenance refresh: %w", err)
	}
	return r, nil
}

// Start refreshes maintenance, backfills missing uptime days in the
// background and then starts the cron loop. Jobs run with ctx.
func (r *Runner) Start(ctx context.Context) {
	r.ctx = ctx
	r.refreshMaintenance(ctx)
	go r.backfill(ctx)
	r.cron.Start()
}

// Stop stops scheduling and returns a context that is done once running jobs finish.
func (r *Runner) Stop() context.Context {
	return r.cron.Stop()
}

// Entries is the number of registered jobs.
func (r *Runner) Entries() int {
	return len(r.cron.Entries())
}

func (r *Runner) refreshMaintenance(ctx context.Context) {
	n, err := r.maintenance.RefreshStatuses(ctx)
	if err != nil {
		logger.Component("jobs").WithError(err).Error("maintenance status refresh failed")
		return
	}
	if n > 0 {
		logger.Component("jobs").WithField("windows", n).Info("maintenance statuses advanced")
	}
}

func (r *Runner) backfill(ctx context.Context) {
	n, err := r.recorder.BackfillMissing(ctx, r.cfg.BackfillDays)
	if err != nil {
		logger.Component("jobs").WithError(err).Error("startup uptime backfill failed")
		return
	}
	if n > 0 {
		logger.Component("jobs").WithField("records", n).Info("startup uptime backfill wrote missing days")
	}
}

// cronLogger adapts logrus to cron.Logger.
type cronLogger struct {
	entry *logrus.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithError(err).WithFields(fields(keysAndValues)).Error(msg)
}

func fields(kv []interface{}) logrus.Fields {
	out := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		out[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return out
}
