package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pulseboard/pulseboard/backend/internal/cache"
	"github.com/pulseboard/pulseboard/backend/internal/config"
	"github.com/pulseboard/pulseboard/backend/internal/logger"
	"github.com/pulseboard/pulseboard/backend/internal/metrics"
	"github.com/pulseboard/pulseboard/backend/internal/models"
	"github.com/pulseboard/pulseboard/backend/internal/util"
)

// minute classes in increasing precedence
const (
	minuteOperational uint8 = iota
	minuteDegraded
	minuteOutage
	minuteMaintenance
)

var hundred = decimal.NewFromInt(100)

// ComputeDay classifies every minute of [ov.Start, ov.End) from the overlay and
// fills the statistic columns of an uptime row. The window follows the wall
// clock of the recorder's zone, so DST days have 1380 or 1500 minutes and
// TotalMinutes says which. Ongoing incidents end at now. Maintenance beats
// outage, outage beats degraded, and an incident only sets the day status when
// at least one of its minutes kept the incident's class.
func ComputeDay(ov DayOverlay, now time.Time, policy string) models.UptimeHistory {
	total := dayMinutes(ov)
	minutes := make([]uint8, total)

	type span struct {
		lo, hi int
		class  uint8
		status models.Status
	}
	mark := func(from, to time.Time, class uint8) (int, int) {
		lo, hi := minuteRange(ov.Start, from, to, total)
		for i := lo; i < hi; i++ {
			if class > minutes[i] {
				minutes[i] = class
			}
		}
		return lo, hi
	}

	spans := make([]span, 0, len(ov.Incidents))
	for _, inc := range ov.Incidents {
		end := now
		if inc.ResolvedAt != nil {
			end = *inc.ResolvedAt
		}
		class, dayStatus := classifyIncident(inc.Severity)
		lo, hi := mark(inc.StartedAt, end, class)
		spans = append(spans, span{lo: lo, hi: hi, class: class, status: dayStatus})
	}
	for _, m := range ov.Maintenances {
		mark(m.StartsAt, m.EndsAt, minuteMaintenance)
	}

	status := models.StatusOperational
	for _, sp := range spans {
		for i := sp.lo; i < sp.hi; i++ {
			if minutes[i] == sp.class {
				status = models.MaxStatus(status, sp.status)
				break
			}
		}
	}

	row := models.UptimeHistory{
		TotalMinutes:     total,
		IncidentCount:    len(ov.Incidents),
		MaintenanceCount: len(ov.Maintenances),
	}
	for _, c := range minutes {
		switch c {
		case minuteOperational:
			row.OperationalMinutes++
		case minuteDegraded:
			row.DegradedMinutes++
		case minuteOutage:
			row.OutageMinutes++
		case minuteMaintenance:
			row.MaintenanceMinutes++
		}
	}

	if status == models.StatusOperational && row.MaintenanceMinutes > 0 {
		status = models.StatusMaintenance
	}
	row.Status = status
	row.UptimePercentage = uptimePercentage(row.OperationalMinutes, row.MaintenanceMinutes, total, policy)
	return row
}

// dayMinutes is the length of the overlay window in whole minutes. A window
// without an end is a plain 24 hour day.
func dayMinutes(ov DayOverlay) int {
	if !ov.End.After(ov.Start) {
		return models.MinutesPerDay
	}
	return int(ov.End.Sub(ov.Start) / time.Minute)
}

// uptimePercentage is round(100 * operational / denominator, 3) where the
// denominator is the day's total minutes. Under the exclude policy maintenance
// minutes leave the denominator, and a day spent entirely in maintenance
// counts as fully up.
func uptimePercentage(operational, maintenance, total int, policy string) decimal.Decimal {
	denominator := total
	if policy == config.MaintenanceExcludedFromUptime {
		denominator -= maintenance
	}
	if denominator <= 0 {
		return hundred.Round(3)
	}
	return decimal.NewFromInt(int64(operational)).
		Mul(hundred).
		DivRound(decimal.NewFromInt(int64(denominator)), 3)
}

func classifyIncident(sev models.IncidentSeverity) (uint8, models.Status) {
	switch sev {
	case models.SeverityCritical:
		return minuteOutage, models.StatusMajorOutage
	case models.SeverityMajor:
		return minuteOutage, models.StatusPartialOutage
	default:
		return minuteDegraded, models.StatusDegraded
	}
}

// minuteRange returns the half-open minute indexes of [from, to) within the
// total-minute day starting at dayStart. Partial minutes count as touched.
func minuteRange(dayStart, from, to time.Time, total int) (int, int) {
	lo := int(from.Sub(dayStart) / time.Minute)
	hiDur := to.Sub(dayStart)
	hi := int(hiDur / time.Minute)
	if hiDur%time.Minute > 0 {
		hi++
	}
	if lo < 0 {
		lo = 0
	}
	if hi > total {
		hi = total
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// RecordSummary reports the outcome of a batch run.
type RecordSummary struct {
	Date    string `json:"date"`
	Written int    `json:"written"`
	Skipped int    `json:"skipped"`
}

// UptimeRecorder writes one uptime row per entity and day.
type UptimeRecorder struct {
	DB      *gorm.DB
	overlay Overlay
	clock   util.Clock
	loc     *time.Location
	cfg     config.UptimeConfig
	store   cache.Store
}

func NewUptimeRecorder(db *gorm.DB, overlay Overlay, clock util.Clock, loc *time.Location, cfg config.UptimeConfig, store cache.Store) *UptimeRecorder {
	if loc == nil {
		loc = time.UTC
	}
	if store == nil {
		store = cache.Noop{}
	}
	return &UptimeRecorder{DB: db, overlay: overlay, clock: clock, loc: loc, cfg: cfg, store: store}
}

// ParseRecordDate parses a YYYY-MM-DD date as local midnight in loc.
func ParseRecordDate(v string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(models.RecordDateLayout, v, loc)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// Yesterday returns the date string of the previous local day.
func (r *UptimeRecorder) Yesterday() string {
	return util.StartOfDay(r.clock.Now(), r.loc).AddDate(0, 0, -1).Format(models.RecordDateLayout)
}

// RecordDay computes and upserts the row of ref for date. If the overlay
// cannot be read, nothing is written and the error is returned.
func (r *UptimeRecorder) RecordDay(ctx context.Context, ref models.EntityRef, date string) (*models.UptimeHistory, error) {
	dayStart, err := ParseRecordDate(date, r.loc)
	if err != nil {
		return nil, err
	}
	now := r.clock.Now()
	if dayStart.After(now) {
		return nil, fmt.Errorf("%w: %s is in the future", ErrInvalidDate, date)
	}

	log := logger.WithFields(logrus.Fields{"entity_kind": ref.Kind, "entity_id": ref.ID, "date": date})

	ov, err := r.overlay.ForDay(ctx, ref, dayStart)
	if err != nil {
		if errors.Is(err, ErrEntityNotFound) {
			return nil, err
		}
		log.WithError(err).Error("uptime overlay unavailable, skipping day")
		metrics.IncUptimeRecord(string(ref.Kind), "skipped")
		return nil, fmt.Errorf("load overlay: %w", err)
	}

	row := ComputeDay(ov, now, r.cfg.MaintenancePolicy)
	row.SetScope(ref)
	row.RecordDate = date

	err = r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "scope_key"}, {Name: "record_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status",
			"uptime_percentage",
			"total_minutes",
			"operational_minutes",
			"degraded_minutes",
			"outage_minutes",
			"maintenance_minutes",
			"incident_count",
			"maintenance_count",
		}),
	}).Create(&row).Error
	if err != nil {
		log.WithError(err).Error("failed to store uptime record")
		metrics.IncUptimeRecord(string(ref.Kind), "skipped")
		return nil, fmt.Errorf("upsert uptime record: %w", err)
	}
	metrics.IncUptimeRecord(string(ref.Kind), "written")

	if err := r.store.DeletePrefix(ctx, cache.HistoryPrefix(string(ref.Kind), ref.ID)); err != nil {
		log.WithError(err).Warn("failed to invalidate uptime history cache")
	}
	return &row, nil
}

type recordTarget struct {
	Ref       models.EntityRef
	CreatedAt time.Time
}

func (r *UptimeRecorder) targets(ctx context.Context) ([]recordTarget, error) {
	db := r.DB.WithContext(ctx)
	var out []recordTarget
	type idRow struct {
		ID        string
		CreatedAt time.Time
	}
	for _, kind := range []models.EntityKind{models.KindPlatform, models.KindApp, models.KindComponent} {
		model, _ := entityModel(kind)
		var rows []idRow
		if err := db.Model(model).Select("id", "created_at").Order("id").Scan(&rows).Error; err != nil {
			return nil, fmt.Errorf("list %s entities: %w", kind, err)
		}
		for _, row := range rows {
			out = append(out, recordTarget{Ref: models.EntityRef{Kind: kind, ID: row.ID}, CreatedAt: row.CreatedAt})
		}
	}
	return out, nil
}

// RecordAll records date for every app, component and platform. Entities whose
// overlay fails are skipped and counted; they are retried on the next run.
func (r *UptimeRecorder) RecordAll(ctx context.Context, date string) (RecordSummary, error) {
	summary := RecordSummary{Date: date}
	if _, err := ParseRecordDate(date, r.loc); err != nil {
		return summary, err
	}
	targets, err := r.targets(ctx)
	if err != nil {
		return summary, err
	}
	for _, t := range targets {
		if _, err := r.RecordDay(ctx, t.Ref, date); err != nil {
			if errors.Is(err, ErrInvalidDate) {
				return summary, err
			}
			summary.Skipped++
			continue
		}
		summary.Written++
	}
	logger.WithFields(logrus.Fields{
		"date":    date,
		"written": summary.Written,
		"skipped": summary.Skipped,
	}).Info("uptime recording finished")
	return summary, nil
}

// BackfillMissing records every day in the last `days` days before today that
// has no row yet, starting from the day each entity was created.
func (r *UptimeRecorder) BackfillMissing(ctx context.Context, days int) (int, error) {
	if days <= 0 {
		return 0, nil
	}
	targets, err := r.targets(ctx)
	if err != nil {
		return 0, err
	}
	today := util.StartOfDay(r.clock.Now(), r.loc)
	first := today.AddDate(0, 0, -days)

	written := 0
	for _, t := range targets {
		var have []string
		if err := r.DB.WithContext(ctx).Model(&models.UptimeHistory{}).
			Where("scope_key = ? AND record_date >= ?", t.Ref.String(), first.Format(models.RecordDateLayout)).
			Pluck("record_date", &have).Error; err != nil {
			return written, fmt.Errorf("list recorded days: %w", err)
		}
		recorded := make(map[string]bool, len(have))
		for _, d := range have {
			recorded[d] = true
		}

		created := util.StartOfDay(t.CreatedAt, r.loc)
		for day := first; day.Before(today); day = day.AddDate(0, 0, 1) {
			date := day.Format(models.RecordDateLayout)
			if recorded[date] || day.Before(created) {
				continue
			}
			if _, err := r.RecordDay(ctx, t.Ref, date); err == nil {
				written++
			}
		}
	}
	return written, nil
}

// RunDaily records yesterday for every entity and then fills recent gaps. It is
// the body of the recorder cron job.
func (r *UptimeRecorder) RunDaily(ctx context.Context) {
	if _, err := r.RecordAll(ctx, r.Yesterday()); err != nil {
		logger.Component("uptime_recorder").WithError(err).Error("daily uptime recording failed")
	}
	if n, err := r.BackfillMissing(ctx, r.cfg.BackfillDays); err != nil {
		logger.Component("uptime_recorder").WithError(err).Error("uptime backfill failed")
	} else if n > 0 {
		logger.Component("uptime_recorder").WithField("records", n).Info("uptime backfill wrote missing days")
	}
}
