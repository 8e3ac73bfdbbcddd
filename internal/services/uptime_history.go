package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/pulseboard/pulseboard/backend/internal/cache"
	"github.com/pulseboard/pulseboard/backend/internal/logger"
	"github.com/pulseboard/pulseboard/backend/internal/models"
	"github.com/pulseboard/pulseboard/backend/internal/util"
)

const MaxHistoryDays = 365

// UptimeDay is one entry of a history series. HasData is false for synthesized days.
type UptimeDay struct {
	Date               string          `json:"date"`
	Status             models.Status   `json:"status"`
	UptimePercentage   decimal.Decimal `json:"uptime_percentage"`
	OperationalMinutes int             `json:"operational_minutes"`
	DegradedMinutes    int             `json:"degraded_minutes"`
	OutageMinutes      int             `json:"outage_minutes"`
	MaintenanceMinutes int             `json:"maintenance_minutes"`
	IncidentCount      int             `json:"incident_count"`
	MaintenanceCount   int             `json:"maintenance_count"`
	HasData            bool            `json:"has_data"`
}

// UptimeHistoryView is a contiguous series of Days entries, oldest first.
type UptimeHistoryView struct {
	Kind                models.EntityKind `json:"kind"`
	ID                  string            `json:"id"`
	Days                int               `json:"days"`
	From                string            `json:"from"`
	To                  string            `json:"to"`
	AggregatePercentage decimal.Decimal   `json:"aggregate_percentage"`
	TotalIncidents      int               `json:"total_incidents"`
	Entries             []UptimeDay       `json:"entries"`
}

// UptimeHistoryReader assembles history series from stored daily rows.
type UptimeHistoryReader struct {
	DB    *gorm.DB
	clock util.Clock
	loc   *time.Location
	store cache.Store
}

func NewUptimeHistoryReader(db *gorm.DB, clock util.Clock, loc *time.Location, store cache.Store) *UptimeHistoryReader {
	if loc == nil {
		loc = time.UTC
	}
	if store == nil {
		store = cache.Noop{}
	}
	return &UptimeHistoryReader{DB: db, clock: clock, loc: loc, store: store}
}

// History returns exactly days entries ending today. Days without a stored row
// are reported as fully operational with no incidents. The aggregate is the
// mean of the daily percentages rounded to three decimals.
func (r *UptimeHistoryReader) History(ctx context.Context, ref models.EntityRef, days int) (UptimeHistoryView, error) {
	if days < 1 || days > MaxHistoryDays {
		return UptimeHistoryView{}, ErrInvalidDays
	}
	if _, err := entityModel(ref.Kind); err != nil {
		return UptimeHistoryView{}, err
	}

	today := util.StartOfDay(r.clock.Now(), r.loc)
	from := today.AddDate(0, 0, -(days - 1))
	toDate := today.Format(models.RecordDateLayout)
	fromDate := from.Format(models.RecordDateLayout)

	key := cache.HistoryKey(string(ref.Kind), ref.ID, days, toDate)
	var cached UptimeHistoryView
	if err := r.store.Get(ctx, key, &cached); err == nil {
		return cached, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		logger.Log().WithError(err).Warn("uptime history cache read failed")
	}

	db := r.DB.WithContext(ctx)
	if _, err := loadCheckable(db, ref); err != nil {
		return UptimeHistoryView{}, err
	}

	var rows []models.UptimeHistory
	if err := db.Where("scope_key = ? AND record_date >= ? AND record_date <= ?", ref.String(), fromDate, toDate).
		Order("record_date ASC").
		Find(&rows).Error; err != nil {
		return UptimeHistoryView{}, fmt.Errorf("query uptime history: %w", err)
	}
	byDate := make(map[string]models.UptimeHistory, len(rows))
	for _, row := range rows {
		byDate[row.RecordDate] = row
	}

	view := UptimeHistoryView{
		Kind:    ref.Kind,
		ID:      ref.ID,
		Days:    days,
		From:    fromDate,
		To:      toDate,
		Entries: make([]UptimeDay, 0, days),
	}
	sum := decimal.Zero
	for d := from; !d.After(today); d = d.AddDate(0, 0, 1) {
		date := d.Format(models.RecordDateLayout)
		entry := UptimeDay{
			Date:               date,
			Status:             models.StatusOperational,
			UptimePercentage:   hundred,
			OperationalMinutes: models.MinutesPerDay,
		}
		if row, ok := byDate[date]; ok {
			entry = UptimeDay{
				Date:               date,
				Status:             row.Status,
				UptimePercentage:   row.UptimePercentage,
				OperationalMinutes: row.OperationalMinutes,
				DegradedMinutes:    row.DegradedMinutes,
				OutageMinutes:      row.OutageMinutes,
				MaintenanceMinutes: row.MaintenanceMinutes,
				IncidentCount:      row.IncidentCount,
				MaintenanceCount:   row.MaintenanceCount,
				HasData:            true,
			}
		}
		sum = sum.Add(entry.UptimePercentage)
		view.TotalIncidents += entry.IncidentCount
		view.Entries = append(view.Entries, entry)
	}
	view.AggregatePercentage = sum.DivRound(decimal.NewFromInt(int64(len(view.Entries))), 3)

	if err := r.store.Set(ctx, key, view); err != nil {
		logger.Log().WithError(err).Warn("uptime history cache write failed")
	}
	return view, nil
}
