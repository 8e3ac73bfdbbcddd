package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/pulseboard/pulseboard/backend/internal/logger"
	"github.com/pulseboard/pulseboard/backend/internal/models"
	"github.com/pulseboard/pulseboard/backend/internal/util"
)

type ScheduleMaintenanceInput struct {
	AppID        string    `json:"app_id" binding:"required"`
	Title        string    `json:"title" binding:"required"`
	StartsAt     time.Time `json:"starts_at" binding:"required"`
	EndsAt       time.Time `json:"ends_at" binding:"required"`
	IsPublic     bool      `json:"is_public"`
	ComponentIDs []string  `json:"component_ids"`
}

// MaintenanceService schedules and cancels maintenance windows and advances
// their time-driven status.
type MaintenanceService struct {
	DB       *gorm.DB
	notifier *NotificationService
	clock    util.Clock
}

func NewMaintenanceService(db *gorm.DB, notifier *NotificationService, clock util.Clock) *MaintenanceService {
	return &MaintenanceService{DB: db, notifier: notifier, clock: clock}
}

func (s *MaintenanceService) Schedule(ctx context.Context, in ScheduleMaintenanceInput) (*models.Maintenance, error) {
	if !in.EndsAt.After(in.StartsAt) {
		return nil, ErrInvalidWindow
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	db := s.DB.WithContext(ctx)
	if err := ensureAppComponents(db, in.AppID, in.ComponentIDs); err != nil {
		return nil, err
	}

	m := &models.Maintenance{
		AppID:    in.AppID,
		Title:    in.Title,
		StartsAt: in.StartsAt.UTC(),
		EndsAt:   in.EndsAt.UTC(),
		IsPublic: in.IsPublic,
	}
	m.Status = m.StatusAt(s.clock.Now())
	for _, id := range uniqueStrings(in.ComponentIDs) {
		m.Components = append(m.Components, models.MaintenanceComponent{ComponentID: id})
	}
	if err := db.Create(m).Error; err != nil {
		return nil, fmt.Errorf("create maintenance: %w", err)
	}

	if s.notifier != nil && m.IsPublic {
		s.notifier.SendExternal(models.EventMaintenance, "Maintenance scheduled: "+m.Title,
			fmt.Sprintf("From %s to %s", m.StartsAt.Format(time.RFC3339), m.EndsAt.Format(time.RFC3339)))
	}
	return m, nil
}

// Cancel is terminal. Cancelled windows no longer affect status or uptime.
func (s *MaintenanceService) Cancel(ctx context.Context, id string) (*models.Maintenance, error) {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.load(tx, id)
		if err != nil {
			return err
		}
		status := m.StatusAt(s.clock.Now())
		if status == models.MaintenanceCompleted || status == models.MaintenanceCancelled {
			return ErrMaintenanceClosed
		}
		return tx.Model(&models.Maintenance{}).Where("id = ?", id).Update("status", models.MaintenanceCancelled).Error
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// RefreshStatuses moves non-terminal windows to the status implied by the
// clock and returns how many rows changed.
func (s *MaintenanceService) RefreshStatuses(ctx context.Context) (int, error) {
	now := s.clock.Now()
	var open []models.Maintenance
	if err := s.DB.WithContext(ctx).
		Where("status IN ?", []models.MaintenanceStatus{models.MaintenanceScheduled, models.MaintenanceInProgress}).
		Find(&open).Error; err != nil {
		return 0, fmt.Errorf("list open maintenance: %w", err)
	}

	changed := 0
	for _, m := range open {
		next := m.StatusAt(now)
		if next == m.Status {
			continue
		}
		if err := s.DB.WithContext(ctx).Model(&models.Maintenance{}).
			Where("id = ? AND status = ?", m.ID, m.Status).
			Update("status", next).Error; err != nil {
			return changed, fmt.Errorf("update maintenance %s: %w", m.ID, err)
		}
		changed++
		logger.Log().WithField("maintenance_id", m.ID).WithField("status", next).Debug("maintenance status advanced")
	}
	return changed, nil
}

func (s *MaintenanceService) Get(ctx context.Context, id string) (*models.Maintenance, error) {
	return s.load(s.DB.WithContext(ctx), id)
}

func (s *MaintenanceService) load(db *gorm.DB, id string) (*models.Maintenance, error) {
	var m models.Maintenance
	err := db.Preload("Components").First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMaintenanceMissing
	}
	if err != nil {
		return nil, fmt.Errorf("load maintenance: %w", err)
	}
	return &m, nil
}

// List returns an app's windows ordered by start time. upcomingOnly keeps
// windows that have not ended and were not cancelled.
func (s *MaintenanceService) List(ctx context.Context, appID string, upcomingOnly bool) ([]models.Maintenance, error) {
	q := s.DB.WithContext(ctx).Preload("Components").Order("starts_at ASC")
	if appID != "" {
		q = q.Where("app_id = ?", appID)
	}
	if upcomingOnly {
		q = q.Where("ends_at > ? AND status <> ?", s.clock.Now().UTC(), models.MaintenanceCancelled)
	}
	var out []models.Maintenance
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list maintenance: %w", err)
	}
	return out, nil
}
