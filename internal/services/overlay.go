package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/pulseboard/pulseboard/backend/internal/models"
	"github.com/pulseboard/pulseboard/backend/internal/util"
)

// DayOverlay holds the incidents and maintenance windows touching one entity
// during [Start, End).
type DayOverlay struct {
	Start        time.Time
	End          time.Time
	Incidents    []models.Incident
	Maintenances []models.Maintenance
}

// Overlay answers which incidents and maintenance windows apply to an entity.
type Overlay interface {
	ForDay(ctx context.Context, ref models.EntityRef, dayStart time.Time) (DayOverlay, error)
	ActiveMaintenance(ctx context.Context, ref models.EntityRef, at time.Time) ([]models.Maintenance, error)
}

// OverlayService reads incidents and maintenance windows from the database.
// Timestamps are stored and compared in UTC.
type OverlayService struct {
	DB    *gorm.DB
	clock util.Clock
}

func NewOverlayService(db *gorm.DB, clock util.Clock) *OverlayService {
	return &OverlayService{DB: db, clock: clock}
}

// overlayScope is the set of apps an entity draws incidents and maintenance
// from, narrowed to one component when ComponentID is set.
type overlayScope struct {
	AppIDs      []string
	ComponentID string
}

func (s *OverlayService) scope(db *gorm.DB, ref models.EntityRef) (overlayScope, error) {
	switch ref.Kind {
	case models.KindComponent:
		var comp models.Component
		if err := db.Select("id", "app_id").First(&comp, "id = ?", ref.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return overlayScope{}, ErrEntityNotFound
			}
			return overlayScope{}, err
		}
		return overlayScope{AppIDs: []string{comp.AppID}, ComponentID: comp.ID}, nil
	case models.KindApp:
		return overlayScope{AppIDs: []string{ref.ID}}, nil
	case models.KindPlatform:
		var ids []string
		if err := db.Model(&models.App{}).Where("platform_id = ?", ref.ID).Pluck("id", &ids).Error; err != nil {
			return overlayScope{}, err
		}
		return overlayScope{AppIDs: ids}, nil
	}
	return overlayScope{}, ErrInvalidKind
}

func (s *OverlayService) ForDay(ctx context.Context, ref models.EntityRef, dayStart time.Time) (DayOverlay, error) {
	db := s.DB.WithContext(ctx)
	out := DayOverlay{Start: dayStart, End: dayStart.AddDate(0, 0, 1)}

	sc, err := s.scope(db, ref)
	if err != nil {
		return out, fmt.Errorf("resolve overlay scope for %s: %w", ref, err)
	}
	if len(sc.AppIDs) == 0 {
		return out, nil
	}

	incQuery := db.Preload("Components").
		Where("incidents.app_id IN ?", sc.AppIDs).
		Where("incidents.started_at < ?", out.End.UTC()).
		Where("(incidents.resolved_at IS NULL OR incidents.resolved_at > ?)", out.Start.UTC())
	if sc.ComponentID != "" {
		incQuery = incQuery.
			Joins("JOIN incident_components ON incident_components.incident_id = incidents.id").
			Where("incident_components.component_id = ?", sc.ComponentID)
	}
	var incidents []models.Incident
	if err := incQuery.Order("incidents.started_at ASC").Find(&incidents).Error; err != nil {
		return out, fmt.Errorf("query incidents for %s: %w", ref, err)
	}

	now := s.clock.Now()
	for _, inc := range incidents {
		// An ongoing incident only extends to now.
		if inc.ResolvedAt == nil && !now.After(out.Start) {
			continue
		}
		out.Incidents = append(out.Incidents, inc)
	}

	var windows []models.Maintenance
	if err := db.Preload("Components").
		Where("app_id IN ?", sc.AppIDs).
		Where("status <> ?", models.MaintenanceCancelled).
		Where("starts_at < ? AND ends_at > ?", out.End.UTC(), out.Start.UTC()).
		Order("starts_at ASC").
		Find(&windows).Error; err != nil {
		return out, fmt.Errorf("query maintenance for %s: %w", ref, err)
	}
	for _, m := range windows {
		if sc.ComponentID != "" && !m.Covers(sc.ComponentID) {
			continue
		}
		out.Maintenances = append(out.Maintenances, m)
	}

	return out, nil
}

func (s *OverlayService) ActiveMaintenance(ctx context.Context, ref models.EntityRef, at time.Time) ([]models.Maintenance, error) {
	db := s.DB.WithContext(ctx)
	sc, err := s.scope(db, ref)
	if err != nil {
		return nil, err
	}
	if len(sc.AppIDs) == 0 {
		return nil, nil
	}

	var windows []models.Maintenance
	if err := db.Preload("Components").
		Where("app_id IN ?", sc.AppIDs).
		Where("status <> ?", models.MaintenanceCancelled).
		Where("starts_at <= ? AND ends_at > ?", at.UTC(), at.UTC()).
		Find(&windows).Error; err != nil {
		return nil, fmt.Errorf("query active maintenance for %s: %w", ref, err)
	}

	var out []models.Maintenance
	for _, m := range windows {
		if sc.ComponentID != "" && !m.Covers(sc.ComponentID) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}
