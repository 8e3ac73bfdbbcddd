package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/pulseboard/pulseboard/backend/internal/models"
)

// EntityService manages the platform/app/component hierarchy and keeps rollups
// consistent when the hierarchy changes.
type EntityService struct {
	DB         *gorm.DB
	aggregator *StatusAggregator
}

func NewEntityService(db *gorm.DB, aggregator *StatusAggregator) *EntityService {
	return &EntityService{DB: db, aggregator: aggregator}
}

// CheckUpdate replaces an entity's check configuration. Inherit applies to
// components only.
type CheckUpdate struct {
	models.CheckConfig
	Inherit bool `json:"check_inherit_from_app"`
}

func (s *EntityService) ListPlatforms(ctx context.Context, orgID string) ([]models.Platform, error) {
	q := s.DB.WithContext(ctx).Order("name ASC")
	if orgID != "" {
		q = q.Where("organization_id = ?", orgID)
	}
	var out []models.Platform
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list platforms: %w", err)
	}
	return out, nil
}

func (s *EntityService) ListApps(ctx context.Context, orgID, platformID string) ([]models.App, error) {
	q := s.DB.WithContext(ctx).Order("name ASC")
	if orgID != "" {
		q = q.Where("organization_id = ?", orgID)
	}
	if platformID != "" {
		q = q.Where("platform_id = ?", platformID)
	}
	var out []models.App
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	return out, nil
}

func (s *EntityService) ListComponents(ctx context.Context, appID string) ([]models.Component, error) {
	q := s.DB.WithContext(ctx).Order("name ASC")
	if appID != "" {
		q = q.Where("app_id = ?", appID)
	}
	var out []models.Component
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list components: %w", err)
	}
	return out, nil
}

func (s *EntityService) CreatePlatform(ctx context.Context, p *models.Platform) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if err := validateStoredConfig(p.CheckConfig); err != nil {
		return err
	}
	resetState(&p.Status, &p.CheckState)
	if err := s.DB.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("create platform: %w", err)
	}
	return nil
}

func (s *EntityService) CreateApp(ctx context.Context, a *models.App) error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if err := validateStoredConfig(a.CheckConfig); err != nil {
		return err
	}
	db := s.DB.WithContext(ctx)
	if a.PlatformID != nil && *a.PlatformID != "" {
		var p models.Platform
		if err := db.Select("id", "organization_id").First(&p, "id = ?", *a.PlatformID).Error; err != nil {
			return notFound(err)
		}
		if a.OrganizationID == "" {
			a.OrganizationID = p.OrganizationID
		}
	} else {
		a.PlatformID = nil
	}
	resetState(&a.Status, &a.CheckState)
	if err := db.Create(a).Error; err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	if a.PlatformID != nil {
		if _, err := s.aggregator.RecomputePlatform(ctx, *a.PlatformID); err != nil {
			return err
		}
	}
	return nil
}

func (s *EntityService) CreateComponent(ctx context.Context, c *models.Component) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	db := s.DB.WithContext(ctx)
	var app models.App
	if err := db.First(&app, "id = ?", c.AppID).Error; err != nil {
		return notFound(err)
	}
	if c.CheckEnabled && c.CheckInheritFromApp {
		if _, err := ResolveEffectiveConfig(c.CheckConfig, true, &app.CheckConfig, 10*time.Second); err != nil {
			return err
		}
	} else if err := validateStoredConfig(c.CheckConfig); err != nil {
		return err
	}
	resetState(&c.Status, &c.CheckState)
	if err := db.Create(c).Error; err != nil {
		return fmt.Errorf("create component: %w", err)
	}
	_, err := s.aggregator.RecomputeApp(ctx, c.AppID)
	return err
}

// UpdateCheck stores a new check configuration. Disabling the probe clears its
// verdict so it stops contributing to rollups.
func (s *EntityService) UpdateCheck(ctx context.Context, ref models.EntityRef, upd CheckUpdate) error {
	db := s.DB.WithContext(ctx)
	ent, err := loadCheckable(db, ref)
	if err != nil {
		return err
	}
	if upd.CheckFailureThreshold < 1 {
		upd.CheckFailureThreshold = 3
	}
	if upd.CheckType == "" {
		upd.CheckType = models.CheckTypeNone
	}

	inherit := ref.Kind == models.KindComponent && upd.Inherit
	if inherit && upd.CheckEnabled {
		var app models.App
		if err := db.First(&app, "id = ?", ent.AppID).Error; err != nil {
			return notFound(err)
		}
		if _, err := ResolveEffectiveConfig(upd.CheckConfig, true, &app.CheckConfig, 10*time.Second); err != nil {
			return err
		}
	} else if err := validateStoredConfig(upd.CheckConfig); err != nil {
		return err
	}

	values := map[string]interface{}{
		"check_enabled":           upd.CheckEnabled,
		"check_type":              upd.CheckType,
		"check_url":               upd.CheckURL,
		"check_interval_seconds":  upd.CheckIntervalSeconds,
		"check_timeout_seconds":   upd.CheckTimeoutSeconds,
		"check_expected_status":   upd.CheckExpectedStatus,
		"check_failure_threshold": upd.CheckFailureThreshold,
	}
	if ref.Kind == models.KindComponent {
		values["check_inherit_from_app"] = inherit
	}
	if !upd.CheckEnabled || (upd.CheckType == models.CheckTypeNone && !inherit) {
		values["consecutive_failures"] = 0
		values["probe_status"] = models.StatusOperational
		// a component whose status came from its probe goes back to operational
		if ref.Kind == models.KindComponent && !ent.State.ProbeStatus.IsOperational() && ent.Status == ent.State.ProbeStatus {
			values["status"] = models.StatusOperational
		}
	}

	model, err := entityModel(ref.Kind)
	if err != nil {
		return err
	}
	if err := db.Model(model).Where("id = ?", ref.ID).Updates(values).Error; err != nil {
		return fmt.Errorf("update check config: %w", err)
	}
	return s.recompute(ctx, ref, ent)
}

// Delete removes an entity. Deleting an app removes its components; deleting a
// platform detaches its apps.
func (s *EntityService) Delete(ctx context.Context, ref models.EntityRef) error {
	db := s.DB.WithContext(ctx)
	ent, err := loadCheckable(db, ref)
	if err != nil {
		return err
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		switch ref.Kind {
		case models.KindComponent:
			return tx.Delete(&models.Component{}, "id = ?", ref.ID).Error
		case models.KindApp:
			if err := tx.Delete(&models.Component{}, "app_id = ?", ref.ID).Error; err != nil {
				return err
			}
			return tx.Delete(&models.App{}, "id = ?", ref.ID).Error
		case models.KindPlatform:
			if err := tx.Model(&models.App{}).Where("platform_id = ?", ref.ID).Update("platform_id", nil).Error; err != nil {
				return err
			}
			return tx.Delete(&models.Platform{}, "id = ?", ref.ID).Error
		}
		return ErrInvalidKind
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", ref, err)
	}

	switch {
	case ref.Kind == models.KindComponent:
		_, err = s.aggregator.RecomputeApp(ctx, ent.AppID)
	case ref.Kind == models.KindApp && ent.PlatformID != "":
		_, err = s.aggregator.RecomputePlatform(ctx, ent.PlatformID)
	}
	return err
}

func (s *EntityService) recompute(ctx context.Context, ref models.EntityRef, ent checkable) error {
	var err error
	switch ref.Kind {
	case models.KindComponent:
		_, err = s.aggregator.RecomputeApp(ctx, ent.AppID)
	case models.KindApp:
		_, err = s.aggregator.RecomputeApp(ctx, ref.ID)
	case models.KindPlatform:
		_, err = s.aggregator.RecomputePlatform(ctx, ref.ID)
	}
	return err
}

// validateStoredConfig checks an enabled, non-inheriting configuration.
func validateStoredConfig(cfg models.CheckConfig) error {
	if !probeEnabled(cfg) {
		return nil
	}
	if cfg.CheckIntervalSeconds < 0 || cfg.CheckTimeoutSeconds < 0 {
		return fmt.Errorf("%w: interval and timeout must not be negative", ErrInvalidCheckConfig)
	}
	_, err := ResolveEffectiveConfig(cfg, false, nil, 10*time.Second)
	return err
}

func resetState(status *models.Status, state *models.CheckState) {
	*status = models.StatusOperational
	*state = models.CheckState{ProbeStatus: models.StatusOperational}
}
