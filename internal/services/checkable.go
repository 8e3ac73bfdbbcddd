package services

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/pulseboard/pulseboard/backend/internal/models"
)

// checkable is the uniform view of an app, component or platform used by the
// scheduler and the aggregator.
type checkable struct {
	Ref            models.EntityRef
	Name           string
	OrganizationID string
	Status         models.Status
	Config         models.CheckConfig
	State          models.CheckState
	Inherit        bool
	AppID          string // components: parent app
	PlatformID     string // apps: parent platform
}

func entityModel(kind models.EntityKind) (interface{}, error) {
	switch kind {
	case models.KindApp:
		return &models.App{}, nil
	case models.KindComponent:
		return &models.Component{}, nil
	case models.KindPlatform:
		return &models.Platform{}, nil
	}
	return nil, ErrInvalidKind
}

func loadCheckable(db *gorm.DB, ref models.EntityRef) (checkable, error) {
	var out checkable
	var err error
	switch ref.Kind {
	case models.KindApp:
		var app models.App
		err = db.First(&app, "id = ?", ref.ID).Error
		out = appCheckable(app)
	case models.KindComponent:
		var comp models.Component
		err = db.First(&comp, "id = ?", ref.ID).Error
		out = componentCheckable(comp)
	case models.KindPlatform:
		var p models.Platform
		err = db.First(&p, "id = ?", ref.ID).Error
		out = platformCheckable(p)
	default:
		return out, ErrInvalidKind
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return out, ErrEntityNotFound
	}
	if err != nil {
		return out, fmt.Errorf("load %s: %w", ref, err)
	}
	return out, nil
}

func appCheckable(a models.App) checkable {
	c := checkable{
		Ref:            models.EntityRef{Kind: models.KindApp, ID: a.ID},
		Name:           a.Name,
		OrganizationID: a.OrganizationID,
		Status:         a.Status,
		Config:         a.CheckConfig,
		State:          a.CheckState,
	}
	if a.PlatformID != nil {
		c.PlatformID = *a.PlatformID
	}
	return c
}

func componentCheckable(comp models.Component) checkable {
	return checkable{
		Ref:     models.EntityRef{Kind: models.KindComponent, ID: comp.ID},
		Name:    comp.Name,
		Status:  comp.Status,
		Config:  comp.CheckConfig,
		State:   comp.CheckState,
		Inherit: comp.CheckInheritFromApp,
		AppID:   comp.AppID,
	}
}

func platformCheckable(p models.Platform) checkable {
	return checkable{
		Ref:            models.EntityRef{Kind: models.KindPlatform, ID: p.ID},
		Name:           p.Name,
		OrganizationID: p.OrganizationID,
		Status:         p.Status,
		Config:         p.CheckConfig,
		State:          p.CheckState,
	}
}

// probeEnabled reports whether the entity's own probe participates in rollups.
func probeEnabled(cfg models.CheckConfig) bool {
	return cfg.CheckEnabled && cfg.CheckType != models.CheckTypeNone
}

// ResolveEffectiveConfig builds the probe input for an entity. Components that
// inherit take type, target, timeout and expected status from parent; interval
// and threshold always stay the entity's own.
func ResolveEffectiveConfig(own models.CheckConfig, inherit bool, parent *models.CheckConfig, defaultTimeout time.Duration) (EffectiveCheckConfig, error) {
	src := own
	if inherit {
		if parent == nil {
			return EffectiveCheckConfig{}, fmt.Errorf("%w: parent app not found", ErrInvalidCheckConfig)
		}
		src = *parent
	}
	if src.CheckType == models.CheckTypeNone || src.CheckType == "" {
		return EffectiveCheckConfig{}, fmt.Errorf("%w: check type is NONE", ErrInvalidCheckConfig)
	}

	cfg := EffectiveCheckConfig{
		Type:           src.CheckType,
		URL:            src.CheckURL,
		Timeout:        defaultTimeout,
		ExpectedStatus: src.CheckExpectedStatus,
	}
	if src.CheckTimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(src.CheckTimeoutSeconds) * time.Second
	}
	if err := ValidateCheckConfig(cfg); err != nil {
		return EffectiveCheckConfig{}, err
	}
	return cfg, nil
}
