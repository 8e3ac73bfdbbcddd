package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/pulseboard/pulseboard/backend/internal/events"
	"github.com/pulseboard/pulseboard/backend/internal/logger"
	"github.com/pulseboard/pulseboard/backend/internal/metrics"
	"github.com/pulseboard/pulseboard/backend/internal/models"
	"github.com/pulseboard/pulseboard/backend/internal/util"
)

// StatusChange describes one committed change of an entity's stored status.
type StatusChange struct {
	Ref            models.EntityRef
	Name           string
	OrganizationID string
	From           models.Status
	To             models.Status
	Message        string
	At             time.Time
}

// CrossesOperational reports whether the change moves between OPERATIONAL and any other status.
func (c StatusChange) CrossesOperational() bool {
	return c.From.IsOperational() != c.To.IsOperational()
}

// StatusNotifier is told about changes that cross the operational boundary.
type StatusNotifier interface {
	NotifyStatusChange(ctx context.Context, change StatusChange)
}

// NextCheckState applies one probe result to the previous state. A failure only
// moves the probe status to MAJOR_OUTAGE once the consecutive count reaches the
// threshold; below it the previous status is kept.
func NextCheckState(prev models.CheckState, threshold int, res ProbeResult, now time.Time) models.CheckState {
	if threshold < 1 {
		threshold = 1
	}
	ok := res.Success
	at := now
	next := models.CheckState{
		LastCheckAt:         &at,
		LastCheckSuccess:    &ok,
		LastCheckMessage:    res.Message,
		ConsecutiveFailures: prev.ConsecutiveFailures,
		ProbeStatus:         prev.ProbeStatus,
	}
	if next.ProbeStatus == "" {
		next.ProbeStatus = models.StatusOperational
	}

	if res.Success {
		next.ConsecutiveFailures = 0
		next.ProbeStatus = models.StatusOperational
		return next
	}

	next.ConsecutiveFailures++
	if next.ConsecutiveFailures >= threshold {
		next.ProbeStatus = models.StatusMajorOutage
	}
	return next
}

// probeDecidesStatus reports whether a probe result overrides a component's
// stored status: any success, or a failure at or past the threshold.
func probeDecidesStatus(next models.CheckState, threshold int, res ProbeResult) bool {
	if threshold < 1 {
		threshold = 1
	}
	return res.Success || next.ConsecutiveFailures >= threshold
}

// StatusAggregator is the only writer of entity check state. Rollups are
// recomputed from children under a per-ancestor lock.
type StatusAggregator struct {
	DB       *gorm.DB
	clock    util.Clock
	overlay  Overlay
	notifier StatusNotifier
	events   events.Publisher
	locks    *keyedMutex
}

func NewStatusAggregator(db *gorm.DB, clock util.Clock, overlay Overlay, notifier StatusNotifier, publisher events.Publisher) *StatusAggregator {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &StatusAggregator{
		DB:       db,
		clock:    clock,
		overlay:  overlay,
		notifier: notifier,
		events:   publisher,
		locks:    newKeyedMutex(),
	}
}

func lockKey(kind models.EntityKind, id string) string {
	if id == "" {
		return ""
	}
	return string(kind) + ":" + id
}

// ancestors returns the app and platform ids above ref, read outside any transaction.
func (a *StatusAggregator) ancestors(ctx context.Context, ref models.EntityRef) (appID, platformID string, err error) {
	db := a.DB.WithContext(ctx)
	switch ref.Kind {
	case models.KindComponent:
		var comp models.Component
		if err := db.Select("id", "app_id").First(&comp, "id = ?", ref.ID).Error; err != nil {
			return "", "", notFound(err)
		}
		appID = comp.AppID
	case models.KindApp:
		appID = ref.ID
	case models.KindPlatform:
		return "", ref.ID, nil
	default:
		return "", "", ErrInvalidKind
	}

	var app models.App
	if err := db.Select("id", "platform_id").First(&app, "id = ?", appID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) && ref.Kind == models.KindComponent {
			return appID, "", nil
		}
		return "", "", notFound(err)
	}
	if app.PlatformID != nil {
		platformID = *app.PlatformID
	}
	return appID, platformID, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrEntityNotFound
	}
	return err
}

// ApplyResult records a probe outcome for ref and rolls the change up to its
// ancestors in one transaction. Returns ErrEntityNotFound when ref was deleted.
func (a *StatusAggregator) ApplyResult(ctx context.Context, ref models.EntityRef, res ProbeResult) error {
	appID, platformID, err := a.ancestors(ctx, ref)
	if err != nil {
		return err
	}
	unlock := a.locks.lockAll(lockKey(models.KindApp, appID), lockKey(models.KindPlatform, platformID))
	defer unlock()

	now := a.clock.Now().UTC()
	var changes []StatusChange

	err = a.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ent, err := loadCheckable(tx, ref)
		if err != nil {
			return err
		}

		next := NextCheckState(ent.State, ent.Config.CheckFailureThreshold, res, now)

		heartbeat := models.CheckHeartbeat{
			EntityKind: ref.Kind,
			EntityID:   ref.ID,
			Success:    res.Success,
			DurationMs: res.DurationMs(),
			Message:    res.Message,
		}
		if err := tx.Create(&heartbeat).Error; err != nil {
			return fmt.Errorf("record heartbeat: %w", err)
		}

		updates := map[string]interface{}{
			"last_check_at":        next.LastCheckAt,
			"last_check_success":   next.LastCheckSuccess,
			"last_check_message":   next.LastCheckMessage,
			"consecutive_failures": next.ConsecutiveFailures,
			"probe_status":         next.ProbeStatus,
		}
		// below the threshold a failure leaves the stored status alone
		if ref.Kind == models.KindComponent && probeDecidesStatus(next, ent.Config.CheckFailureThreshold, res) {
			updates["status"] = next.ProbeStatus
			if ent.Status != next.ProbeStatus {
				changes = append(changes, a.change(ent, next.ProbeStatus, res.Message, now))
			}
		}

		model, _ := entityModel(ref.Kind)
		if err := tx.Model(model).Where("id = ?", ref.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("update check state of %s: %w", ref, err)
		}

		rolled, err := a.rollup(tx, appID, platformID, res.Message, now)
		if err != nil {
			return err
		}
		changes = append(changes, rolled...)
		return nil
	})
	if err != nil {
		return err
	}

	a.publish(ctx, changes)
	return nil
}

// SetComponentStatus stores an operator-chosen status for a component and rolls it up.
// MAINTENANCE is derived from maintenance windows and cannot be set.
func (a *StatusAggregator) SetComponentStatus(ctx context.Context, componentID string, status models.Status, reason string) error {
	status, err := models.ParseStatus(string(status))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if status == models.StatusMaintenance {
		return fmt.Errorf("%w: %s cannot be set directly", ErrValidation, models.StatusMaintenance)
	}
	ref := models.EntityRef{Kind: models.KindComponent, ID: componentID}
	appID, platformID, err := a.ancestors(ctx, ref)
	if err != nil {
		return err
	}
	unlock := a.locks.lockAll(lockKey(models.KindApp, appID), lockKey(models.KindPlatform, platformID))
	defer unlock()

	now := a.clock.Now().UTC()
	var changes []StatusChange
	err = a.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ent, err := loadCheckable(tx, ref)
		if err != nil {
			return err
		}
		if ent.Status == status {
			return nil
		}
		if err := tx.Model(&models.Component{}).Where("id = ?", componentID).Update("status", status).Error; err != nil {
			return fmt.Errorf("update component status: %w", err)
		}
		changes = append(changes, a.change(ent, status, reason, now))

		rolled, err := a.rollup(tx, appID, platformID, reason, now)
		if err != nil {
			return err
		}
		changes = append(changes, rolled...)
		return nil
	})
	if err != nil {
		return err
	}
	a.publish(ctx, changes)
	return nil
}

// RecomputeApp re-derives an app's status and its platform's from current children.
func (a *StatusAggregator) RecomputeApp(ctx context.Context, appID string) (models.Status, error) {
	_, platformID, err := a.ancestors(ctx, models.EntityRef{Kind: models.KindApp, ID: appID})
	if err != nil {
		return "", err
	}
	unlock := a.locks.lockAll(lockKey(models.KindApp, appID), lockKey(models.KindPlatform, platformID))
	defer unlock()

	now := a.clock.Now().UTC()
	var changes []StatusChange
	var status models.Status
	err = a.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		changes, err = a.rollup(tx, appID, platformID, "", now)
		if err != nil {
			return err
		}
		var app models.App
		if err := tx.Select("status").First(&app, "id = ?", appID).Error; err != nil {
			return notFound(err)
		}
		status = app.Status
		return nil
	})
	if err != nil {
		return "", err
	}
	a.publish(ctx, changes)
	return status, nil
}

// RecomputePlatform re-derives a platform's status from its apps and own probe.
func (a *StatusAggregator) RecomputePlatform(ctx context.Context, platformID string) (models.Status, error) {
	unlock := a.locks.lockAll(lockKey(models.KindPlatform, platformID))
	defer unlock()

	now := a.clock.Now().UTC()
	var change *StatusChange
	var status models.Status
	err := a.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		change, status, err = a.recomputePlatform(tx, platformID, "", now)
		return err
	})
	if err != nil {
		return "", err
	}
	if change != nil {
		a.publish(ctx, []StatusChange{*change})
	}
	return status, nil
}

func (a *StatusAggregator) rollup(tx *gorm.DB, appID, platformID, msg string, now time.Time) ([]StatusChange, error) {
	var changes []StatusChange
	if appID != "" {
		change, _, err := a.recomputeApp(tx, appID, msg, now)
		if err != nil {
			return nil, err
		}
		if change != nil {
			changes = append(changes, *change)
		}
	}
	if platformID != "" {
		change, _, err := a.recomputePlatform(tx, platformID, msg, now)
		if err != nil {
			return nil, err
		}
		if change != nil {
			changes = append(changes, *change)
		}
	}
	return changes, nil
}

func (a *StatusAggregator) recomputeApp(tx *gorm.DB, appID, msg string, now time.Time) (*StatusChange, models.Status, error) {
	var app models.App
	if err := tx.First(&app, "id = ?", appID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("load app %s: %w", appID, err)
	}

	var children []models.Status
	if err := tx.Model(&models.Component{}).Where("app_id = ?", appID).Pluck("status", &children).Error; err != nil {
		return nil, "", fmt.Errorf("load components of app %s: %w", appID, err)
	}

	next := rollupStatus(app.CheckConfig, app.ProbeStatus, children)
	if next == app.Status {
		return nil, next, nil
	}
	if err := tx.Model(&models.App{}).Where("id = ?", appID).Update("status", next).Error; err != nil {
		return nil, "", fmt.Errorf("update app %s status: %w", appID, err)
	}
	change := a.change(appCheckable(app), next, msg, now)
	return &change, next, nil
}

func (a *StatusAggregator) recomputePlatform(tx *gorm.DB, platformID, msg string, now time.Time) (*StatusChange, models.Status, error) {
	var p models.Platform
	if err := tx.First(&p, "id = ?", platformID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("load platform %s: %w", platformID, err)
	}

	var children []models.Status
	if err := tx.Model(&models.App{}).Where("platform_id = ?", platformID).Pluck("status", &children).Error; err != nil {
		return nil, "", fmt.Errorf("load apps of platform %s: %w", platformID, err)
	}

	next := rollupStatus(p.CheckConfig, p.ProbeStatus, children)
	if next == p.Status {
		return nil, next, nil
	}
	if err := tx.Model(&models.Platform{}).Where("id = ?", platformID).Update("status", next).Error; err != nil {
		return nil, "", fmt.Errorf("update platform %s status: %w", platformID, err)
	}
	change := a.change(platformCheckable(p), next, msg, now)
	return &change, next, nil
}

// rollupStatus is max(own probe status when the probe is enabled, children...).
func rollupStatus(cfg models.CheckConfig, probeStatus models.Status, children []models.Status) models.Status {
	own := models.StatusOperational
	if probeEnabled(cfg) {
		own = probeStatus
	}
	return models.MaxStatus(append([]models.Status{own}, children...)...)
}

func (a *StatusAggregator) change(ent checkable, to models.Status, msg string, now time.Time) StatusChange {
	return StatusChange{
		Ref:            ent.Ref,
		Name:           ent.Name,
		OrganizationID: ent.OrganizationID,
		From:           ent.Status,
		To:             to,
		Message:        msg,
		At:             now,
	}
}

// publish runs after commit so observers never see rolled-back changes.
func (a *StatusAggregator) publish(ctx context.Context, changes []StatusChange) {
	for _, c := range changes {
		metrics.IncStatusTransition(string(c.Ref.Kind), string(c.To))
		logger.WithFields(logrus.Fields{
			"entity_kind": c.Ref.Kind,
			"entity_id":   c.Ref.ID,
			"from":        c.From,
			"to":          c.To,
		}).Info("status changed")

		if err := a.events.PublishStatusChanged(ctx, events.StatusChanged{
			Kind:           string(c.Ref.Kind),
			ID:             c.Ref.ID,
			OrganizationID: c.OrganizationID,
			Name:           c.Name,
			From:           string(c.From),
			To:             string(c.To),
			Message:        c.Message,
			At:             c.At,
		}); err != nil {
			logger.Log().WithError(err).Warn("failed to publish status change event")
		}

		if a.notifier != nil && c.CrossesOperational() {
			a.notifier.NotifyStatusChange(ctx, c)
		}
	}
}

// HealthStatus is the read model behind the status endpoint.
type HealthStatus struct {
	Kind                models.EntityKind  `json:"kind"`
	ID                  string             `json:"id"`
	Name                string             `json:"name"`
	Status              models.Status      `json:"status"`
	DisplayStatus       models.Status      `json:"display_status"`
	UnderMaintenance    bool               `json:"under_maintenance"`
	ProbeStatus         models.Status      `json:"probe_status"`
	Check               models.CheckConfig `json:"check"`
	CheckInheritFromApp bool               `json:"check_inherit_from_app,omitempty"`
	LastCheckAt         *time.Time         `json:"last_check_at"`
	LastCheckSuccess    *bool              `json:"last_check_success"`
	LastCheckMessage    string             `json:"last_check_message"`
	ConsecutiveFailures int                `json:"consecutive_failures"`
}

// HealthStatus returns the stored status plus the display status, which is
// MAINTENANCE while an active window covers the entity.
func (a *StatusAggregator) HealthStatus(ctx context.Context, ref models.EntityRef) (HealthStatus, error) {
	ent, err := loadCheckable(a.DB.WithContext(ctx), ref)
	if err != nil {
		return HealthStatus{}, err
	}

	out := HealthStatus{
		Kind:                ref.Kind,
		ID:                  ref.ID,
		Name:                ent.Name,
		Status:              ent.Status,
		DisplayStatus:       ent.Status,
		ProbeStatus:         ent.State.ProbeStatus,
		Check:               ent.Config,
		CheckInheritFromApp: ent.Inherit,
		LastCheckAt:         ent.State.LastCheckAt,
		LastCheckSuccess:    ent.State.LastCheckSuccess,
		LastCheckMessage:    ent.State.LastCheckMessage,
		ConsecutiveFailures: ent.State.ConsecutiveFailures,
	}

	if a.overlay != nil {
		windows, err := a.overlay.ActiveMaintenance(ctx, ref, a.clock.Now())
		if err != nil {
			return HealthStatus{}, fmt.Errorf("load maintenance overlay: %w", err)
		}
		if len(windows) > 0 {
			out.UnderMaintenance = true
			out.DisplayStatus = models.StatusMaintenance
		}
	}
	return out, nil
}
