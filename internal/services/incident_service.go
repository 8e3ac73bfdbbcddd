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

// AffectedComponent is a component touched by an incident and the status it
// should show while the incident is open.
type AffectedComponent struct {
	ComponentID string        `json:"component_id" binding:"required"`
	Status      models.Status `json:"status"`
}

type CreateIncidentInput struct {
	AppID      string                  `json:"app_id" binding:"required"`
	Title      string                  `json:"title" binding:"required"`
	Severity   models.IncidentSeverity `json:"severity"`
	Message    string                  `json:"message"`
	IsPublic   bool                    `json:"is_public"`
	StartedAt  *time.Time              `json:"started_at"`
	Components []AffectedComponent     `json:"components"`
}

// IncidentService manages the incident lifecycle. Affected components take the
// incident's per-component status while it is open.
type IncidentService struct {
	DB         *gorm.DB
	aggregator *StatusAggregator
	notifier   *NotificationService
	clock      util.Clock
}

func NewIncidentService(db *gorm.DB, aggregator *StatusAggregator, notifier *NotificationService, clock util.Clock) *IncidentService {
	return &IncidentService{DB: db, aggregator: aggregator, notifier: notifier, clock: clock}
}

func validSeverity(s models.IncidentSeverity) bool {
	switch s {
	case models.SeverityMinor, models.SeverityMajor, models.SeverityCritical:
		return true
	}
	return false
}

func (s *IncidentService) Create(ctx context.Context, in CreateIncidentInput) (*models.Incident, error) {
	if in.Severity == "" {
		in.Severity = models.SeverityMinor
	}
	in.Severity = models.IncidentSeverity(strings.ToUpper(string(in.Severity)))
	if !validSeverity(in.Severity) {
		return nil, fmt.Errorf("%w: unknown severity %q", ErrValidation, in.Severity)
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}

	for i, c := range in.Components {
		if c.Status == "" {
			continue
		}
		st, err := models.ParseStatus(string(c.Status))
		if err != nil || st == models.StatusMaintenance {
			return nil, fmt.Errorf("%w: invalid component status %q", ErrValidation, c.Status)
		}
		in.Components[i].Status = st
	}

	db := s.DB.WithContext(ctx)
	if err := ensureAppComponents(db, in.AppID, componentIDs(in.Components)); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	started := now
	if in.StartedAt != nil {
		started = in.StartedAt.UTC()
	}

	inc := &models.Incident{
		AppID:     in.AppID,
		Title:     in.Title,
		Status:    models.IncidentInvestigating,
		Severity:  in.Severity,
		StartedAt: started,
		IsPublic:  in.IsPublic,
	}
	for _, c := range in.Components {
		status := c.Status
		if status == "" {
			status = defaultComponentStatus(in.Severity)
		}
		inc.Components = append(inc.Components, models.IncidentComponent{ComponentID: c.ComponentID, ComponentStatus: status})
	}
	if in.Message != "" {
		inc.Updates = []models.IncidentUpdate{{Status: models.IncidentInvestigating, Message: in.Message, CreatedAt: now}}
	}

	prior, err := componentStatuses(db, componentIDs(in.Components))
	if err != nil {
		return nil, err
	}
	if err := db.Create(inc).Error; err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}

	reason := "incident: " + inc.Title
	for i, c := range inc.Components {
		if err := s.aggregator.SetComponentStatus(ctx, c.ComponentID, c.ComponentStatus, reason); err != nil {
			s.undoCreate(ctx, inc, prior, i)
			return nil, fmt.Errorf("apply incident status to component %s: %w", c.ComponentID, err)
		}
	}
	s.announce(inc, "Incident opened: "+inc.Title, in.Message)
	return inc, nil
}

// undoCreate restores the first n affected components and removes inc, so a
// failed Create leaves neither a half-applied incident nor stray statuses.
func (s *IncidentService) undoCreate(ctx context.Context, inc *models.Incident, prior map[string]models.Status, n int) {
	for _, c := range inc.Components[:n] {
		if err := s.aggregator.SetComponentStatus(ctx, c.ComponentID, prior[c.ComponentID], "incident creation failed"); err != nil {
			logger.ForEntity(string(models.KindComponent), c.ComponentID).WithError(err).Error("failed to restore component status")
		}
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("incident_id = ?", inc.ID).Delete(&models.IncidentUpdate{}).Error; err != nil {
			return err
		}
		if err := tx.Where("incident_id = ?", inc.ID).Delete(&models.IncidentComponent{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Incident{}, "id = ?", inc.ID).Error
	})
	if err != nil {
		logger.Log().WithField("incident_id", inc.ID).WithError(err).Error("failed to remove incident after status error")
	}
}

func componentStatuses(db *gorm.DB, ids []string) (map[string]models.Status, error) {
	out := make(map[string]models.Status, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var comps []models.Component
	if err := db.Select("id", "status").Where("id IN ?", ids).Find(&comps).Error; err != nil {
		return nil, fmt.Errorf("load component statuses: %w", err)
	}
	for _, c := range comps {
		out[c.ID] = c.Status
	}
	return out, nil
}

func defaultComponentStatus(sev models.IncidentSeverity) models.Status {
	switch sev {
	case models.SeverityCritical:
		return models.StatusMajorOutage
	case models.SeverityMajor:
		return models.StatusPartialOutage
	default:
		return models.StatusDegraded
	}
}

// AddUpdate appends a timeline entry. Moving to RESOLVED resolves the incident.
func (s *IncidentService) AddUpdate(ctx context.Context, id string, status models.IncidentStatus, message string) (*models.Incident, error) {
	if status == models.IncidentResolved {
		return s.Resolve(ctx, id, message)
	}
	switch status {
	case models.IncidentInvestigating, models.IncidentIdentified, models.IncidentMonitoring:
	default:
		return nil, fmt.Errorf("%w: unknown incident status %q", ErrValidation, status)
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inc, err := s.load(tx, id)
		if err != nil {
			return err
		}
		if inc.IsResolved() {
			return ErrIncidentResolved
		}
		update := models.IncidentUpdate{IncidentID: id, Status: status, Message: message, CreatedAt: s.clock.Now().UTC()}
		if err := tx.Create(&update).Error; err != nil {
			return fmt.Errorf("append incident update: %w", err)
		}
		return tx.Model(&models.Incident{}).Where("id = ?", id).Update("status", status).Error
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Resolve closes the incident and returns affected components to the status
// their probes and remaining open incidents imply.
func (s *IncidentService) Resolve(ctx context.Context, id, message string) (*models.Incident, error) {
	now := s.clock.Now().UTC()
	var inc *models.Incident
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		inc, err = s.load(tx, id)
		if err != nil {
			return err
		}
		if inc.IsResolved() {
			return ErrIncidentResolved
		}
		update := models.IncidentUpdate{IncidentID: id, Status: models.IncidentResolved, Message: message, CreatedAt: now}
		if err := tx.Create(&update).Error; err != nil {
			return fmt.Errorf("append incident update: %w", err)
		}
		return tx.Model(&models.Incident{}).Where("id = ?", id).Updates(map[string]interface{}{
			"status":      models.IncidentResolved,
			"resolved_at": now,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	for _, c := range inc.Components {
		status, err := s.restingStatus(ctx, c.ComponentID)
		if err != nil {
			logger.ForEntity(string(models.KindComponent), c.ComponentID).WithError(err).Error("failed to derive component status after incident")
			continue
		}
		if err := s.aggregator.SetComponentStatus(ctx, c.ComponentID, status, "incident resolved: "+inc.Title); err != nil && !errors.Is(err, ErrEntityNotFound) {
			logger.ForEntity(string(models.KindComponent), c.ComponentID).WithError(err).Error("failed to restore component status")
		}
	}
	s.announce(inc, "Incident resolved: "+inc.Title, message)
	return s.Get(ctx, id)
}

// restingStatus is the worst of the component's probe verdict (when enabled)
// and the statuses of incidents still open on it.
func (s *IncidentService) restingStatus(ctx context.Context, componentID string) (models.Status, error) {
	db := s.DB.WithContext(ctx)
	var comp models.Component
	if err := db.First(&comp, "id = ?", componentID).Error; err != nil {
		return "", notFound(err)
	}
	statuses := []models.Status{models.StatusOperational}
	if probeEnabled(comp.CheckConfig) || (comp.CheckInheritFromApp && comp.CheckEnabled) {
		statuses = append(statuses, comp.ProbeStatus)
	}

	var open []models.Status
	if err := db.Model(&models.IncidentComponent{}).
		Joins("JOIN incidents ON incidents.id = incident_components.incident_id").
		Where("incident_components.component_id = ? AND incidents.status <> ?", componentID, models.IncidentResolved).
		Pluck("incident_components.component_status", &open).Error; err != nil {
		return "", fmt.Errorf("load open incidents: %w", err)
	}
	return models.MaxStatus(append(statuses, open...)...), nil
}

func (s *IncidentService) Get(ctx context.Context, id string) (*models.Incident, error) {
	return s.load(s.DB.WithContext(ctx), id)
}

func (s *IncidentService) load(db *gorm.DB, id string) (*models.Incident, error) {
	var inc models.Incident
	err := db.Preload("Components").
		Preload("Updates", func(db *gorm.DB) *gorm.DB { return db.Order("incident_updates.created_at ASC") }).
		First(&inc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrIncidentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load incident: %w", err)
	}
	return &inc, nil
}

// List returns incidents of an app, newest first. activeOnly drops resolved ones.
func (s *IncidentService) List(ctx context.Context, appID string, activeOnly bool) ([]models.Incident, error) {
	q := s.DB.WithContext(ctx).Preload("Components").Order("started_at DESC")
	if appID != "" {
		q = q.Where("app_id = ?", appID)
	}
	if activeOnly {
		q = q.Where("status <> ?", models.IncidentResolved)
	}
	var out []models.Incident
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	return out, nil
}

func (s *IncidentService) announce(inc *models.Incident, title, message string) {
	if s.notifier == nil || !inc.IsPublic {
		return
	}
	s.notifier.SendExternal(models.EventIncident, title, message)
}

func componentIDs(in []AffectedComponent) []string {
	ids := make([]string, 0, len(in))
	for _, c := range in {
		ids = append(ids, c.ComponentID)
	}
	return ids
}

// ensureAppComponents checks that the app exists and every id is one of its components.
func ensureAppComponents(db *gorm.DB, appID string, ids []string) error {
	var app models.App
	if err := db.Select("id").First(&app, "id = ?", appID).Error; err != nil {
		return notFound(err)
	}
	if len(ids) == 0 {
		return nil
	}
	var count int64
	if err := db.Model(&models.Component{}).Where("app_id = ? AND id IN ?", appID, ids).Count(&count).Error; err != nil {
		return err
	}
	if int(count) != len(uniqueStrings(ids)) {
		return fmt.Errorf("%w: component does not belong to app", ErrEntityNotFound)
	}
	return nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
