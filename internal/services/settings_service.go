package services

import (
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"github.com/pulseboard/pulseboard/backend/internal/config"
	"github.com/pulseboard/pulseboard/backend/internal/models"
)

const (
	SettingHealthCheckEnabled         = "health_check.enabled"
	SettingHealthCheckIntervalMs      = "health_check.scheduler_interval_ms"
	SettingHealthCheckPoolSize        = "health_check.thread_pool_size"
	SettingHealthCheckDefaultInterval = "health_check.default_interval_seconds"
	SettingHealthCheckDefaultTimeout  = "health_check.default_timeout_seconds"

	healthCheckCategory = "health_check"
)

// HealthCheckSettings is the scheduler configuration in effect for one tick.
type HealthCheckSettings struct {
	Enabled                bool `json:"enabled"`
	SchedulerIntervalMs    int  `json:"scheduler_interval_ms"`
	ThreadPoolSize         int  `json:"thread_pool_size"`
	DefaultIntervalSeconds int  `json:"default_interval_seconds"`
	DefaultTimeoutSeconds  int  `json:"default_timeout_seconds"`
}

// Validate rejects values the scheduler cannot run with.
func (s HealthCheckSettings) Validate() error {
	switch {
	case s.SchedulerIntervalMs < 100:
		return fmt.Errorf("%w: scheduler_interval_ms must be at least 100", ErrValidation)
	case s.ThreadPoolSize < 1:
		return fmt.Errorf("%w: thread_pool_size must be at least 1", ErrValidation)
	case s.DefaultIntervalSeconds < 1:
		return fmt.Errorf("%w: default_interval_seconds must be at least 1", ErrValidation)
	case s.DefaultTimeoutSeconds < 1:
		return fmt.Errorf("%w: default_timeout_seconds must be at least 1", ErrValidation)
	}
	return nil
}

// SettingsProvider supplies scheduler settings. The scheduler calls it at the start of every tick.
type SettingsProvider interface {
	HealthCheck() (HealthCheckSettings, error)
}

// SettingsService reads and writes health-check settings in the settings table,
// falling back to environment defaults for absent keys.
type SettingsService struct {
	DB       *gorm.DB
	defaults config.HealthCheckDefaults
}

func NewSettingsService(db *gorm.DB, defaults config.HealthCheckDefaults) *SettingsService {
	return &SettingsService{DB: db, defaults: defaults}
}

func (s *SettingsService) HealthCheck() (HealthCheckSettings, error) {
	out := HealthCheckSettings{
		Enabled:                s.defaults.Enabled,
		SchedulerIntervalMs:    s.defaults.SchedulerIntervalMs,
		ThreadPoolSize:         s.defaults.ThreadPoolSize,
		DefaultIntervalSeconds: s.defaults.DefaultIntervalSeconds,
		DefaultTimeoutSeconds:  s.defaults.DefaultTimeoutSeconds,
	}

	var rows []models.Setting
	if err := s.DB.Where("category = ?", healthCheckCategory).Find(&rows).Error; err != nil {
		return out, fmt.Errorf("load health check settings: %w", err)
	}

	for _, row := range rows {
		switch row.Key {
		case SettingHealthCheckEnabled:
			if v, err := strconv.ParseBool(row.Value); err == nil {
				out.Enabled = v
			}
		case SettingHealthCheckIntervalMs:
			setPositive(&out.SchedulerIntervalMs, row.Value)
		case SettingHealthCheckPoolSize:
			setPositive(&out.ThreadPoolSize, row.Value)
		case SettingHealthCheckDefaultInterval:
			setPositive(&out.DefaultIntervalSeconds, row.Value)
		case SettingHealthCheckDefaultTimeout:
			setPositive(&out.DefaultTimeoutSeconds, row.Value)
		}
	}
	return out, nil
}

// UpdateHealthCheck stores every field so later env changes do not silently override an operator's choice.
func (s *SettingsService) UpdateHealthCheck(in HealthCheckSettings) error {
	if err := in.Validate(); err != nil {
		return err
	}
	values := map[string]struct{ value, typ string }{
		SettingHealthCheckEnabled:         {strconv.FormatBool(in.Enabled), "bool"},
		SettingHealthCheckIntervalMs:      {strconv.Itoa(in.SchedulerIntervalMs), "int"},
		SettingHealthCheckPoolSize:        {strconv.Itoa(in.ThreadPoolSize), "int"},
		SettingHealthCheckDefaultInterval: {strconv.Itoa(in.DefaultIntervalSeconds), "int"},
		SettingHealthCheckDefaultTimeout:  {strconv.Itoa(in.DefaultTimeoutSeconds), "int"},
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		for key, v := range values {
			setting := models.Setting{Key: key, Value: v.value, Type: v.typ, Category: healthCheckCategory}
			if err := tx.Where(models.Setting{Key: key}).Assign(setting).FirstOrCreate(&setting).Error; err != nil {
				return fmt.Errorf("save setting %s: %w", key, err)
			}
		}
		return nil
	})
}

func setPositive(dst *int, raw string) {
	if v, err := strconv.Atoi(raw); err == nil && v > 0 {
		*dst = v
	}
}
