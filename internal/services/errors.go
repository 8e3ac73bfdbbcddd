package services

import "errors"

var (
	ErrEntityNotFound     = errors.New("entity not found")
	ErrCheckInProgress    = errors.New("a check for this entity is already running")
	ErrInvalidCheckConfig = errors.New("invalid check configuration")
	ErrInvalidKind        = errors.New("invalid entity kind")
	ErrInvalidDays        = errors.New("days must be between 1 and 365")
	ErrInvalidDate        = errors.New("date must be formatted YYYY-MM-DD")
	ErrIncidentResolved   = errors.New("incident is already resolved")
	ErrMaintenanceClosed  = errors.New("maintenance window is completed or cancelled")
	ErrInvalidWindow      = errors.New("maintenance must end after it starts")
	ErrNoChecks           = errors.New("health checks are disabled")
	ErrIncidentNotFound   = errors.New("incident not found")
	ErrMaintenanceMissing = errors.New("maintenance not found")
	ErrValidation         = errors.New("invalid input")

	ErrNotificationNotFound = errors.New("notification not found")
	ErrProviderNotFound     = errors.New("notification provider not found")
)
