package models

import (
	"fmt"
	"strings"
)

// Status is the health of an app, component or platform. The first four values
// are ordered by severity; MAINTENANCE is a display state layered on top.
type Status string

const (
	StatusOperational   Status = "OPERATIONAL"
	StatusDegraded      Status = "DEGRADED"
	StatusPartialOutage Status = "PARTIAL_OUTAGE"
	StatusMajorOutage   Status = "MAJOR_OUTAGE"
	StatusMaintenance   Status = "MAINTENANCE"
)

var severityRank = map[Status]int{
	StatusOperational:   0,
	StatusDegraded:      1,
	StatusPartialOutage: 2,
	StatusMajorOutage:   3,
}

// Severity returns the rank used for rollups. Unknown values and MAINTENANCE
// rank as operational.
func (s Status) Severity() int {
	return severityRank[s]
}

// IsOperational reports whether s carries no health impact.
func (s Status) IsOperational() bool {
	return s.Severity() == 0
}

// MaxStatus returns the most severe of the given statuses, or OPERATIONAL
// when none are given.
func MaxStatus(statuses ...Status) Status {
	worst := StatusOperational
	for _, s := range statuses {
		if s.Severity() > worst.Severity() {
			worst = s
		}
	}
	return worst
}

// ParseStatus accepts any case and returns an error for values outside the enum.
func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	switch s {
	case StatusOperational, StatusDegraded, StatusPartialOutage, StatusMajorOutage, StatusMaintenance:
		return s, nil
	}
	return "", fmt.Errorf("unknown status %q", v)
}

// CheckType selects how an entity is probed.
type CheckType string

const (
	CheckTypeNone           CheckType = "NONE"
	CheckTypePing           CheckType = "PING"
	CheckTypeHTTPGet        CheckType = "HTTP_GET"
	CheckTypeHealthEndpoint CheckType = "HEALTH_ENDPOINT"
	CheckTypeTCPPort        CheckType = "TCP_PORT"
)

// ParseCheckType accepts any case; an empty value maps to NONE.
func ParseCheckType(v string) (CheckType, error) {
	t := CheckType(strings.ToUpper(strings.TrimSpace(v)))
	switch t {
	case "":
		return CheckTypeNone, nil
	case CheckTypeNone, CheckTypePing, CheckTypeHTTPGet, CheckTypeHealthEndpoint, CheckTypeTCPPort:
		return t, nil
	}
	return "", fmt.Errorf("unknown check type %q", v)
}
