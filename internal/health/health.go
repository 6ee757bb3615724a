// Package health provides system health monitoring and status reporting.
package health

import "github.com/vietddude/rescue/internal/recovery"

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ComponentHealth reports one backing dependency.
type ComponentHealth struct {
	Name   string       `json:"name"`
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus               `json:"system_status"`
	Errors       recovery.Stats             `json:"errors"`
	Unresolved   int                        `json:"unresolved"`
	InFlight     []string                   `json:"in_flight"`
	Components   map[string]ComponentHealth `json:"components,omitempty"`
}

// Thresholds decide when unresolved records degrade the service.
type Thresholds struct {
	DegradedUnresolved int
	CriticalUnresolved int
}

func (t Thresholds) status(unresolved int) SystemStatus {
	switch {
	case t.CriticalUnresolved > 0 && unresolved >= t.CriticalUnresolved:
		return StatusCritical
	case t.DegradedUnresolved > 0 && unresolved >= t.DegradedUnresolved:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

func worse(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
