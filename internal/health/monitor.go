package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/rescue/internal/core/domain"
	"github.com/vietddude/rescue/internal/recovery"
)

// Source is the engine surface the monitor reads.
type Source interface {
	ErrorStats() recovery.Stats
	ErrorHistory() []domain.ErrorRecord
	InFlight() []string
}

// CheckFunc checks a backing dependency.
type CheckFunc func(ctx context.Context) error

// Monitor aggregates health status from the engine and its dependencies.
type Monitor struct {
	source     Source
	thresholds Thresholds
	checks     map[string]CheckFunc
	cacheFor   time.Duration
	now        func() time.Time

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport *HealthReport
}

// NewMonitor creates a new health monitor. Reports are reused for cacheFor so
// frequent checks do not hit redis or postgres each time; 0 disables caching.
func NewMonitor(source Source, thresholds Thresholds, cacheFor time.Duration) *Monitor {
	return &Monitor{
		source:     source,
		thresholds: thresholds,
		checks:     make(map[string]CheckFunc),
		cacheFor:   cacheFor,
		now:        time.Now,
	}
}

// AddCheck registers a dependency check under name.
func (m *Monitor) AddCheck(name string, fn CheckFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = fn
	m.lastReport = nil
}

// CheckHealth builds a report.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastReport != nil && m.now().Sub(m.lastCheck) < m.cacheFor {
		return *m.lastReport
	}

	stats := m.source.ErrorStats()
	report := HealthReport{
		Errors:     stats,
		Unresolved: stats.Unresolved(),
		InFlight:   m.source.InFlight(),
	}
	report.SystemStatus = m.thresholds.status(report.Unresolved)

	if len(m.checks) > 0 {
		report.Components = make(map[string]ComponentHealth, len(m.checks))
		for name, check := range m.checks {
			c := ComponentHealth{Name: name, Status: StatusHealthy}
			if err := check(ctx); err != nil {
				// A lost archive or event bus reduces service but recovery still runs.
				c.Status = StatusDegraded
				c.Error = err.Error()
			}
			report.Components[name] = c
			report.SystemStatus = worse(report.SystemStatus, c.Status)
		}
	}

	m.lastCheck = m.now()
	m.lastReport = &report
	return report
}
