package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vietddude/rescue/internal/core/domain"
	"github.com/vietddude/rescue/internal/infra/storage/memory"
	"github.com/vietddude/rescue/internal/recovery"
)

// =============================================================================
// Mocks
// =============================================================================

type stubSource struct {
	stats    recovery.Stats
	history  []domain.ErrorRecord
	inflight []string
	calls    int
}

func (s *stubSource) ErrorStats() recovery.Stats {
	s.calls++
	return s.stats
}
func (s *stubSource) ErrorHistory() []domain.ErrorRecord { return s.history }
func (s *stubSource) InFlight() []string                 { return s.inflight }

var thresholds = Thresholds{DegradedUnresolved: 5, CriticalUnresolved: 20}

// =============================================================================
// Monitor
// =============================================================================

func TestMonitor_Healthy(t *testing.T) {
	monitor := NewMonitor(&stubSource{stats: recovery.Stats{Total: 10, Resolved: 8}}, thresholds, 0)

	report := monitor.CheckHealth(context.Background())
	if report.SystemStatus != StatusHealthy {
		t.Errorf("expected healthy, got %s", report.SystemStatus)
	}
	if report.Unresolved != 2 {
		t.Errorf("expected 2 unresolved, got %d", report.Unresolved)
	}
}

func TestMonitor_Degraded(t *testing.T) {
	monitor := NewMonitor(&stubSource{stats: recovery.Stats{Total: 10, Resolved: 4}}, thresholds, 0)

	report := monitor.CheckHealth(context.Background())
	if report.SystemStatus != StatusDegraded {
		t.Errorf("expected degraded, got %s", report.SystemStatus)
	}
}

func TestMonitor_Critical(t *testing.T) {
	monitor := NewMonitor(&stubSource{stats: recovery.Stats{Total: 30}}, thresholds, 0)

	report := monitor.CheckHealth(context.Background())
	if report.SystemStatus != StatusCritical {
		t.Errorf("expected critical, got %s", report.SystemStatus)
	}
}

func TestMonitor_FailingComponentDegrades(t *testing.T) {
	monitor := NewMonitor(&stubSource{}, thresholds, 0)
	monitor.AddCheck("redis", func(context.Context) error { return errors.New("connection refused") })
	monitor.AddCheck("archive", func(context.Context) error { return nil })

	report := monitor.CheckHealth(context.Background())
	if report.SystemStatus != StatusDegraded {
		t.Errorf("expected degraded, got %s", report.SystemStatus)
	}
	if report.Components["redis"].Error != "connection refused" {
		t.Errorf("expected redis error to be reported, got %+v", report.Components["redis"])
	}
	if report.Components["archive"].Status != StatusHealthy {
		t.Errorf("expected archive healthy, got %s", report.Components["archive"].Status)
	}
}

func TestMonitor_CachesReport(t *testing.T) {
	src := &stubSource{}
	monitor := NewMonitor(src, thresholds, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	monitor.now = func() time.Time { return now }

	monitor.CheckHealth(context.Background())
	monitor.CheckHealth(context.Background())
	if src.calls != 1 {
		t.Errorf("expected cached report, source called %d times", src.calls)
	}

	now = now.Add(2 * time.Minute)
	monitor.CheckHealth(context.Background())
	if src.calls != 2 {
		t.Errorf("expected refresh after cache window, source called %d times", src.calls)
	}
}

// =============================================================================
// Server
// =============================================================================

func TestServer_Health(t *testing.T) {
	tests := []struct {
		name   string
		stats  recovery.Stats
		code   int
		status SystemStatus
	}{
		{"healthy", recovery.Stats{Total: 1, Resolved: 1}, http.StatusOK, StatusHealthy},
		{"degraded", recovery.Stats{Total: 6}, http.StatusOK, StatusDegraded},
		{"critical", recovery.Stats{Total: 25}, http.StatusServiceUnavailable, StatusCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(NewMonitor(&stubSource{stats: tt.stats}, thresholds, 0), nil, 0)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, rec.Code)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["status"] != string(tt.status) {
				t.Errorf("expected %s, got %s", tt.status, body["status"])
			}
		})
	}
}

func TestServer_ErrorsFilteredByJob(t *testing.T) {
	src := &stubSource{history: []domain.ErrorRecord{
		{ID: "a", Context: domain.ErrorContext{JobID: "job-1"}},
		{ID: "b", Context: domain.ErrorContext{JobID: "job-2"}},
		{ID: "c", Context: domain.ErrorContext{JobID: "job-1"}},
	}}
	srv := NewServer(NewMonitor(src, thresholds, 0), nil, 0)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/errors?job=job-1", nil))

	var got []domain.ErrorRecord
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("unexpected records: %+v", got)
	}
}

func TestServer_Stats(t *testing.T) {
	src := &stubSource{stats: recovery.Stats{
		Total:      5,
		Resolved:   3,
		ByCategory: map[domain.ErrorCategory]int{domain.CategoryAI: 5},
	}}
	srv := NewServer(NewMonitor(src, thresholds, 0), nil, 0)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/errors/stats", nil))

	var got map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["total"] != float64(5) || got["resolved"] != float64(3) {
		t.Errorf("unexpected stats: %+v", got)
	}
	byType, ok := got["by_type"].(map[string]any)
	if !ok || byType["ai"] != float64(5) {
		t.Errorf("unexpected by_type: %+v", got["by_type"])
	}
}

func TestServer_Archived(t *testing.T) {
	archive := memory.NewArchiveRepo()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = archive.Save(context.Background(), []domain.ErrorRecord{
		{ID: "old", CreatedAt: base},
		{ID: "new", CreatedAt: base.Add(time.Hour)},
	})
	srv := NewServer(NewMonitor(&stubSource{}, thresholds, 0), archive, 0)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/errors/archived?limit=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got []domain.ErrorRecord
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ID != "new" {
		t.Errorf("expected newest record only, got %+v", got)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/errors/archived?limit=abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestServer_ArchivedDisabled(t *testing.T) {
	srv := NewServer(NewMonitor(&stubSource{}, thresholds, 0), nil, 0)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/errors/archived", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
