package recovery

import (
	"strings"
	"testing"
	"time"

	"github.com/vietddude/rescue/internal/core/domain"
)

func TestSynthesizer_Synthesize(t *testing.T) {
	s := NewSynthesizer(60, func() time.Time { return t0 })
	rec := &domain.ErrorRecord{ID: "err-1", Message: "model overloaded"}
	ec := domain.ErrorContext{
		JobID:    "job-1",
		Phase:    "aiGeneration",
		Metadata: map[string]any{"title": "Pricing <page>"},
	}

	got := s.Synthesize(ec, rec, "partial")

	if !got.Metadata.FallbackGenerated {
		t.Error("fallback content must be marked as generated")
	}
	if got.Metadata.ErrorID != "err-1" || got.Metadata.Reason != "model overloaded" {
		t.Errorf("unexpected metadata: %+v", got.Metadata)
	}
	if got.Metadata.Quality != 60 || !got.Metadata.GeneratedAt.Equal(t0) {
		t.Errorf("unexpected quality/timestamp: %+v", got.Metadata)
	}
	if !strings.Contains(got.HTML, "Pricing &lt;page&gt;") {
		t.Errorf("title must be escaped into the heading: %s", got.HTML)
	}
	if got.CSS == "" {
		t.Error("expected fallback CSS")
	}
	if got.Partial != "partial" {
		t.Errorf("partial result dropped: %v", got.Partial)
	}
}

func TestSynthesizer_Deterministic(t *testing.T) {
	s := NewSynthesizer(60, func() time.Time { return t0 })
	ec := domain.ErrorContext{JobID: "j", Phase: "export"}

	a := s.Synthesize(ec, nil, nil)
	b := s.Synthesize(ec, nil, nil)
	if a.HTML != b.HTML || a.Metadata != b.Metadata {
		t.Error("same input must produce the same output")
	}
	if a.Metadata.Reason == "" {
		t.Error("expected a default reason without a record")
	}
}

func TestSynthesizer_QualityClamped(t *testing.T) {
	s := NewSynthesizer(150, nil)
	if s.Quality() != 100 {
		t.Errorf("expected 100, got %d", s.Quality())
	}
	s.SetQuality(-5)
	if s.Quality() != 0 {
		t.Errorf("expected 0, got %d", s.Quality())
	}
}
