package recovery

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/rescue/internal/core/domain"
)

// =============================================================================
// Mocks
// =============================================================================

type mockGenerator struct {
	out  string
	err  error
	last domain.GenerationRequest
}

func (m *mockGenerator) Generate(_ context.Context, req domain.GenerationRequest) (string, error) {
	m.last = req
	return m.out, m.err
}

type mockReleaser struct {
	n     int
	err   error
	calls []string
}

func (m *mockReleaser) Release(_ context.Context, jobID, phase string) (int, error) {
	m.calls = append(m.calls, jobID+":"+phase)
	return m.n, m.err
}

func builtin(t *testing.T, deps BuiltinDeps, name string) Strategy {
	t.Helper()
	for _, s := range BuiltinStrategies(deps) {
		if s.Descriptor().Name == name {
			return s
		}
	}
	t.Fatalf("no built-in strategy %q", name)
	return nil
}

// =============================================================================
// Descriptors
// =============================================================================

func TestBuiltinStrategies_Descriptors(t *testing.T) {
	want := map[string]struct {
		priority int
		cats     []domain.ErrorCategory
	}{
		StrategyAIRetry:         {90, []domain.ErrorCategory{domain.CategoryAI, domain.CategoryTimeout}},
		StrategyValidationFix:   {85, []domain.ErrorCategory{domain.CategoryValidation}},
		StrategyNetworkRetry:    {80, []domain.ErrorCategory{domain.CategoryNetwork, domain.CategoryTimeout}},
		StrategyResourceCleanup: {75, []domain.ErrorCategory{domain.CategoryResource, domain.CategoryProcessing}},
		StrategyFallback: {10, []domain.ErrorCategory{
			domain.CategoryAI, domain.CategoryProcessing, domain.CategoryValidation, domain.CategoryUnknown,
		}},
	}

	strategies := BuiltinStrategies(BuiltinDeps{})
	require.Len(t, strategies, len(want))
	for _, s := range strategies {
		d := s.Descriptor()
		w, ok := want[d.Name]
		require.True(t, ok, "unexpected strategy %s", d.Name)
		assert.Equal(t, w.priority, d.Priority, d.Name)
		assert.ElementsMatch(t, w.cats, d.Categories, d.Name)
		assert.Positive(t, d.Timeout, d.Name)
	}
}

// =============================================================================
// AI retry
// =============================================================================

func TestAIRetry_Success(t *testing.T) {
	gen := &mockGenerator{out: "```html\n<main>hello</main>\n```"}
	s := builtin(t, BuiltinDeps{Generator: gen}, StrategyAIRetry)

	long := strings.Repeat("a", 5000)
	out, err := s.Attempt(context.Background(), domain.ErrorRecord{}, domain.ErrorContext{
		Metadata: map[string]any{"prompt": long},
	})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 70, out.Confidence)
	assert.Equal(t, domain.MarkupResult{HTML: "<main>hello</main>", Simplified: true}, out.Data)

	assert.Less(t, len(gen.last.Prompt), 2100, "prompt must be truncated")
	assert.Equal(t, 1024, gen.last.MaxTokens)
}

func TestAIRetry_Failures(t *testing.T) {
	ec := domain.ErrorContext{OriginalData: "design"}

	_, err := builtin(t, BuiltinDeps{}, StrategyAIRetry).Attempt(context.Background(), domain.ErrorRecord{}, ec)
	assert.ErrorIs(t, err, ErrNoGenerator)

	gen := &mockGenerator{err: errors.New("503")}
	_, err = builtin(t, BuiltinDeps{Generator: gen}, StrategyAIRetry).Attempt(context.Background(), domain.ErrorRecord{}, ec)
	assert.Error(t, err)

	gen = &mockGenerator{out: "  "}
	_, err = builtin(t, BuiltinDeps{Generator: gen}, StrategyAIRetry).Attempt(context.Background(), domain.ErrorRecord{}, ec)
	assert.ErrorIs(t, err, ErrEmptyOutput)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, "<p>x</p>", stripCodeFence("<p>x</p>"))
	assert.Equal(t, "<p>x</p>", stripCodeFence("```\n<p>x</p>\n```"))
	assert.Equal(t, "<p>x</p>", stripCodeFence("  ```html\n<p>x</p>```  "))
}

// =============================================================================
// Validation auto-fix
// =============================================================================

func TestRepairMarkup(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		out     string
		repairs []string
	}{
		{
			name:    "img alt",
			in:      `<img src="a.png">`,
			out:     `<img alt="" src="a.png">`,
			repairs: []string{"img-alt"},
		},
		{
			name:    "existing alt untouched",
			in:      `<img alt="logo" src="a.png">`,
			out:     `<img alt="logo" src="a.png">`,
			repairs: nil,
		},
		{
			name:    "boolean alt untouched",
			in:      `<img alt src="a.png">`,
			out:     `<img alt src="a.png">`,
			repairs: nil,
		},
		{
			name:    "data-alt is not alt",
			in:      `<img data-alt="x">`,
			out:     `<img alt="" data-alt="x">`,
			repairs: []string{"img-alt"},
		},
		{
			name:    "html lang",
			in:      `<html><body></body></html>`,
			out:     `<html lang="en"><body></body></html>`,
			repairs: []string{"html-lang"},
		},
		{
			name:    "button type",
			in:      `<button class="x">Go</button>`,
			out:     `<button type="button" class="x">Go</button>`,
			repairs: []string{"button-type"},
		},
		{
			name:    "unclosed tags",
			in:      `<div><section><p>text`,
			out:     `<div><section><p>text</p></section></div>`,
			repairs: []string{"close-tags"},
		},
		{
			name:    "void elements need no closing",
			in:      `<div><br><input></div>`,
			out:     `<div><br><input></div>`,
			repairs: nil,
		},
		{
			name:    "several repairs",
			in:      `<div><img src="a.png"><button>Go</button>`,
			out:     `<div><img alt="" src="a.png"><button type="button">Go</button></div>`,
			repairs: []string{"img-alt", "button-type", "close-tags"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, repairs := RepairMarkup(tt.in)
			assert.Equal(t, tt.out, out)
			assert.Equal(t, tt.repairs, repairs)
		})
	}
}

func TestValidationFix_Attempt(t *testing.T) {
	s := builtin(t, BuiltinDeps{}, StrategyValidationFix)

	out, err := s.Attempt(context.Background(), domain.ErrorRecord{}, domain.ErrorContext{
		OriginalData: domain.MarkupResult{HTML: `<img src="a.png">`},
	})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 80, out.Confidence)
	assert.Equal(t, `<img alt="" src="a.png">`, out.Data.(domain.MarkupResult).HTML)

	// From metadata when there is no original data.
	out, err = s.Attempt(context.Background(), domain.ErrorRecord{}, domain.ErrorContext{
		Metadata: map[string]any{"html": "<ul><li>a"},
	})
	require.NoError(t, err)
	assert.Equal(t, "<ul><li>a</li></ul>", out.Data.(domain.MarkupResult).HTML)

	_, err = s.Attempt(context.Background(), domain.ErrorRecord{}, domain.ErrorContext{OriginalData: "<p>fine</p>"})
	assert.ErrorIs(t, err, ErrNothingToFix)

	_, err = s.Attempt(context.Background(), domain.ErrorRecord{}, domain.ErrorContext{})
	assert.ErrorIs(t, err, ErrNoInput)
}

// =============================================================================
// Network retry
// =============================================================================

var fastRetry = RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

func TestNetworkRetry_SucceedsAfterFailures(t *testing.T) {
	var calls atomic.Int32
	ec := domain.ErrorContext{Operation: func(context.Context) (any, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("connection reset")
		}
		return "payload", nil
	}}

	out, err := builtin(t, BuiltinDeps{NetworkRetry: fastRetry}, StrategyNetworkRetry).
		Attempt(context.Background(), domain.ErrorRecord{}, ec)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 85, out.Confidence)
	assert.Equal(t, "payload", out.Data)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNetworkRetry_GivesUp(t *testing.T) {
	var calls atomic.Int32
	ec := domain.ErrorContext{Operation: func(context.Context) (any, error) {
		calls.Add(1)
		return nil, errors.New("connection reset")
	}}

	_, err := builtin(t, BuiltinDeps{NetworkRetry: fastRetry}, StrategyNetworkRetry).
		Attempt(context.Background(), domain.ErrorRecord{}, ec)
	assert.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())

	_, err = builtin(t, BuiltinDeps{}, StrategyNetworkRetry).
		Attempt(context.Background(), domain.ErrorRecord{}, domain.ErrorContext{})
	assert.ErrorIs(t, err, ErrNoOperation)
}

func TestNetworkRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	slow := RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour}
	ec := domain.ErrorContext{Operation: func(context.Context) (any, error) {
		cancel()
		return nil, errors.New("connection reset")
	}}

	_, err := builtin(t, BuiltinDeps{NetworkRetry: slow}, StrategyNetworkRetry).Attempt(ctx, domain.ErrorRecord{}, ec)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExponentialBackoff(t *testing.T) {
	b := NewBackoff(RetryConfig{MaxAttempts: 4, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second})

	assert.Equal(t, 100*time.Millisecond, b.GetDelay(0))
	assert.Equal(t, 200*time.Millisecond, b.GetDelay(1))
	assert.Equal(t, 800*time.Millisecond, b.GetDelay(3))
	assert.Equal(t, time.Second, b.GetDelay(4))
	assert.True(t, b.ShouldRetry(3))
	assert.False(t, b.ShouldRetry(4))
}

// =============================================================================
// Resource cleanup
// =============================================================================

func TestResourceCleanup_NeverResolves(t *testing.T) {
	rel := &mockReleaser{n: 4}
	s := builtin(t, BuiltinDeps{Releaser: rel}, StrategyResourceCleanup)

	out, err := s.Attempt(context.Background(), domain.ErrorRecord{}, domain.ErrorContext{JobID: "j", Phase: "p"})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.True(t, out.ShouldRetry)
	assert.Equal(t, 60, out.Confidence)
	assert.Equal(t, []string{"j:p"}, rel.calls)

	rel = &mockReleaser{err: errors.New("redis down")}
	_, err = builtin(t, BuiltinDeps{Releaser: rel}, StrategyResourceCleanup).
		Attempt(context.Background(), domain.ErrorRecord{}, domain.ErrorContext{})
	assert.Error(t, err)
}

// =============================================================================
// Fallback content
// =============================================================================

func TestFallbackContent_AlwaysSucceeds(t *testing.T) {
	synth := NewSynthesizer(45, nil)
	s := builtin(t, BuiltinDeps{Synthesizer: synth}, StrategyFallback)

	out, err := s.Attempt(context.Background(), domain.ErrorRecord{ID: "e1", Message: "boom"}, domain.ErrorContext{JobID: "j", Phase: "aiGeneration"})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 45, out.Confidence)

	content, ok := out.Data.(domain.FallbackContent)
	require.True(t, ok)
	assert.True(t, content.Metadata.FallbackGenerated)
	assert.Equal(t, "e1", content.Metadata.ErrorID)
	assert.Contains(t, content.HTML, `data-phase="aiGeneration"`)
}

func TestSourceText(t *testing.T) {
	assert.Equal(t, "a", sourceText(domain.ErrorContext{OriginalData: "a"}))
	assert.Equal(t, "b", sourceText(domain.ErrorContext{OriginalData: []byte("b")}))
	assert.Equal(t, "c", sourceText(domain.ErrorContext{OriginalData: domain.MarkupResult{HTML: "c"}}))
	assert.Equal(t, "d", sourceText(domain.ErrorContext{Metadata: map[string]any{"k": "d"}}, "x", "k"))
	assert.Equal(t, "", sourceText(domain.ErrorContext{OriginalData: 42}))
}
