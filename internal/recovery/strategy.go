package recovery

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/vietddude/rescue/internal/core/domain"
)

// Kind tags the built-in strategy variants.
type Kind string

const (
	KindAIRetry         Kind = "ai-retry"
	KindValidationFix   Kind = "validation-fix"
	KindNetworkRetry    Kind = "network-retry"
	KindResourceCleanup Kind = "resource-cleanup"
	KindFallback        Kind = "fallback"
	KindCustom          Kind = "custom"
)

// Descriptor is the registry entry for a strategy.
type Descriptor struct {
	Name        string
	Description string
	Kind        Kind
	Categories  []domain.ErrorCategory
	Priority    int           // higher runs first
	MaxAttempts int           // budget for the strategy's own internal retries
	Timeout     time.Duration // per execution
	Resources   []string      // informational
}

// AppliesTo reports whether the strategy declares category.
func (d Descriptor) AppliesTo(category domain.ErrorCategory) bool {
	return slices.Contains(d.Categories, category)
}

// Outcome is what a single strategy execution reports.
type Outcome struct {
	Success       bool
	Confidence    int
	Data          any
	ShouldRetry   bool // caller should retry the original operation itself
	Message       string
	ResourceUsage float64
}

// Strategy is a recovery operation. Attempt must honour ctx; the engine stops
// waiting once the descriptor's timeout passes.
type Strategy interface {
	Descriptor() Descriptor
	Attempt(ctx context.Context, rec domain.ErrorRecord, ec domain.ErrorContext) (Outcome, error)
}

// AttemptFunc adapts a function to a Strategy body.
type AttemptFunc func(ctx context.Context, rec domain.ErrorRecord, ec domain.ErrorContext) (Outcome, error)

type funcStrategy struct {
	desc Descriptor
	fn   AttemptFunc
}

// NewStrategy builds a custom strategy from a descriptor and a function.
func NewStrategy(desc Descriptor, fn AttemptFunc) Strategy {
	if desc.Kind == "" {
		desc.Kind = KindCustom
	}
	return &funcStrategy{desc: desc, fn: fn}
}

func (s *funcStrategy) Descriptor() Descriptor { return s.desc }

func (s *funcStrategy) Attempt(
	ctx context.Context,
	rec domain.ErrorRecord,
	ec domain.ErrorContext,
) (Outcome, error) {
	return s.fn(ctx, rec, ec)
}

// ExponentialBackoff computes retry delays as InitialDelay * 2^attempt, capped at MaxDelay.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
}

// NewBackoff builds a backoff from a RetryConfig.
func NewBackoff(cfg RetryConfig) *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialDelay: cfg.InitialDelay,
		MaxDelay:     cfg.MaxDelay,
		MaxAttempts:  cfg.MaxAttempts,
	}
}

// GetDelay returns the delay before attempt (0-indexed).
func (s *ExponentialBackoff) GetDelay(attempt int) time.Duration {
	delay := float64(s.InitialDelay) * math.Pow(2, float64(attempt))
	if delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}
	return time.Duration(delay)
}

// ShouldRetry reports whether another attempt fits the budget.
func (s *ExponentialBackoff) ShouldRetry(attempt int) bool {
	return attempt < s.MaxAttempts
}
