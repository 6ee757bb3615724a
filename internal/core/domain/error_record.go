package domain

import (
	"context"
	"time"
)

// ErrorCategory is the coarse class a fault is sorted into.
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryProcessing ErrorCategory = "processing"
	CategoryAI         ErrorCategory = "ai"
	CategoryNetwork    ErrorCategory = "network"
	CategoryTimeout    ErrorCategory = "timeout"
	CategoryResource   ErrorCategory = "resource"
	CategoryUnknown    ErrorCategory = "unknown"
)

// Categories lists every category in classification order.
var Categories = []ErrorCategory{
	CategoryValidation,
	CategoryTimeout,
	CategoryNetwork,
	CategoryAI,
	CategoryResource,
	CategoryProcessing,
	CategoryUnknown,
}

// Severity describes how badly a fault affects the job.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
	SeverityWarning  Severity = "warning"
)

// Rank orders severities so escalation can be expressed as max().
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityMajor:
		return 2
	case SeverityMinor:
		return 1
	default:
		return 0
	}
}

// Operation re-runs the work that originally failed.
type Operation func(ctx context.Context) (any, error)

// PriorError is a short reference to an earlier fault of the same job.
type PriorError struct {
	ID        string        `json:"id"`
	Category  ErrorCategory `json:"category"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
}

// ErrorContext describes where a fault happened. Treat as immutable once handed to the engine.
type ErrorContext struct {
	JobID          string         `json:"job_id"`
	Phase          string         `json:"phase"`
	Step           string         `json:"step,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	PreviousErrors []PriorError   `json:"previous_errors,omitempty"`

	// OriginalData is the input the failed operation was working on.
	OriginalData any `json:"-"`
	// Operation, when set, lets retry strategies re-run the failed call.
	Operation Operation `json:"-"`
}

// Key identifies the logical unit of work, used to coalesce concurrent recoveries.
func (c ErrorContext) Key() string {
	return c.JobID + ":" + c.Phase
}

// MetadataString returns Metadata[key] when it holds a string.
func (c ErrorContext) MetadataString(key string) (string, bool) {
	if c.Metadata == nil {
		return "", false
	}
	s, ok := c.Metadata[key].(string)
	return s, ok
}

// AttemptMetrics is the measurement attached to each attempt.
type AttemptMetrics struct {
	Duration      time.Duration `json:"duration"`
	ResourceUsage float64       `json:"resource_usage"`
	Confidence    int           `json:"confidence"`
}

// RecoveryAttempt is one execution of one strategy. Never mutated after it is appended.
type RecoveryAttempt struct {
	ID          string         `json:"id"`
	Strategy    string         `json:"strategy"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	Success     bool           `json:"success"`
	Result      any            `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	Metrics     AttemptMetrics `json:"metrics"`
}

// ErrorRecord is the ledger entry for one fault.
type ErrorRecord struct {
	ID         string            `json:"id"`
	Category   ErrorCategory     `json:"category"`
	Severity   Severity          `json:"severity"`
	Message    string            `json:"message"`
	Stack      string            `json:"stack,omitempty"`
	Context    ErrorContext      `json:"context"`
	Attempts   []RecoveryAttempt `json:"attempts"`
	Resolved   bool              `json:"resolved"`
	CreatedAt  time.Time         `json:"created_at"`
	ResolvedAt *time.Time        `json:"resolved_at,omitempty"`
}

// Clone returns a copy whose attempt slice can be read without holding the ledger lock.
func (r *ErrorRecord) Clone() ErrorRecord {
	out := *r
	out.Attempts = append([]RecoveryAttempt(nil), r.Attempts...)
	if r.ResolvedAt != nil {
		t := *r.ResolvedAt
		out.ResolvedAt = &t
	}
	return out
}

// Prior reduces the record to the reference stored in later contexts.
func (r *ErrorRecord) Prior() PriorError {
	return PriorError{
		ID:        r.ID,
		Category:  r.Category,
		Message:   r.Message,
		Timestamp: r.CreatedAt,
	}
}
