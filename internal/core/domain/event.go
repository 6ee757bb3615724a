package domain

import "time"

// Event is a notification published while a fault moves through recovery.
type Event struct {
	Type       EventType     `json:"type"`
	ErrorID    string        `json:"error_id"`
	JobID      string        `json:"job_id"`
	Phase      string        `json:"phase"`
	Category   ErrorCategory `json:"category"`
	Severity   Severity      `json:"severity"`
	Strategy   string        `json:"strategy,omitempty"`
	Confidence int           `json:"confidence"`
	Message    string        `json:"message"`
	Timestamp  time.Time     `json:"timestamp"`
}

type EventType string

const (
	EventErrorDetected  EventType = "error_detected"
	EventErrorRecovered EventType = "error_recovered"
	EventRecoveryFailed EventType = "recovery_failed"
)
