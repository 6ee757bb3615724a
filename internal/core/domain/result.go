package domain

import "time"

// RecoveryResult is what the engine hands back to the caller that reported a fault.
type RecoveryResult struct {
	ErrorID      string `json:"error_id,omitempty"`
	Success      bool   `json:"success"`
	Data         any    `json:"data,omitempty"`
	Message      string `json:"message"`
	Confidence   int    `json:"confidence"`
	ShouldRetry  bool   `json:"should_retry"`
	FallbackData any    `json:"fallback_data,omitempty"`
}

// MarkupResult is the structured output of strategies that produce HTML.
type MarkupResult struct {
	HTML       string   `json:"html"`
	CSS        string   `json:"css,omitempty"`
	Simplified bool     `json:"simplified,omitempty"`
	Repairs    []string `json:"repairs,omitempty"`
}

// FallbackMetadata marks synthesized output so callers can tell it apart from real results.
type FallbackMetadata struct {
	FallbackGenerated bool      `json:"fallback_generated"`
	ErrorID           string    `json:"error_id,omitempty"`
	Reason            string    `json:"reason"`
	JobID             string    `json:"job_id"`
	Phase             string    `json:"phase"`
	Quality           int       `json:"quality"`
	GeneratedAt       time.Time `json:"generated_at"`
}

// FallbackContent is the minimal valid substitute produced when recovery fails.
type FallbackContent struct {
	HTML     string           `json:"html"`
	CSS      string           `json:"css"`
	Metadata FallbackMetadata `json:"metadata"`
	Partial  any              `json:"partial,omitempty"`
}

// GenerationRequest is a request to the external AI model.
type GenerationRequest struct {
	System    string
	Prompt    string
	MaxTokens int
}
