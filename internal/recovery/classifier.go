package recovery

import (
	"errors"
	"slices"
	"strings"

	"github.com/vietddude/rescue/internal/core/domain"
)

// Categorized is implemented by faults that carry their own category code.
// Such faults skip the message heuristics.
type Categorized interface {
	Category() domain.ErrorCategory
}

type categoryRule struct {
	category domain.ErrorCategory
	keywords []string
}

// Order matters: first match wins. A validation message that mentions "timeout"
// stays validation, but a processing message that mentions "timeout" becomes timeout.
var defaultRules = []categoryRule{
	{domain.CategoryValidation, []string{"validation", "invalid", "malformed", "missing", "required"}},
	{domain.CategoryTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{domain.CategoryNetwork, []string{
		"network", "connection", "econnrefused", "econnreset", "enotfound",
		"no such host", "dns", "socket", "fetch failed",
	}},
	{domain.CategoryAI, []string{
		"ai model", "ai service", "openai", "anthropic", "completion",
		"prompt", "token", "rate limit", "model",
	}},
	{domain.CategoryResource, []string{
		"memory", "disk", "quota", "resource", "enospc", "too many open files", "out of space",
	}},
	{domain.CategoryProcessing, []string{
		"processing", "parse", "render", "transform", "convert", "compile",
	}},
}

// Classifier maps a fault and its context to a category and severity.
type Classifier struct {
	rules          []categoryRule
	majorPhases    []string
	criticalPhases []string
}

// NewClassifier creates a classifier with the given phase escalation sets.
func NewClassifier(majorPhases, criticalPhases []string) *Classifier {
	return &Classifier{
		rules:          defaultRules,
		majorPhases:    majorPhases,
		criticalPhases: criticalPhases,
	}
}

// Classify returns the category and severity for fault. It has no side effects.
func (c *Classifier) Classify(fault error, ec domain.ErrorContext) (domain.ErrorCategory, domain.Severity) {
	return c.category(fault), c.severity(ec)
}

func (c *Classifier) category(fault error) domain.ErrorCategory {
	if fault == nil {
		return domain.CategoryUnknown
	}

	var coded Categorized
	if errors.As(fault, &coded) {
		if cat := coded.Category(); cat != "" {
			return cat
		}
	}

	msg := strings.ToLower(fault.Error())
	for _, rule := range c.rules {
		for _, kw := range rule.keywords {
			if strings.Contains(msg, kw) {
				return rule.category
			}
		}
	}
	return domain.CategoryUnknown
}

func (c *Classifier) severity(ec domain.ErrorContext) domain.Severity {
	severity := domain.SeverityMinor

	if slices.Contains(c.majorPhases, ec.Phase) {
		severity = escalate(severity, domain.SeverityMajor)
	}
	if slices.Contains(c.criticalPhases, ec.Phase) {
		severity = escalate(severity, domain.SeverityCritical)
	}
	// Repeated failures in one job are at least major.
	if len(ec.PreviousErrors) > 2 {
		severity = escalate(severity, domain.SeverityMajor)
	}
	return severity
}

func escalate(current, to domain.Severity) domain.Severity {
	if to.Rank() > current.Rank() {
		return to
	}
	return current
}
