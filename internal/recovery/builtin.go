package recovery

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/vietddude/rescue/internal/core/domain"
)

// Names of the built-in strategies.
const (
	StrategyAIRetry         = "ai-retry-simplified"
	StrategyValidationFix   = "validation-autofix"
	StrategyNetworkRetry    = "network-retry-backoff"
	StrategyResourceCleanup = "resource-cleanup-retry"
	StrategyFallback        = "fallback-content"
)

var (
	ErrNoGenerator  = errors.New("no generator configured")
	ErrNoOperation  = errors.New("no operation to retry")
	ErrNoInput      = errors.New("no markup input to repair")
	ErrNothingToFix = errors.New("no repair changed the input")
	ErrEmptyOutput  = errors.New("generator returned empty output")
)

// Generator calls the external AI model.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (string, error)
}

// ResourceReleaser drops cached or held resources belonging to a job phase.
type ResourceReleaser interface {
	Release(ctx context.Context, jobID, phase string) (int, error)
}

// BuiltinDeps are the collaborators the built-in strategies call.
type BuiltinDeps struct {
	Generator    Generator        // optional
	Releaser     ResourceReleaser // optional
	Synthesizer  *Synthesizer
	NetworkRetry RetryConfig
}

// BuiltinStrategies returns the five reference strategies.
func BuiltinStrategies(deps BuiltinDeps) []Strategy {
	synth := deps.Synthesizer
	if synth == nil {
		synth = NewSynthesizer(DefaultConfig().FallbackQuality, nil)
	}
	retry := deps.NetworkRetry
	if retry.MaxAttempts <= 0 {
		retry = DefaultConfig().NetworkRetry
	}

	return []Strategy{
		&aiRetry{gen: deps.Generator},
		&validationFix{},
		&networkRetry{retry: retry},
		&resourceCleanup{releaser: deps.Releaser},
		&fallbackContent{synth: synth},
	}
}

// =============================================================================
// AI retry with a simplified request
// =============================================================================

const (
	simplifiedSystemPrompt = "You convert designs into HTML. Return only minimal, valid, semantic HTML " +
		"with inline structure and no external assets."
	simplifiedMaxInput  = 2000
	simplifiedMaxTokens = 1024
)

type aiRetry struct {
	gen Generator
}

func (s *aiRetry) Descriptor() Descriptor {
	return Descriptor{
		Name:        StrategyAIRetry,
		Description: "Re-invoke the AI model with a reduced, simplified request",
		Kind:        KindAIRetry,
		Categories:  []domain.ErrorCategory{domain.CategoryAI, domain.CategoryTimeout},
		Priority:    90,
		MaxAttempts: 1,
		Timeout:     45 * time.Second,
		Resources:   []string{"ai-model"},
	}
}

func (s *aiRetry) Attempt(ctx context.Context, _ domain.ErrorRecord, ec domain.ErrorContext) (Outcome, error) {
	if s.gen == nil {
		return Outcome{}, ErrNoGenerator
	}

	prompt := sourceText(ec, "prompt", "description")
	if len(prompt) > simplifiedMaxInput {
		prompt = prompt[:simplifiedMaxInput]
	}
	if prompt == "" {
		prompt = "Create a minimal page layout with a header, a main content area and a footer."
	} else {
		prompt = "Keep the markup simple. Ignore decorative details.\n\n" + prompt
	}

	out, err := s.gen.Generate(ctx, domain.GenerationRequest{
		System:    simplifiedSystemPrompt,
		Prompt:    prompt,
		MaxTokens: simplifiedMaxTokens,
	})
	if err != nil {
		return Outcome{ResourceUsage: 1}, fmt.Errorf("simplified generation: %w", err)
	}
	markup := stripCodeFence(out)
	if markup == "" {
		return Outcome{ResourceUsage: 1}, ErrEmptyOutput
	}

	return Outcome{
		Success:       true,
		Confidence:    70,
		Data:          domain.MarkupResult{HTML: markup, Simplified: true},
		Message:       "regenerated with simplified request",
		ResourceUsage: 1,
	}, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// =============================================================================
// Validation auto-fix
// =============================================================================

var (
	imgTagRe    = regexp.MustCompile(`(?i)<img\b[^>]*>`)
	htmlTagRe   = regexp.MustCompile(`(?i)<html\b[^>]*>`)
	buttonTagRe = regexp.MustCompile(`(?i)<button\b[^>]*>`)
	altAttrRe   = regexp.MustCompile(`(?i)\salt\b`)
	langAttrRe  = regexp.MustCompile(`(?i)\slang\b`)
	typeAttrRe  = regexp.MustCompile(`(?i)\stype\b`)
)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true, "img": true,
	"input": true, "link": true, "meta": true, "param": true, "source": true, "track": true, "wbr": true,
}

type validationFix struct{}

func (s *validationFix) Descriptor() Descriptor {
	return Descriptor{
		Name:        StrategyValidationFix,
		Description: "Apply deterministic markup repairs to the original input",
		Kind:        KindValidationFix,
		Categories:  []domain.ErrorCategory{domain.CategoryValidation},
		Priority:    85,
		MaxAttempts: 1,
		Timeout:     5 * time.Second,
	}
}

func (s *validationFix) Attempt(_ context.Context, _ domain.ErrorRecord, ec domain.ErrorContext) (Outcome, error) {
	input := sourceText(ec, "html", "markup")
	if input == "" {
		return Outcome{}, ErrNoInput
	}

	fixed, repairs := RepairMarkup(input)
	if fixed == input {
		return Outcome{}, ErrNothingToFix
	}
	return Outcome{
		Success:    true,
		Confidence: 80,
		Data:       domain.MarkupResult{HTML: fixed, Repairs: repairs},
		Message:    fmt.Sprintf("applied %d repairs", len(repairs)),
	}, nil
}

// RepairMarkup applies the fixed set of repairs and names the ones that changed s.
func RepairMarkup(s string) (string, []string) {
	var repairs []string

	apply := func(name string, re *regexp.Regexp, has *regexp.Regexp, insert string) {
		changed := false
		s = re.ReplaceAllStringFunc(s, func(tag string) string {
			if has.MatchString(tag) {
				return tag
			}
			changed = true
			// insert right after the tag name
			i := strings.IndexAny(tag, " \t\n/>")
			return tag[:i] + insert + tag[i:]
		})
		if changed {
			repairs = append(repairs, name)
		}
	}

	apply("img-alt", imgTagRe, altAttrRe, ` alt=""`)
	apply("html-lang", htmlTagRe, langAttrRe, ` lang="en"`)
	apply("button-type", buttonTagRe, typeAttrRe, ` type="button"`)

	if closers := unclosedTags(s); closers != "" {
		s += closers
		repairs = append(repairs, "close-tags")
	}
	return s, repairs
}

// unclosedTags returns the end tags needed to close elements still open at the end of s.
func unclosedTags(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var stack []string

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			var b strings.Builder
			for i := len(stack) - 1; i >= 0; i-- {
				b.WriteString("</" + stack[i] + ">")
			}
			return b.String()
		case html.StartTagToken:
			name, _ := z.TagName()
			if n := string(name); !voidElements[n] {
				stack = append(stack, n)
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			n := string(name)
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i] == n {
					stack = stack[:i]
					break
				}
			}
		}
	}
}

// =============================================================================
// Network retry with exponential backoff
// =============================================================================

type networkRetry struct {
	retry RetryConfig
}

func (s *networkRetry) Descriptor() Descriptor {
	return Descriptor{
		Name:        StrategyNetworkRetry,
		Description: "Re-run the failed operation with exponentially increasing delay",
		Kind:        KindNetworkRetry,
		Categories:  []domain.ErrorCategory{domain.CategoryNetwork, domain.CategoryTimeout},
		Priority:    80,
		MaxAttempts: s.retry.MaxAttempts,
		Timeout:     30 * time.Second,
		Resources:   []string{"network"},
	}
}

func (s *networkRetry) Attempt(ctx context.Context, _ domain.ErrorRecord, ec domain.ErrorContext) (Outcome, error) {
	if ec.Operation == nil {
		return Outcome{}, ErrNoOperation
	}

	backoff := NewBackoff(s.retry)
	var lastErr error
	attempt := 0
	for ; backoff.ShouldRetry(attempt); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Outcome{ResourceUsage: float64(attempt)}, ctx.Err()
			case <-time.After(backoff.GetDelay(attempt - 1)):
			}
		}

		data, err := ec.Operation(ctx)
		if err == nil {
			return Outcome{
				Success:       true,
				Confidence:    85,
				Data:          data,
				Message:       fmt.Sprintf("operation succeeded on attempt %d", attempt+1),
				ResourceUsage: float64(attempt + 1),
			}, nil
		}
		lastErr = err
	}
	return Outcome{ResourceUsage: float64(attempt)}, fmt.Errorf("failed after %d attempts: %w", attempt, lastErr)
}

// =============================================================================
// Resource cleanup
// =============================================================================

type resourceCleanup struct {
	releaser ResourceReleaser
}

func (s *resourceCleanup) Descriptor() Descriptor {
	return Descriptor{
		Name:        StrategyResourceCleanup,
		Description: "Release cached resources for the job phase and ask the caller to retry",
		Kind:        KindResourceCleanup,
		Categories:  []domain.ErrorCategory{domain.CategoryResource, domain.CategoryProcessing},
		Priority:    75,
		MaxAttempts: 1,
		Timeout:     10 * time.Second,
		Resources:   []string{"cache"},
	}
}

// Attempt never resolves the fault; it only frees resources and hints a retry.
func (s *resourceCleanup) Attempt(ctx context.Context, _ domain.ErrorRecord, ec domain.ErrorContext) (Outcome, error) {
	released := 0
	if s.releaser != nil {
		n, err := s.releaser.Release(ctx, ec.JobID, ec.Phase)
		if err != nil {
			return Outcome{}, fmt.Errorf("release resources: %w", err)
		}
		released = n
	}
	return Outcome{
		Success:       false,
		Confidence:    60,
		ShouldRetry:   true,
		Message:       fmt.Sprintf("released %d cached resources, retry the original operation", released),
		ResourceUsage: float64(released),
	}, nil
}

// =============================================================================
// Fallback content
// =============================================================================

type fallbackContent struct {
	synth *Synthesizer
}

func (s *fallbackContent) Descriptor() Descriptor {
	return Descriptor{
		Name:        StrategyFallback,
		Description: "Synthesize minimal valid substitute content",
		Kind:        KindFallback,
		Categories: []domain.ErrorCategory{
			domain.CategoryAI, domain.CategoryProcessing, domain.CategoryValidation, domain.CategoryUnknown,
		},
		Priority:    10,
		MaxAttempts: 1,
		Timeout:     5 * time.Second,
	}
}

func (s *fallbackContent) Attempt(_ context.Context, rec domain.ErrorRecord, ec domain.ErrorContext) (Outcome, error) {
	return Outcome{
		Success:    true,
		Confidence: s.synth.Quality(),
		Data:       s.synth.Synthesize(ec, &rec, nil),
		Message:    "generated fallback content",
	}, nil
}

// sourceText finds the textual input a strategy should work on: OriginalData
// first, then the named metadata keys.
func sourceText(ec domain.ErrorContext, keys ...string) string {
	switch v := ec.OriginalData.(type) {
	case string:
		if v != "" {
			return v
		}
	case []byte:
		if len(v) > 0 {
			return string(v)
		}
	case domain.MarkupResult:
		if v.HTML != "" {
			return v.HTML
		}
	case fmt.Stringer:
		return v.String()
	}
	for _, k := range keys {
		if s, ok := ec.MetadataString(k); ok && s != "" {
			return s
		}
	}
	return ""
}
