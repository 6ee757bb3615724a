package recovery

import (
	"bytes"
	"html/template"
	"sync/atomic"
	"time"

	"github.com/vietddude/rescue/internal/core/domain"
)

const fallbackCSS = `.rescue-fallback{max-width:960px;margin:0 auto;padding:2rem;font-family:system-ui,sans-serif}` +
	`.rescue-fallback h1{font-size:1.5rem;margin:0 0 1rem}` +
	`.rescue-fallback p{line-height:1.5;color:#444}`

var fallbackTemplate = template.Must(template.New("fallback").Parse(
	`<section class="rescue-fallback" data-fallback="true" data-phase="{{.Phase}}">` +
		`<header><h1>{{.Title}}</h1></header>` +
		`<main><p>This content was generated automatically while the {{.Phase}} step recovers.</p></main>` +
		`</section>`,
))

// Synthesizer produces minimal valid substitute markup. It never fails.
type Synthesizer struct {
	quality atomic.Int64
	now     func() time.Time
}

// NewSynthesizer creates a synthesizer stamping output with quality.
func NewSynthesizer(quality int, now func() time.Time) *Synthesizer {
	if now == nil {
		now = time.Now
	}
	s := &Synthesizer{now: now}
	s.SetQuality(quality)
	return s
}

// Quality is the confidence attached to synthesized output.
func (s *Synthesizer) Quality() int { return int(s.quality.Load()) }

// SetQuality updates the fallback quality threshold.
func (s *Synthesizer) SetQuality(q int) { s.quality.Store(int64(min(max(q, 0), 100))) }

// Synthesize builds fallback content for the fault described by rec and ec.
// partial, when non-nil, is carried through untouched.
func (s *Synthesizer) Synthesize(ec domain.ErrorContext, rec *domain.ErrorRecord, partial any) domain.FallbackContent {
	phase := ec.Phase
	if phase == "" {
		phase = "current"
	}
	title, _ := ec.MetadataString("title")
	if title == "" {
		title = "Content preview"
	}

	var buf bytes.Buffer
	if err := fallbackTemplate.Execute(&buf, struct{ Phase, Title string }{phase, title}); err != nil {
		// The template is static; keep the guarantee even if rendering ever fails.
		buf.Reset()
		buf.WriteString(`<section class="rescue-fallback" data-fallback="true"><p>Content unavailable.</p></section>`)
	}

	meta := domain.FallbackMetadata{
		FallbackGenerated: true,
		Reason:            "recovery strategies exhausted",
		JobID:             ec.JobID,
		Phase:             ec.Phase,
		Quality:           s.Quality(),
		GeneratedAt:       s.now(),
	}
	if rec != nil {
		meta.ErrorID = rec.ID
		meta.Reason = rec.Message
	}

	return domain.FallbackContent{
		HTML:     buf.String(),
		CSS:      fallbackCSS,
		Metadata: meta,
		Partial:  partial,
	}
}
