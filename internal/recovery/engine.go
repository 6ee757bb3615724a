package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/rescue/internal/core/domain"
	"github.com/vietddude/rescue/internal/emitter"
	"github.com/vietddude/rescue/internal/metrics"
)

// ErrStrategyTimeout marks an attempt that did not finish within its timeout.
var ErrStrategyTimeout = errors.New("strategy timeout")

// Engine is the recovery orchestrator. All methods are safe for concurrent use.
type Engine struct {
	cfgMu sync.RWMutex
	cfg   Config

	classifier *Classifier
	registry   *Registry
	ledger     *Ledger
	dedup      *Coordinator[domain.RecoveryResult]
	synth      *Synthesizer
	emitter    emitter.Emitter
	log        *slog.Logger
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithEmitter sets the event sink. Defaults to a no-op sink.
func WithEmitter(e emitter.Emitter) Option {
	return func(eng *Engine) { eng.emitter = e }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.log = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(eng *Engine) { eng.now = now }
}

// WithLedger shares an existing ledger.
func WithLedger(l *Ledger) Option {
	return func(eng *Engine) { eng.ledger = l }
}

// NewEngine creates an engine with an empty registry.
func NewEngine(cfg Config, opts ...Option) *Engine {
	cfg = cfg.WithDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		cfg:      cfg,
		registry: NewRegistry(),
		dedup:    NewCoordinator[domain.RecoveryResult](),
		emitter:  emitter.Noop{},
		log:      slog.Default(),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.ledger == nil {
		e.ledger = NewLedger()
	}
	e.classifier = NewClassifier(cfg.MajorPhases, cfg.CriticalPhases)
	e.synth = NewSynthesizer(cfg.FallbackQuality, e.now)
	return e
}

// Synthesizer exposes the fallback synthesizer so the fallback strategy shares its quality setting.
func (e *Engine) Synthesizer() *Synthesizer { return e.synth }

// Ledger exposes the attempt ledger.
func (e *Engine) Ledger() *Ledger { return e.ledger }

// RegisterStrategy installs s, replacing any strategy with the same name.
func (e *Engine) RegisterStrategy(s Strategy) error {
	if err := e.registry.Register(s); err != nil {
		return err
	}
	d := s.Descriptor()
	e.log.Debug("Registered recovery strategy", "strategy", d.Name, "priority", d.Priority, "categories", d.Categories)
	return nil
}

// RegisterBuiltins installs the five built-in strategies.
func (e *Engine) RegisterBuiltins(deps BuiltinDeps) error {
	if deps.Synthesizer == nil {
		deps.Synthesizer = e.synth
	}
	if deps.NetworkRetry.MaxAttempts <= 0 {
		deps.NetworkRetry = e.config().NetworkRetry
	}
	for _, s := range BuiltinStrategies(deps) {
		if err := e.RegisterStrategy(s); err != nil {
			return err
		}
	}
	return nil
}

// Strategies lists registered strategy descriptors.
func (e *Engine) Strategies() []Descriptor { return e.registry.Descriptors() }

// ErrorHistory returns every record in the ledger.
func (e *Engine) ErrorHistory() []domain.ErrorRecord { return e.ledger.History() }

// ErrorStats returns aggregate ledger counts.
func (e *Engine) ErrorStats() Stats { return e.ledger.Stats() }

// InFlight lists dedup keys with a running orchestration.
func (e *Engine) InFlight() []string { return e.dedup.InFlight() }

// Config returns the current tunables.
func (e *Engine) Config() Config { return e.config() }

// UpdateConfig applies a partial change to the runtime tunables.
func (e *Engine) UpdateConfig(u ConfigUpdate) {
	e.cfgMu.Lock()
	e.cfg = e.cfg.apply(u)
	cfg := e.cfg
	e.cfgMu.Unlock()

	e.synth.SetQuality(cfg.FallbackQuality)
	e.log.Info("Recovery config updated",
		"fallback_enabled", cfg.FallbackEnabled,
		"fallback_quality", cfg.FallbackQuality,
		"max_attempts", cfg.MaxAttemptsPerError,
		"attempt_timeout", cfg.AttemptTimeout,
		"preserve_partial", cfg.PreservePartialResults,
	)
}

// Close aborts running strategy chains and closes the event sink.
func (e *Engine) Close() error {
	e.cancel()
	return e.emitter.Close()
}

func (e *Engine) config() Config {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg
}

// Handle runs recovery for fault and always returns a result. Concurrent calls
// for the same job and phase share one orchestration and receive equal results.
// originalData, when non-nil, becomes ec.OriginalData.
func (e *Engine) Handle(
	ctx context.Context,
	fault error,
	ec domain.ErrorContext,
	originalData any,
) (result domain.RecoveryResult) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Recovery handling panicked", "job", ec.JobID, "phase", ec.Phase, "panic", r)
			result = e.degraded(ec, nil, fmt.Sprintf("recovery failed: %v", r), false, nil)
		}
	}()

	if fault == nil {
		fault = errors.New("unknown error")
	}
	if ec.Timestamp.IsZero() {
		ec.Timestamp = e.now()
	}
	if originalData != nil {
		ec.OriginalData = originalData
	}
	if ec.PreviousErrors == nil && ec.JobID != "" {
		ec.PreviousErrors = e.ledger.JobErrors(ec.JobID)
	}

	category, severity := e.classifier.Classify(fault, ec)

	res, shared, err := e.dedup.Run(ctx, dedupKey(ec), func() domain.RecoveryResult {
		return e.orchestrate(fault, ec, category, severity)
	})
	if err != nil {
		e.log.Warn("Caller stopped waiting for recovery", "job", ec.JobID, "phase", ec.Phase, "error", err)
		metrics.ResultsTotal.WithLabelValues("cancelled").Inc()
		return e.degraded(ec, nil, fmt.Sprintf("recovery abandoned: %v", err), false, nil)
	}
	if shared {
		e.log.Debug("Recovery result shared", "job", ec.JobID, "phase", ec.Phase, "error_id", res.ErrorID)
	}
	return res
}

// dedupKey coalesces faults of one job phase. A fault without a job cannot be
// matched to any other, so it gets a key of its own.
func dedupKey(ec domain.ErrorContext) string {
	if ec.JobID == "" {
		return "unkeyed:" + uuid.NewString()
	}
	return ec.Key()
}

// orchestrate is the per-error state machine. It must not panic: singleflight
// re-raises panics on a fresh goroutine.
func (e *Engine) orchestrate(
	fault error,
	ec domain.ErrorContext,
	category domain.ErrorCategory,
	severity domain.Severity,
) (result domain.RecoveryResult) {
	var rec *domain.ErrorRecord
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Recovery orchestration panicked", "job", ec.JobID, "phase", ec.Phase, "panic", r)
			result = e.exhausted(ec, rec, fmt.Sprintf("recovery failed: %v", r), false, nil)
		}
	}()

	rec = e.newRecord(fault, ec, category, severity)
	if err := e.ledger.Add(rec); err != nil {
		e.log.Error("Failed to record error", "error_id", rec.ID, "error", err)
		return e.exhausted(ec, rec, err.Error(), false, nil)
	}
	metrics.ErrorsTotal.WithLabelValues(string(category), string(severity)).Inc()
	e.log.Info("Error detected",
		"error_id", rec.ID, "job", ec.JobID, "phase", ec.Phase,
		"category", category, "severity", severity, "message", rec.Message,
	)
	e.emit(domain.EventErrorDetected, rec, "", 0, rec.Message)

	cfg := e.config()
	var (
		retryHint bool
		partial   any
	)
	for _, s := range e.registry.Applicable(category) {
		if e.ledger.AttemptCount(rec.ID) >= cfg.MaxAttemptsPerError {
			e.log.Debug("Attempt ceiling reached", "error_id", rec.ID, "max", cfg.MaxAttemptsPerError)
			break
		}
		if e.ctx.Err() != nil {
			break
		}
		desc := s.Descriptor()
		if desc.Kind == KindFallback && !cfg.FallbackEnabled {
			continue
		}

		snapshot, _ := e.ledger.Get(rec.ID)
		attempt, out := e.execute(s, desc, snapshot, ec, cfg)
		if _, err := e.ledger.AppendAttempt(rec.ID, attempt); err != nil {
			e.log.Error("Failed to record attempt", "error_id", rec.ID, "strategy", desc.Name, "error", err)
		}

		if attempt.Success {
			e.log.Info("Error recovered",
				"error_id", rec.ID, "job", ec.JobID, "phase", ec.Phase,
				"strategy", desc.Name, "confidence", attempt.Metrics.Confidence,
			)
			e.emit(domain.EventErrorRecovered, rec, desc.Name, attempt.Metrics.Confidence, out.Message)
			metrics.ResultsTotal.WithLabelValues("recovered").Inc()

			msg := out.Message
			if msg == "" {
				msg = "recovered by " + desc.Name
			}
			return domain.RecoveryResult{
				ErrorID:     rec.ID,
				Success:     true,
				Data:        out.Data,
				Message:     msg,
				Confidence:  attempt.Metrics.Confidence,
				ShouldRetry: false,
			}
		}

		e.log.Debug("Recovery attempt failed", "error_id", rec.ID, "strategy", desc.Name, "error", attempt.Error)
		retryHint = retryHint || out.ShouldRetry
		if out.Data != nil {
			partial = out.Data
		}
	}

	if !cfg.PreservePartialResults {
		partial = nil
	}
	return e.exhausted(ec, rec, "all recovery strategies failed", retryHint, partial)
}

// execute runs one strategy raced against its timeout and builds the attempt.
func (e *Engine) execute(
	s Strategy,
	desc Descriptor,
	rec domain.ErrorRecord,
	ec domain.ErrorContext,
	cfg Config,
) (domain.RecoveryAttempt, Outcome) {
	timeout := desc.Timeout
	if cfg.AttemptTimeout > 0 && (timeout <= 0 || cfg.AttemptTimeout < timeout) {
		timeout = cfg.AttemptTimeout
	}
	if timeout <= 0 {
		timeout = DefaultConfig().AttemptTimeout
	}
	ctx, cancel := context.WithTimeout(e.ctx, timeout)
	defer cancel()

	type reply struct {
		out Outcome
		err error
	}
	done := make(chan reply, 1)
	started := e.now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: fmt.Errorf("strategy panicked: %v", r)}
			}
		}()
		out, err := s.Attempt(ctx, rec, ec)
		done <- reply{out: out, err: err}
	}()

	var r reply
	select {
	case r = <-done:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			r = reply{err: ErrStrategyTimeout}
		} else {
			r = reply{err: fmt.Errorf("recovery cancelled: %w", ctx.Err())}
		}
	}
	completed := e.now()

	attempt := domain.RecoveryAttempt{
		ID:          uuid.NewString(),
		Strategy:    desc.Name,
		StartedAt:   started,
		CompletedAt: completed,
		Success:     r.err == nil && r.out.Success,
		Metrics: domain.AttemptMetrics{
			Duration:      completed.Sub(started),
			ResourceUsage: r.out.ResourceUsage,
			Confidence:    min(max(r.out.Confidence, 0), 100),
		},
	}
	switch {
	case r.err != nil:
		attempt.Error = r.err.Error()
		attempt.Metrics.Confidence = 0
	case !r.out.Success:
		attempt.Error = r.out.Message
	}
	if attempt.Success {
		attempt.Result = r.out.Data
	}

	outcome := "failure"
	switch {
	case attempt.Success:
		outcome = "success"
	case errors.Is(r.err, ErrStrategyTimeout):
		outcome = "timeout"
	}
	metrics.AttemptsTotal.WithLabelValues(desc.Name, outcome).Inc()
	metrics.AttemptDuration.WithLabelValues(desc.Name).Observe(attempt.Metrics.Duration.Seconds())

	return attempt, r.out
}

func (e *Engine) newRecord(
	fault error,
	ec domain.ErrorContext,
	category domain.ErrorCategory,
	severity domain.Severity,
) *domain.ErrorRecord {
	msg := fault.Error()
	rec := &domain.ErrorRecord{
		ID:        uuid.NewString(),
		Category:  category,
		Severity:  severity,
		Message:   msg,
		Context:   ec,
		CreatedAt: e.now(),
	}
	// Errors that carry a stack print it with %+v.
	if verbose := fmt.Sprintf("%+v", fault); verbose != msg {
		rec.Stack = verbose
	}
	return rec
}

// exhausted finishes an orchestration that did not recover the fault.
func (e *Engine) exhausted(
	ec domain.ErrorContext,
	rec *domain.ErrorRecord,
	msg string,
	retryHint bool,
	partial any,
) domain.RecoveryResult {
	if rec != nil {
		e.log.Warn("Recovery failed, returning fallback",
			"error_id", rec.ID, "job", ec.JobID, "phase", ec.Phase, "category", rec.Category,
		)
		e.emit(domain.EventRecoveryFailed, rec, "", 0, msg)
	}
	metrics.ResultsTotal.WithLabelValues("fallback").Inc()
	return e.degraded(ec, rec, msg, retryHint, partial)
}

func (e *Engine) degraded(
	ec domain.ErrorContext,
	rec *domain.ErrorRecord,
	msg string,
	retryHint bool,
	partial any,
) domain.RecoveryResult {
	res := domain.RecoveryResult{
		Success:      false,
		Message:      msg,
		Confidence:   0,
		ShouldRetry:  retryHint,
		FallbackData: e.synth.Synthesize(ec, rec, partial),
	}
	if rec != nil {
		res.ErrorID = rec.ID
	}
	return res
}

// emit never panics; it also runs inside orchestrate's recover path.
func (e *Engine) emit(t domain.EventType, rec *domain.ErrorRecord, strategy string, confidence int, msg string) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Event sink panicked", "type", t, "error_id", rec.ID, "panic", r)
		}
	}()
	evt := domain.Event{
		Type:       t,
		ErrorID:    rec.ID,
		JobID:      rec.Context.JobID,
		Phase:      rec.Context.Phase,
		Category:   rec.Category,
		Severity:   rec.Severity,
		Strategy:   strategy,
		Confidence: confidence,
		Message:    msg,
		Timestamp:  e.now(),
	}
	if err := e.emitter.Emit(e.ctx, evt); err != nil {
		e.log.Warn("Failed to emit recovery event", "type", t, "error_id", rec.ID, "error", err)
	}
}
