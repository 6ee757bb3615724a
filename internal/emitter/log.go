package emitter

import (
	"context"
	"log/slog"

	"github.com/vietddude/rescue/internal/core/domain"
)

// LogEmitter writes events to a structured logger.
type LogEmitter struct {
	log *slog.Logger
}

// NewLogEmitter creates an emitter logging through l (slog.Default() when nil).
func NewLogEmitter(l *slog.Logger) *LogEmitter {
	if l == nil {
		l = slog.Default()
	}
	return &LogEmitter{log: l}
}

func (e *LogEmitter) Emit(ctx context.Context, event domain.Event) error {
	level := slog.LevelInfo
	if event.Type == domain.EventRecoveryFailed {
		level = slog.LevelWarn
	}
	e.log.LogAttrs(ctx, level, "[EVENT] "+string(event.Type),
		slog.String("error_id", event.ErrorID),
		slog.String("job", event.JobID),
		slog.String("phase", event.Phase),
		slog.String("category", string(event.Category)),
		slog.String("severity", string(event.Severity)),
		slog.String("strategy", event.Strategy),
		slog.Int("confidence", event.Confidence),
	)
	return nil
}

func (e *LogEmitter) Close() error { return nil }
