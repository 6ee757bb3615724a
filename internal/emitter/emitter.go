package emitter

import (
	"context"

	"github.com/vietddude/rescue/internal/core/domain"
)

// Emitter publishes recovery events to observability collaborators.
// Implementations must be safe for concurrent use.
type Emitter interface {
	// Emit sends a single event
	Emit(ctx context.Context, event domain.Event) error

	// Close releases the emitter's resources
	Close() error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Emit(context.Context, domain.Event) error { return nil }
func (Noop) Close() error                             { return nil }
