package emitter

import (
	"context"
	"errors"

	"github.com/vietddude/rescue/internal/core/domain"
)

// Multi fans every event out to all emitters. Errors are joined; one failing
// emitter does not stop the others.
type Multi struct {
	emitters []Emitter
}

// NewMulti creates a fan-out emitter.
func NewMulti(emitters ...Emitter) *Multi {
	return &Multi{emitters: emitters}
}

func (m *Multi) Emit(ctx context.Context, event domain.Event) error {
	var errs []error
	for _, e := range m.emitters {
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	var errs []error
	for _, e := range m.emitters {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
