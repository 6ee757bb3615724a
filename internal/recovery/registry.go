package recovery

import (
	"fmt"
	"slices"
	"sync"

	"github.com/vietddude/rescue/internal/core/domain"
)

// Registry is the ordered catalog of recovery strategies.
type Registry struct {
	mu         sync.RWMutex
	strategies []Strategy
	index      map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register inserts s, or replaces the strategy with the same name in place.
func (r *Registry) Register(s Strategy) error {
	name := s.Descriptor().Name
	if name == "" {
		return fmt.Errorf("strategy name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if i, ok := r.index[name]; ok {
		r.strategies[i] = s
		return nil
	}
	r.index[name] = len(r.strategies)
	r.strategies = append(r.strategies, s)
	return nil
}

// Applicable returns the strategies declaring category, highest priority first.
// Equal priorities keep registration order.
func (r *Registry) Applicable(category domain.ErrorCategory) []Strategy {
	r.mu.RLock()
	out := make([]Strategy, 0, len(r.strategies))
	for _, s := range r.strategies {
		if s.Descriptor().AppliesTo(category) {
			out = append(out, s)
		}
	}
	r.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b Strategy) int {
		return b.Descriptor().Priority - a.Descriptor().Priority
	})
	return out
}

// Descriptors lists every registered strategy in registration order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, len(r.strategies))
	for i, s := range r.strategies {
		out[i] = s.Descriptor()
	}
	return out
}
