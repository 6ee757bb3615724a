package recovery

import (
	"context"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/vietddude/rescue/internal/metrics"
)

// Coordinator runs at most one producer per key. Callers arriving while a
// producer is running wait for and share its outcome.
type Coordinator[T any] struct {
	group singleflight.Group

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator[T any]() *Coordinator[T] {
	return &Coordinator[T]{inflight: make(map[string]struct{})}
}

// Run executes producer for key unless one is already running, in which case it
// waits for that one. shared reports whether the outcome went to more than one caller.
// If ctx ends first, Run returns ctx.Err() and the producer keeps running for the others.
// producer must not panic.
func (c *Coordinator[T]) Run(ctx context.Context, key string, producer func() T) (T, bool, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		c.mu.Lock()
		c.inflight[key] = struct{}{}
		c.mu.Unlock()
		metrics.InFlight.Inc()

		defer func() {
			c.mu.Lock()
			delete(c.inflight, key)
			c.mu.Unlock()
			metrics.InFlight.Dec()
		}()

		return producer(), nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.DedupJoinedTotal.Inc()
		}
		v, _ := res.Val.(T)
		return v, res.Shared, res.Err
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	}
}

// InFlight lists keys with a running producer.
func (c *Coordinator[T]) InFlight() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.inflight))
	for k := range c.inflight {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
