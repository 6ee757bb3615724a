package emitter

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/vietddude/rescue/internal/core/domain"
	"github.com/vietddude/rescue/internal/metrics"
)

// ErrClosed is returned by Emit after Close.
var ErrClosed = errors.New("emitter is closed")

// Async queues events and forwards them to an inner emitter on a background
// goroutine, so slow sinks never hold up recovery. When the queue is full the
// oldest event is dropped.
type Async struct {
	inner Emitter
	name  string
	log   *slog.Logger

	queue chan domain.Event
	done  chan struct{}
	wg    sync.WaitGroup

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewAsync wraps inner with a queue of size events. name labels drop and error metrics.
func NewAsync(inner Emitter, name string, size int) *Async {
	if size <= 0 {
		size = 1000
	}
	a := &Async{
		inner: inner,
		name:  name,
		log:   slog.Default(),
		queue: make(chan domain.Event, size),
		done:  make(chan struct{}),
	}
	a.wg.Add(1)
	go a.loop()
	return a
}

func (a *Async) loop() {
	defer a.wg.Done()
	for {
		select {
		case event := <-a.queue:
			a.forward(event)
		case <-a.done:
			for {
				select {
				case event := <-a.queue:
					a.forward(event)
				default:
					return
				}
			}
		}
	}
}

func (a *Async) forward(event domain.Event) {
	if err := a.inner.Emit(context.Background(), event); err != nil {
		metrics.EmitErrorsTotal.WithLabelValues(a.name).Inc()
		a.log.Debug("Async emitter dropped event after sink error", "sink", a.name, "error", err)
	}
}

// Emit enqueues event and returns immediately.
func (a *Async) Emit(_ context.Context, event domain.Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}

	select {
	case a.queue <- event:
		return nil
	default:
	}

	// Full: drop the oldest and try once more.
	select {
	case <-a.queue:
		metrics.EmitErrorsTotal.WithLabelValues(a.name).Inc()
	default:
	}
	select {
	case a.queue <- event:
	default:
		metrics.EmitErrorsTotal.WithLabelValues(a.name).Inc()
	}
	return nil
}

// Close drains queued events into the inner emitter, then closes it.
func (a *Async) Close() error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		a.mu.Unlock()

		close(a.done)
		a.wg.Wait()
	})
	return a.inner.Close()
}
