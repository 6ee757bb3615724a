package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/rescue/internal/core/domain"
	"github.com/vietddude/rescue/internal/infra/storage"
)

// Sweeper removes expired records from the ledger and can take them back.
type Sweeper interface {
	Sweep(cutoff time.Time) []domain.ErrorRecord
	Restore(records []domain.ErrorRecord) int
}

// Pruner evicts resolved error records older than the retention window and
// hands them to the archive, if one is configured.
type Pruner struct {
	ledger    Sweeper
	archive   storage.ArchiveRepository
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	tick      func(time.Duration) (<-chan time.Time, func())
	log       *slog.Logger
}

// PrunerOption configures a Pruner.
type PrunerOption func(*Pruner)

// WithArchive keeps swept records in repo.
func WithArchive(repo storage.ArchiveRepository) PrunerOption {
	return func(p *Pruner) { p.archive = repo }
}

// WithClock replaces time.Now when computing the cutoff.
func WithClock(now func() time.Time) PrunerOption {
	return func(p *Pruner) { p.now = now }
}

// WithTicker replaces time.NewTicker; tests pass a channel they control.
func WithTicker(tick func(time.Duration) (<-chan time.Time, func())) PrunerOption {
	return func(p *Pruner) { p.tick = tick }
}

// NewPruner creates a new Pruner worker.
func NewPruner(ledger Sweeper, retention, interval time.Duration, opts ...PrunerOption) *Pruner {
	if interval <= 0 {
		// 10% of retention, between 1 minute and 1 hour
		interval = min(max(retention/10, time.Minute), time.Hour)
	}
	p := &Pruner{
		ledger:    ledger,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		tick: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start runs the pruner loop until ctx is done.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	ticks, stop := p.tick(p.interval)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			p.Prune(ctx)
		}
	}
}

// Prune runs one sweep and returns how many records were removed. When the
// archive rejects the batch, the records go back into the ledger for the next sweep.
func (p *Pruner) Prune(ctx context.Context) int {
	cutoff := p.now().Add(-p.retention)
	removed := p.ledger.Sweep(cutoff)
	if len(removed) == 0 {
		return 0
	}

	p.log.Info("[Pruner] swept resolved error records", "count", len(removed), "cutoff", cutoff)
	if p.archive != nil {
		if err := p.archive.Save(ctx, removed); err != nil {
			restored := p.ledger.Restore(removed)
			p.log.Error("[Pruner] failed to archive swept records, kept in ledger",
				"count", len(removed), "restored", restored, "error", err)
			return 0
		}
	}
	return len(removed)
}
