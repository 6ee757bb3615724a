package recovery

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/vietddude/rescue/internal/core/domain"
	"github.com/vietddude/rescue/internal/metrics"
)

// Stats is the aggregate view of the ledger.
type Stats struct {
	Total      int                          `json:"total"`
	Resolved   int                          `json:"resolved"`
	ByCategory map[domain.ErrorCategory]int `json:"by_type"`
	BySeverity map[domain.Severity]int      `json:"by_severity"`
}

// Unresolved is Total minus Resolved.
func (s Stats) Unresolved() int { return s.Total - s.Resolved }

// Ledger owns every ErrorRecord and its attempts for the process lifetime.
type Ledger struct {
	mu      sync.RWMutex
	records map[string]*domain.ErrorRecord
	order   []string
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{records: make(map[string]*domain.ErrorRecord)}
}

// Add stores a new record. The record must not carry attempts yet.
func (l *Ledger) Add(rec *domain.ErrorRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.records[rec.ID]; ok {
		return fmt.Errorf("error record %s already exists", rec.ID)
	}
	stored := rec.Clone()
	stored.Attempts = nil
	stored.Resolved = false
	stored.ResolvedAt = nil
	l.records[rec.ID] = &stored
	l.order = append(l.order, rec.ID)
	metrics.LedgerRecords.Set(float64(len(l.records)))
	return nil
}

// AppendAttempt records an attempt. A successful attempt resolves the record.
// Returns the updated record.
func (l *Ledger) AppendAttempt(id string, attempt domain.RecoveryAttempt) (domain.ErrorRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[id]
	if !ok {
		return domain.ErrorRecord{}, fmt.Errorf("error record %s not found", id)
	}
	rec.Attempts = append(rec.Attempts, attempt)
	if attempt.Success && !rec.Resolved {
		rec.Resolved = true
		at := attempt.CompletedAt
		rec.ResolvedAt = &at
	}
	return rec.Clone(), nil
}

// Get returns a copy of the record.
func (l *Ledger) Get(id string) (domain.ErrorRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[id]
	if !ok {
		return domain.ErrorRecord{}, false
	}
	return rec.Clone(), true
}

// AttemptCount returns how many attempts the record has.
func (l *Ledger) AttemptCount(id string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if rec, ok := l.records[id]; ok {
		return len(rec.Attempts)
	}
	return 0
}

// History returns copies of all records, oldest first.
func (l *Ledger) History() []domain.ErrorRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.ErrorRecord, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.records[id].Clone())
	}
	return out
}

// JobErrors returns references to the recorded faults of one job, oldest first.
func (l *Ledger) JobErrors(jobID string) []domain.PriorError {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.PriorError
	for _, id := range l.order {
		if rec := l.records[id]; rec.Context.JobID == jobID {
			out = append(out, rec.Prior())
		}
	}
	return out
}

// Stats aggregates counts over all records.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := Stats{
		ByCategory: make(map[domain.ErrorCategory]int),
		BySeverity: make(map[domain.Severity]int),
	}
	for _, rec := range l.records {
		stats.Total++
		if rec.Resolved {
			stats.Resolved++
		}
		stats.ByCategory[rec.Category]++
		stats.BySeverity[rec.Severity]++
	}
	return stats
}

// Sweep removes resolved records created before cutoff and returns them.
func (l *Ledger) Sweep(cutoff time.Time) []domain.ErrorRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	var removed []domain.ErrorRecord
	kept := l.order[:0]
	for _, id := range l.order {
		rec := l.records[id]
		if rec.Resolved && rec.CreatedAt.Before(cutoff) {
			removed = append(removed, rec.Clone())
			delete(l.records, id)
			continue
		}
		kept = append(kept, id)
	}
	l.order = kept

	metrics.LedgerRecords.Set(float64(len(l.records)))
	metrics.SweptTotal.Add(float64(len(removed)))
	return removed
}

// Restore puts swept records back, skipping IDs the ledger already holds.
// Restored records keep their attempts and resolution.
func (l *Ledger) Restore(records []domain.ErrorRecord) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, rec := range records {
		if _, ok := l.records[rec.ID]; ok {
			continue
		}
		stored := rec.Clone()
		l.records[rec.ID] = &stored
		l.order = append(l.order, rec.ID)
		n++
	}
	if n > 0 {
		slices.SortStableFunc(l.order, func(a, b string) int {
			return l.records[a].CreatedAt.Compare(l.records[b].CreatedAt)
		})
	}
	metrics.LedgerRecords.Set(float64(len(l.records)))
	return n
}

// Len returns the number of records held.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
