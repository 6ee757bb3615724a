package storage

import (
	"context"

	"github.com/vietddude/rescue/internal/core/domain"
)

// ArtifactStore holds intermediate artifacts of a job phase. Phase runners
// fill it; the resource cleanup strategy releases a phase's entries.
type ArtifactStore interface {
	// Put stores value under name for the job phase
	Put(ctx context.Context, jobID, phase, name string, value []byte) error

	// Get returns the artifact, or nil when absent
	Get(ctx context.Context, jobID, phase, name string) ([]byte, error)

	// Release drops every artifact of the phase and returns how many there were
	Release(ctx context.Context, jobID, phase string) (int, error)
}

// ArchiveRepository keeps error records after the ledger sweep evicts them.
type ArchiveRepository interface {
	// Save stores records; saving an already archived record replaces it
	Save(ctx context.Context, records []domain.ErrorRecord) error

	// Recent returns up to limit records, newest first
	Recent(ctx context.Context, limit int) ([]domain.ErrorRecord, error)

	// Count returns the number of archived records
	Count(ctx context.Context) (int, error)

	// Close releases the backing store
	Close() error
}
