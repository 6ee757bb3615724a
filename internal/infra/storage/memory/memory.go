package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/vietddude/rescue/internal/core/domain"
)

// ArchiveRepo is an in-process ArchiveRepository.
type ArchiveRepo struct {
	mu      sync.RWMutex
	records map[string]domain.ErrorRecord
}

func NewArchiveRepo() *ArchiveRepo {
	return &ArchiveRepo{records: make(map[string]domain.ErrorRecord)}
}

func (r *ArchiveRepo) Save(ctx context.Context, records []domain.ErrorRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		r.records[rec.ID] = rec
	}
	return nil
}

func (r *ArchiveRepo) Recent(ctx context.Context, limit int) ([]domain.ErrorRecord, error) {
	r.mu.RLock()
	out := make([]domain.ErrorRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b domain.ErrorRecord) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ArchiveRepo) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records), nil
}

func (r *ArchiveRepo) Close() error { return nil }

// ArtifactCache holds intermediate artifacts per job phase in memory.
type ArtifactCache struct {
	mu        sync.Mutex
	artifacts map[string]map[string][]byte
}

func NewArtifactCache() *ArtifactCache {
	return &ArtifactCache{artifacts: make(map[string]map[string][]byte)}
}

func cacheKey(jobID, phase string) string { return jobID + ":" + phase }

func (c *ArtifactCache) Put(ctx context.Context, jobID, phase, name string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey(jobID, phase)
	if c.artifacts[key] == nil {
		c.artifacts[key] = make(map[string][]byte)
	}
	c.artifacts[key][name] = value
	return nil
}

func (c *ArtifactCache) Get(ctx context.Context, jobID, phase, name string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.artifacts[cacheKey(jobID, phase)][name], nil
}

// Release drops every artifact of the phase and returns how many there were.
func (c *ArtifactCache) Release(ctx context.Context, jobID, phase string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey(jobID, phase)
	n := len(c.artifacts[key])
	delete(c.artifacts, key)
	return n, nil
}
