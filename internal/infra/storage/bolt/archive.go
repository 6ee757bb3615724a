package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/vietddude/rescue/internal/core/domain"
)

var recordsBucket = []byte("error_records")

// ArchiveRepo implements storage.ArchiveRepository in a local bbolt file.
type ArchiveRepo struct {
	db *bbolt.DB
}

// Open opens (or creates) the archive file at path.
func Open(path string) (*ArchiveRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive dir: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recordsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}
	return &ArchiveRepo{db: db}, nil
}

// Save stores records keyed by error ID.
func (r *ArchiveRepo) Save(ctx context.Context, records []domain.ErrorRecord) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		for _, rec := range records {
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("failed to marshal record %s: %w", rec.ID, err)
			}
			if err := b.Put([]byte(rec.ID), data); err != nil {
				return fmt.Errorf("failed to put record %s: %w", rec.ID, err)
			}
		}
		return nil
	})
}

// Recent returns up to limit records, newest first.
func (r *ArchiveRepo) Recent(ctx context.Context, limit int) ([]domain.ErrorRecord, error) {
	var out []domain.ErrorRecord
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(recordsBucket).ForEach(func(_, v []byte) error {
			var rec domain.ErrorRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil // skip unreadable entries
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}

	slices.SortFunc(out, func(a, b domain.ErrorRecord) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count returns the number of archived records.
func (r *ArchiveRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(recordsBucket).Stats().KeyN
		return nil
	})
	return n, err
}

// Close closes the file.
func (r *ArchiveRepo) Close() error {
	return r.db.Close()
}
