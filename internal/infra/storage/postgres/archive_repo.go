package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vietddude/rescue/internal/core/domain"
)

// ArchiveRepo implements storage.ArchiveRepository using PostgreSQL.
type ArchiveRepo struct {
	db *DB
}

// NewArchiveRepo creates a new PostgreSQL archive repository.
func NewArchiveRepo(db *DB) *ArchiveRepo {
	return &ArchiveRepo{db: db}
}

type archiveRow struct {
	ID         string     `db:"id"`
	JobID      string     `db:"job_id"`
	Phase      string     `db:"phase"`
	Category   string     `db:"category"`
	Severity   string     `db:"severity"`
	Message    string     `db:"message"`
	Resolved   bool       `db:"resolved"`
	Attempts   int        `db:"attempts"`
	Record     []byte     `db:"record"`
	CreatedAt  time.Time  `db:"created_at"`
	ResolvedAt *time.Time `db:"resolved_at"`
}

// Save upserts records in one transaction.
func (r *ArchiveRepo) Save(ctx context.Context, records []domain.ErrorRecord) error {
	if len(records) == 0 {
		return nil
	}
	query := `
		INSERT INTO error_records (id, job_id, phase, category, severity, message, resolved, attempts, record, created_at, resolved_at)
		VALUES (:id, :job_id, :phase, :category, :severity, :message, :resolved, :attempts, :record, :created_at, :resolved_at)
		ON CONFLICT (id) DO UPDATE SET
			resolved = EXCLUDED.resolved,
			attempts = EXCLUDED.attempts,
			record = EXCLUDED.record,
			resolved_at = EXCLUDED.resolved_at,
			archived_at = NOW()
	`

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin archive tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record %s: %w", rec.ID, err)
		}
		row := archiveRow{
			ID:         rec.ID,
			JobID:      rec.Context.JobID,
			Phase:      rec.Context.Phase,
			Category:   string(rec.Category),
			Severity:   string(rec.Severity),
			Message:    rec.Message,
			Resolved:   rec.Resolved,
			Attempts:   len(rec.Attempts),
			Record:     data,
			CreatedAt:  rec.CreatedAt,
			ResolvedAt: rec.ResolvedAt,
		}
		if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
			return fmt.Errorf("failed to archive record %s: %w", rec.ID, err)
		}
	}
	return tx.Commit()
}

// Recent returns up to limit records, newest first.
func (r *ArchiveRepo) Recent(ctx context.Context, limit int) ([]domain.ErrorRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows [][]byte
	query := `SELECT record FROM error_records ORDER BY created_at DESC LIMIT $1`
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list archived records: %w", err)
	}

	out := make([]domain.ErrorRecord, 0, len(rows))
	for _, data := range rows {
		var rec domain.ErrorRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Count returns the number of archived records.
func (r *ArchiveRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM error_records`); err != nil {
		return 0, fmt.Errorf("failed to count archived records: %w", err)
	}
	return n, nil
}

// Close closes the pool.
func (r *ArchiveRepo) Close() error {
	return r.db.Close()
}
