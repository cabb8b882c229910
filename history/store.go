package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a history entry.
type Kind string

const (
	KindPulse     Kind = "pulse"
	KindNutrition Kind = "nutrition"
)

// Entry is one recorded scan.
type Entry struct {
	ID            int64
	CorrelationID string
	Kind          Kind
	// BPM is set for pulse entries only.
	BPM int
	// Payload holds the nutrition summary for nutrition entries, empty for
	// pulse entries.
	Payload    string
	CapturedAt time.Time
	CreatedAt  time.Time
}

// timeFormat is how timestamps are stored. Lexicographic order matches
// chronological order, which the created_at index relies on.
const timeFormat = time.RFC3339Nano

// Store writes and reads the capped scan history. Appends prune in the same
// transaction, so the cap holds even if the process dies right after.
type Store struct {
	db    *sql.DB
	limit int
}

// NewStore creates a Store over an already-migrated database. limit is the
// maximum number of retained entries; older entries are discarded first.
func NewStore(db *sql.DB, limit int) *Store {
	if limit <= 0 {
		limit = 50
	}
	return &Store{db: db, limit: limit}
}

// AppendPulse records a completed heart-rate measurement.
func (s *Store) AppendPulse(ctx context.Context, bpm int, capturedAt time.Time) error {
	return s.append(ctx, Entry{
		Kind:       KindPulse,
		BPM:        bpm,
		CapturedAt: capturedAt,
	})
}

// AppendNutrition records a completed food scan. summary is the rendered
// analysis text shown in the history list.
func (s *Store) AppendNutrition(ctx context.Context, summary string, capturedAt time.Time) error {
	return s.append(ctx, Entry{
		Kind:       KindNutrition,
		Payload:    summary,
		CapturedAt: capturedAt,
	})
}

func (s *Store) append(ctx context.Context, entry Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history append: %w", err)
	}
	defer tx.Rollback()

	var bpm sql.NullInt64
	if entry.Kind == KindPulse {
		bpm = sql.NullInt64{Int64: int64(entry.BPM), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scan_history (correlation_id, kind, bpm, payload, captured_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		string(entry.Kind),
		bpm,
		entry.Payload,
		entry.CapturedAt.UTC().Format(timeFormat),
		time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM scan_history
		WHERE id NOT IN (
			SELECT id FROM scan_history
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)`, s.limit)
	if err != nil {
		return fmt.Errorf("prune history: %w", err)
	}

	return tx.Commit()
}

// Recent returns up to n entries, newest first. n values beyond the retention
// cap are clamped to it.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 || n > s.limit {
		n = s.limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, correlation_id, kind, bpm, payload, captured_at, created_at
		FROM scan_history
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry      Entry
			kind       string
			bpm        sql.NullInt64
			capturedAt string
			createdAt  string
		)
		if err := rows.Scan(&entry.ID, &entry.CorrelationID, &kind, &bpm, &entry.Payload, &capturedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entry.Kind = Kind(kind)
		if bpm.Valid {
			entry.BPM = int(bpm.Int64)
		}
		if entry.CapturedAt, err = time.Parse(timeFormat, capturedAt); err != nil {
			return nil, fmt.Errorf("parse captured_at: %w", err)
		}
		if entry.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// Count returns the number of retained entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scan_history`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return count, nil
}
