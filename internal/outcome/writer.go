// Package outcome persists one append-only record per completed
// candidate. The core only ever writes during a live session; the Reader
// exists for offline inspection.
package outcome

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"sqlbeam/internal/domain"
)

// Compile-time check.
var _ domain.OutcomeWriter = (*Log)(nil)

// Log is a SQLite-backed outcome journal.
type Log struct {
	db *sql.DB
}

// Open opens (creating if necessary) the outcome log at path and applies
// pending migrations. Use ":memory:" for an ephemeral log.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open outcome log: %w", err)
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Log{db: db}, nil
}

// Close releases the underlying database handle.
func (l *Log) Close() error { return l.db.Close() }

// Append writes one completed-candidate record. Records are never updated
// or deleted.
func (l *Log) Append(ctx context.Context, rec domain.OutcomeRecord) error {
	recordedAt := rec.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	var originalMS, candidateMS, speedup *float64
	var classification *string
	var rowsMatch, checksumMatch *bool
	if r := rec.Result; r != nil {
		originalMS, candidateMS, speedup = &r.OriginalMS, &r.CandidateMS, &r.Speedup
		cls := string(r.Classification)
		classification = &cls
		rowsMatch, checksumMatch = &r.RowsMatch, &r.ChecksumMatch
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO outcomes (
			query_id, sortie_index, candidate_id, produced_by, strategy,
			validation_state, original_ms, candidate_ms, speedup,
			classification, rows_match, checksum_match, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.QueryID, rec.SortieIndex, rec.CandidateID, rec.ProducedBy,
		string(rec.Strategy), string(rec.ValidationState),
		originalMS, candidateMS, speedup, classification,
		rowsMatch, checksumMatch, recordedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append outcome: %w", err)
	}
	return nil
}

// Tail returns the most recent n records, newest first. It is not used
// during a live session.
func (l *Log) Tail(ctx context.Context, n int) ([]domain.OutcomeRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT query_id, sortie_index, candidate_id, produced_by, strategy,
		       validation_state, original_ms, candidate_ms, speedup,
		       classification, rows_match, checksum_match, recorded_at
		FROM outcomes ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("read outcomes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.OutcomeRecord
	for rows.Next() {
		var rec domain.OutcomeRecord
		var strategy, state, recordedAt string
		var originalMS, candidateMS, speedup sql.NullFloat64
		var classification sql.NullString
		var rowsMatch, checksumMatch sql.NullBool
		if err := rows.Scan(&rec.QueryID, &rec.SortieIndex, &rec.CandidateID,
			&rec.ProducedBy, &strategy, &state,
			&originalMS, &candidateMS, &speedup,
			&classification, &rowsMatch, &checksumMatch, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		rec.Strategy = domain.Strategy(strategy)
		rec.ValidationState = domain.ValidationState(state)
		if classification.Valid {
			rec.Result = &domain.BenchmarkResult{
				OriginalMS:     originalMS.Float64,
				CandidateMS:    candidateMS.Float64,
				Speedup:        speedup.Float64,
				Classification: domain.Classification(classification.String),
				RowsMatch:      rowsMatch.Bool,
				ChecksumMatch:  checksumMatch.Bool,
			}
		}
		if t, err := time.Parse(time.RFC3339Nano, recordedAt); err == nil {
			rec.RecordedAt = t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
