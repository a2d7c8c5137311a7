// Package audit implements the Audit Store: a best-effort Postgres mirror
// of job lifecycle transitions, independent of the Job Registry's
// in-memory table (which remains the source of truth for live status).
// Grounded on database/storage.go and database/schema.go's SQL
// conventions ($1,$2 placeholders, fmt.Errorf("...: %w") wrapping, a
// createXTablesSQL/dropXTablesSQL constant pair), repurposed from
// service/camera storage rows to job/event audit rows, and
// database/table_event.go's append-only event row shape.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	createAuditTablesSQL = `
		CREATE TABLE IF NOT EXISTS job_transitions (
			id BIGSERIAL PRIMARY KEY,
			job_id TEXT NOT NULL,
			status TEXT NOT NULL,
			progress INT NOT NULL,
			message TEXT,
			recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_job_transitions_job_id ON job_transitions(job_id);

		CREATE TABLE IF NOT EXISTS tracking_summaries (
			id BIGSERIAL PRIMARY KEY,
			job_id TEXT NOT NULL,
			frame_count INT NOT NULL,
			last_confidence DOUBLE PRECISION NOT NULL,
			recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`

	dropAuditTablesSQL = `
		DROP TABLE IF EXISTS tracking_summaries CASCADE;
		DROP TABLE IF EXISTS job_transitions CASCADE;
	`
)

// Store is an optional sink for job audit rows. A nil *Store (returned by
// Open when no database URL is configured) makes every method a no-op, so
// callers never need to branch on whether auditing is enabled.
type Store struct {
	db *sql.DB
}

// Open connects to databaseURL and ensures the audit schema exists. An
// empty databaseURL disables auditing entirely: Open returns (nil, nil).
func Open(databaseURL string) (*Store, error) {
	if databaseURL == "" {
		return nil, nil
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	if _, err := db.Exec(createAuditTablesSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// DropSchema drops every audit table. Used by the CLI's maintenance
// commands (cmd/videoredact -drop), mirroring database/schema.go's
// DropSchema.
func (s *Store) DropSchema(ctx context.Context) error {
	if s == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, dropAuditTablesSQL)
	if err != nil {
		return fmt.Errorf("drop audit schema: %w", err)
	}
	return nil
}

// RecordTransition mirrors a job status change. Errors are logged, never
// returned: the audit mirror must never block or fail a job.
func (s *Store) RecordTransition(jobID, status string, progress int, message string) {
	if s == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	const insertSQL = `
		INSERT INTO job_transitions (job_id, status, progress, message)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := s.db.ExecContext(ctx, insertSQL, jobID, status, progress, message); err != nil {
		log.Printf("[Audit] failed to record transition for job %s: %v", jobID, err)
	}
}

// RecordTrackingSummary mirrors the final outcome of a tracking run.
func (s *Store) RecordTrackingSummary(jobID string, frameCount int, lastConfidence float64) {
	if s == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	const insertSQL = `
		INSERT INTO tracking_summaries (job_id, frame_count, last_confidence)
		VALUES ($1, $2, $3)
	`
	if _, err := s.db.ExecContext(ctx, insertSQL, jobID, frameCount, lastConfidence); err != nil {
		log.Printf("[Audit] failed to record tracking summary for job %s: %v", jobID, err)
	}
}
