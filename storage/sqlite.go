package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store for an embedded SQLite database. It is the
// default backend for single-machine deployments and tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed creates) a SQLite store at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		path = "voteguard.db"
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// SQLite works best with a single writer connection
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := createSQLiteTables(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func createSQLiteTables(ctx context.Context, db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS flagged_voters (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			voter_id TEXT NOT NULL,
			name TEXT,
			flag_type TEXT NOT NULL,
			confidence REAL NOT NULL,
			primary_reason TEXT,
			details TEXT NOT NULL DEFAULT '{}',
			review_status TEXT NOT NULL DEFAULT 'pending',
			reviewed_by TEXT NOT NULL DEFAULT '',
			archived INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL UNIQUE,
			source_file TEXT,
			total_records INTEGER NOT NULL,
			ghost_count INTEGER NOT NULL,
			duplicate_count INTEGER NOT NULL,
			flagged_records INTEGER NOT NULL,
			summary TEXT NOT NULL DEFAULT '{}',
			started_at TIMESTAMP NOT NULL,
			duration_seconds REAL NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_flagged_voters_voter_id ON flagged_voters(voter_id)`,
		`CREATE INDEX IF NOT EXISTS idx_flagged_voters_flag_type ON flagged_voters(flag_type)`,
		`CREATE INDEX IF NOT EXISTS idx_flagged_voters_archived ON flagged_voters(archived)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_sessions_started_at ON audit_sessions(started_at)`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute: %s: %w", query, err)
		}
	}
	return nil
}

// SaveRun replaces active flagged voters with a fresh run inside one
// transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, session AuditSession, voters []FlaggedVoter) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM flagged_voters WHERE archived = 0`); err != nil {
		return fmt.Errorf("failed to clear previous run: %w", err)
	}

	insertVoter := `
	INSERT INTO flagged_voters
		(session_id, voter_id, name, flag_type, confidence, primary_reason, details, review_status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	now := time.Now().UTC()
	for _, v := range voters {
		status := v.ReviewStatus
		if status == "" {
			status = ReviewPending
		}
		if _, err := tx.ExecContext(ctx, insertVoter,
			session.SessionID, v.VoterID, v.Name, v.FlagType, v.Confidence,
			v.PrimaryReason, v.Details, status, now); err != nil {
			return fmt.Errorf("failed to insert flagged voter %s: %w", v.VoterID, err)
		}
	}

	insertSession := `
	INSERT INTO audit_sessions
		(session_id, source_file, total_records, ghost_count, duplicate_count, flagged_records, summary, started_at, duration_seconds)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (session_id) DO UPDATE SET
		flagged_records = excluded.flagged_records,
		summary = excluded.summary,
		duration_seconds = excluded.duration_seconds
	`
	if _, err := tx.ExecContext(ctx, insertSession,
		session.SessionID, session.SourceFile, session.TotalRecords,
		session.GhostCount, session.DuplicateCount, session.FlaggedRecords,
		session.SummaryJSON, session.StartedAt.UTC(), session.DurationSeconds); err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	return tx.Commit()
}

// LatestSession returns the most recent audit session.
func (s *SQLiteStore) LatestSession(ctx context.Context) (*AuditSession, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, session_id, source_file, total_records, ghost_count, duplicate_count,
	       flagged_records, summary, started_at, duration_seconds
	FROM audit_sessions ORDER BY started_at DESC LIMIT 1`)
	return scanSession(row)
}

// ListSessions returns sessions newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]AuditSession, error) {
	query := `
	SELECT id, session_id, source_file, total_records, ghost_count, duplicate_count,
	       flagged_records, summary, started_at, duration_seconds
	FROM audit_sessions ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []AuditSession
	for rows.Next() {
		sess, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// ListFlagged returns active flagged voters.
func (s *SQLiteStore) ListFlagged(ctx context.Context, flagType string, limit, offset int) ([]FlaggedVoter, int, error) {
	where := `WHERE archived = 0`
	args := []any{}
	if flagType != "" {
		// Records flagged by both detectors belong to either typed listing.
		where += ` AND flag_type IN ($1, $2)`
		args = append(args, flagType, FlagTypeBoth)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM flagged_voters ` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
	SELECT id, session_id, voter_id, name, flag_type, confidence, primary_reason,
	       details, review_status, reviewed_by, archived, created_at
	FROM flagged_voters ` + where + ` ORDER BY confidence DESC, voter_id`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
		args = append(args, limit, offset)
	} else if offset > 0 {
		query += fmt.Sprintf(` LIMIT -1 OFFSET $%d`, len(args)+1)
		args = append(args, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var voters []FlaggedVoter
	for rows.Next() {
		v, err := scanVoterRows(rows)
		if err != nil {
			return nil, 0, err
		}
		voters = append(voters, *v)
	}
	return voters, total, rows.Err()
}

// GetVoter returns the active flagged record for a voter id.
func (s *SQLiteStore) GetVoter(ctx context.Context, voterID string) (*FlaggedVoter, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, session_id, voter_id, name, flag_type, confidence, primary_reason,
	       details, review_status, reviewed_by, archived, created_at
	FROM flagged_voters WHERE voter_id = $1 AND archived = 0
	ORDER BY created_at DESC LIMIT 1`, voterID)
	return scanVoter(row)
}

// SetReviewStatus records a human review decision.
func (s *SQLiteStore) SetReviewStatus(ctx context.Context, voterID, status, reviewedBy string) error {
	if !validReviewStatus(status) {
		return fmt.Errorf("invalid review status %q", status)
	}
	res, err := s.db.ExecContext(ctx, `
	UPDATE flagged_voters SET review_status = $1, reviewed_by = $2
	WHERE voter_id = $3 AND archived = 0`, status, reviewedBy, voterID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Archive soft-deletes a flagged record.
func (s *SQLiteStore) Archive(ctx context.Context, voterID string) error {
	res, err := s.db.ExecContext(ctx, `
	UPDATE flagged_voters SET archived = 1
	WHERE voter_id = $1 AND archived = 0`, voterID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// ListArchived returns archived records, newest first.
func (s *SQLiteStore) ListArchived(ctx context.Context) ([]FlaggedVoter, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, session_id, voter_id, name, flag_type, confidence, primary_reason,
	       details, review_status, reviewed_by, archived, created_at
	FROM flagged_voters WHERE archived = 1 ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var voters []FlaggedVoter
	for rows.Next() {
		v, err := scanVoterRows(rows)
		if err != nil {
			return nil, err
		}
		voters = append(voters, *v)
	}
	return voters, rows.Err()
}

// CountByReviewStatus returns active record counts per review status.
func (s *SQLiteStore) CountByReviewStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT review_status, COUNT(*) FROM flagged_voters
	WHERE archived = 0 GROUP BY review_status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
