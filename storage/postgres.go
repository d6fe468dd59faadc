package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store for PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a PostgreSQL store from a connection URL.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := createPostgresTables(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func createPostgresTables(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS flagged_voters (
		id SERIAL PRIMARY KEY,
		session_id VARCHAR(64) NOT NULL,
		voter_id VARCHAR(100) NOT NULL,
		name VARCHAR(500),
		flag_type VARCHAR(30) NOT NULL,
		confidence REAL NOT NULL,
		primary_reason TEXT,
		details TEXT NOT NULL DEFAULT '{}',
		review_status VARCHAR(20) NOT NULL DEFAULT 'pending',
		reviewed_by VARCHAR(200) NOT NULL DEFAULT '',
		archived BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS audit_sessions (
		id SERIAL PRIMARY KEY,
		session_id VARCHAR(64) NOT NULL UNIQUE,
		source_file VARCHAR(500),
		total_records INTEGER NOT NULL,
		ghost_count INTEGER NOT NULL,
		duplicate_count INTEGER NOT NULL,
		flagged_records INTEGER NOT NULL,
		summary TEXT NOT NULL DEFAULT '{}',
		started_at TIMESTAMP WITH TIME ZONE NOT NULL,
		duration_seconds REAL NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_flagged_voters_voter_id ON flagged_voters(voter_id);
	CREATE INDEX IF NOT EXISTS idx_flagged_voters_flag_type ON flagged_voters(flag_type);
	CREATE INDEX IF NOT EXISTS idx_flagged_voters_archived ON flagged_voters(archived);
	CREATE INDEX IF NOT EXISTS idx_flagged_voters_session ON flagged_voters(session_id);
	CREATE INDEX IF NOT EXISTS idx_audit_sessions_started_at ON audit_sessions(started_at);
	`

	_, err := db.ExecContext(ctx, query)
	return err
}

// SaveRun replaces active flagged voters with a fresh run inside one
// transaction.
func (s *PostgresStore) SaveRun(ctx context.Context, session AuditSession, voters []FlaggedVoter) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM flagged_voters WHERE archived = FALSE`); err != nil {
		return fmt.Errorf("failed to clear previous run: %w", err)
	}

	insertVoter := `
	INSERT INTO flagged_voters
		(session_id, voter_id, name, flag_type, confidence, primary_reason, details, review_status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`
	for _, v := range voters {
		status := v.ReviewStatus
		if status == "" {
			status = ReviewPending
		}
		if _, err := tx.ExecContext(ctx, insertVoter,
			session.SessionID, v.VoterID, v.Name, v.FlagType, v.Confidence,
			v.PrimaryReason, v.Details, status); err != nil {
			return fmt.Errorf("failed to insert flagged voter %s: %w", v.VoterID, err)
		}
	}

	insertSession := `
	INSERT INTO audit_sessions
		(session_id, source_file, total_records, ghost_count, duplicate_count, flagged_records, summary, started_at, duration_seconds)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (session_id) DO UPDATE SET
		flagged_records = EXCLUDED.flagged_records,
		summary = EXCLUDED.summary,
		duration_seconds = EXCLUDED.duration_seconds
	`
	if _, err := tx.ExecContext(ctx, insertSession,
		session.SessionID, session.SourceFile, session.TotalRecords,
		session.GhostCount, session.DuplicateCount, session.FlaggedRecords,
		session.SummaryJSON, session.StartedAt, session.DurationSeconds); err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	return tx.Commit()
}

// LatestSession returns the most recent audit session.
func (s *PostgresStore) LatestSession(ctx context.Context) (*AuditSession, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, session_id, source_file, total_records, ghost_count, duplicate_count,
	       flagged_records, summary, started_at, duration_seconds
	FROM audit_sessions ORDER BY started_at DESC LIMIT 1`)
	return scanSession(row)
}

// ListSessions returns sessions newest first.
func (s *PostgresStore) ListSessions(ctx context.Context, limit int) ([]AuditSession, error) {
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
func (s *PostgresStore) ListFlagged(ctx context.Context, flagType string, limit, offset int) ([]FlaggedVoter, int, error) {
	where := `WHERE archived = FALSE`
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
		query += fmt.Sprintf(` OFFSET $%d`, len(args)+1)
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
func (s *PostgresStore) GetVoter(ctx context.Context, voterID string) (*FlaggedVoter, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, session_id, voter_id, name, flag_type, confidence, primary_reason,
	       details, review_status, reviewed_by, archived, created_at
	FROM flagged_voters WHERE voter_id = $1 AND archived = FALSE
	ORDER BY created_at DESC LIMIT 1`, voterID)
	return scanVoter(row)
}

// SetReviewStatus records a human review decision.
func (s *PostgresStore) SetReviewStatus(ctx context.Context, voterID, status, reviewedBy string) error {
	if !validReviewStatus(status) {
		return fmt.Errorf("invalid review status %q", status)
	}
	res, err := s.db.ExecContext(ctx, `
	UPDATE flagged_voters SET review_status = $1, reviewed_by = $2
	WHERE voter_id = $3 AND archived = FALSE`, status, reviewedBy, voterID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Archive soft-deletes a flagged record.
func (s *PostgresStore) Archive(ctx context.Context, voterID string) error {
	res, err := s.db.ExecContext(ctx, `
	UPDATE flagged_voters SET archived = TRUE
	WHERE voter_id = $1 AND archived = FALSE`, voterID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// ListArchived returns archived records, newest first.
func (s *PostgresStore) ListArchived(ctx context.Context) ([]FlaggedVoter, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, session_id, voter_id, name, flag_type, confidence, primary_reason,
	       details, review_status, reviewed_by, archived, created_at
	FROM flagged_voters WHERE archived = TRUE ORDER BY created_at DESC`)
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
func (s *PostgresStore) CountByReviewStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT review_status, COUNT(*) FROM flagged_voters
	WHERE archived = FALSE GROUP BY review_status`)
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
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVoter(row *sql.Row) (*FlaggedVoter, error) {
	v, err := scanVoterRows(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return v, err
}

func scanVoterRows(row rowScanner) (*FlaggedVoter, error) {
	var v FlaggedVoter
	err := row.Scan(&v.ID, &v.SessionID, &v.VoterID, &v.Name, &v.FlagType,
		&v.Confidence, &v.PrimaryReason, &v.Details, &v.ReviewStatus,
		&v.ReviewedBy, &v.Archived, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func scanSession(row *sql.Row) (*AuditSession, error) {
	sess, err := scanSessionRows(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return sess, err
}

func scanSessionRows(row rowScanner) (*AuditSession, error) {
	var sess AuditSession
	err := row.Scan(&sess.ID, &sess.SessionID, &sess.SourceFile, &sess.TotalRecords,
		&sess.GhostCount, &sess.DuplicateCount, &sess.FlaggedRecords,
		&sess.SummaryJSON, &sess.StartedAt, &sess.DurationSeconds)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
