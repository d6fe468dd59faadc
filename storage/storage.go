// Package storage persists analysis results so election officials can
// review, confirm, and archive flagged registrations across sessions.
// PostgreSQL is used when a connection URL is configured; otherwise the
// store falls back to an embedded SQLite database.
package storage

import (
	"context"
	"errors"
	"log"
	"time"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("storage: not found")

// Review status values for FlaggedVoter.ReviewStatus.
const (
	ReviewPending   = "pending"
	ReviewConfirmed = "confirmed"
	ReviewDismissed = "dismissed"
	ReviewEscalated = "escalated"
)

// FlagTypeBoth marks a voter flagged by both detectors. Typed listings treat
// such rows as members of either type.
const FlagTypeBoth = "BOTH"

// FlaggedVoter is one persisted flag decision. Details carries the full
// explanation as JSON so the API can serve it without re-running analysis.
type FlaggedVoter struct {
	ID            int64     `json:"id"`
	SessionID     string    `json:"session_id"`
	VoterID       string    `json:"voter_id"`
	Name          string    `json:"name"`
	FlagType      string    `json:"flag_type"`
	Confidence    float64   `json:"confidence"`
	PrimaryReason string    `json:"primary_reason"`
	Details       string    `json:"details"`
	ReviewStatus  string    `json:"review_status"`
	ReviewedBy    string    `json:"reviewed_by,omitempty"`
	Archived      bool      `json:"archived"`
	CreatedAt     time.Time `json:"created_at"`
}

// AuditSession records one completed analysis run.
type AuditSession struct {
	ID              int64     `json:"id"`
	SessionID       string    `json:"session_id"`
	SourceFile      string    `json:"source_file"`
	TotalRecords    int       `json:"total_records"`
	GhostCount      int       `json:"ghost_count"`
	DuplicateCount  int       `json:"duplicate_count"`
	FlaggedRecords  int       `json:"flagged_records"`
	SummaryJSON     string    `json:"summary"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// Store is the persistence interface for flag decisions and run history.
type Store interface {
	// SaveRun replaces the active (non-archived) flagged voters with the
	// findings of a new run and records the session. Archived records
	// survive re-analysis.
	SaveRun(ctx context.Context, session AuditSession, voters []FlaggedVoter) error

	// LatestSession returns the most recent audit session, or ErrNotFound
	// when no analysis has run yet.
	LatestSession(ctx context.Context) (*AuditSession, error)

	// ListSessions returns sessions newest first, at most limit entries
	// (limit <= 0 means all).
	ListSessions(ctx context.Context, limit int) ([]AuditSession, error)

	// ListFlagged returns active flagged voters, optionally filtered by
	// flag type, newest session first then by confidence descending.
	// limit <= 0 returns all matches. The second result is the total
	// match count before limit/offset.
	ListFlagged(ctx context.Context, flagType string, limit, offset int) ([]FlaggedVoter, int, error)

	// GetVoter returns the active flagged record for a voter id.
	GetVoter(ctx context.Context, voterID string) (*FlaggedVoter, error)

	// SetReviewStatus records a human review decision for a voter.
	SetReviewStatus(ctx context.Context, voterID, status, reviewedBy string) error

	// Archive soft-deletes a flagged record. Archived records are kept
	// for the audit trail and excluded from active listings.
	Archive(ctx context.Context, voterID string) error

	// ListArchived returns archived records, newest first.
	ListArchived(ctx context.Context) ([]FlaggedVoter, error)

	// CountByReviewStatus returns active record counts keyed by review
	// status.
	CountByReviewStatus(ctx context.Context) (map[string]int, error)

	// Close releases the underlying database handle.
	Close() error
}

// Open selects the backing store: Postgres when databaseURL is set,
// otherwise SQLite at sqlitePath. A Postgres connection failure falls back
// to SQLite rather than refusing to start.
func Open(ctx context.Context, databaseURL, sqlitePath string) (Store, error) {
	if databaseURL != "" {
		store, err := NewPostgresStore(ctx, databaseURL)
		if err == nil {
			log.Printf("[Storage] using PostgreSQL store")
			return store, nil
		}
		log.Printf("[Storage] PostgreSQL unavailable (%v), falling back to SQLite", err)
	}
	store, err := NewSQLiteStore(ctx, sqlitePath)
	if err != nil {
		return nil, err
	}
	log.Printf("[Storage] using SQLite store at %s", sqlitePath)
	return store, nil
}

func validReviewStatus(status string) bool {
	switch status {
	case ReviewPending, ReviewConfirmed, ReviewDismissed, ReviewEscalated:
		return true
	}
	return false
}
