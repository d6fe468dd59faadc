package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testSession(id string, flagged int) AuditSession {
	return AuditSession{
		SessionID:       id,
		SourceFile:      "roll.csv",
		TotalRecords:    1000,
		GhostCount:      flagged,
		DuplicateCount:  0,
		FlaggedRecords:  flagged,
		SummaryJSON:     `{"total_flagged_records":` + "1" + `}`,
		StartedAt:       time.Now().UTC(),
		DurationSeconds: 1.5,
	}
}

func testVoter(id string, confidence float64) FlaggedVoter {
	return FlaggedVoter{
		VoterID:       id,
		Name:          "Asha Kumar",
		FlagType:      "GHOST_VOTER",
		Confidence:    confidence,
		PrimaryReason: "Age is 120 years (>= 110)",
		Details:       `[{"voter_id":"` + id + `"}]`,
	}
}

func TestSaveRun_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	voters := []FlaggedVoter{testVoter("V1", 1.0), testVoter("V2", 0.6)}
	if err := store.SaveRun(ctx, testSession("sess1", 2), voters); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	session, err := store.LatestSession(ctx)
	if err != nil {
		t.Fatalf("LatestSession failed: %v", err)
	}
	if session.SessionID != "sess1" || session.TotalRecords != 1000 {
		t.Errorf("Unexpected session: %+v", session)
	}

	listed, total, err := store.ListFlagged(ctx, "", 0, 0)
	if err != nil {
		t.Fatalf("ListFlagged failed: %v", err)
	}
	if total != 2 || len(listed) != 2 {
		t.Fatalf("Expected 2 flagged voters, got total=%d len=%d", total, len(listed))
	}
	// Ordered by confidence descending.
	if listed[0].VoterID != "V1" {
		t.Errorf("Expected V1 first, got %s", listed[0].VoterID)
	}
	if listed[0].ReviewStatus != ReviewPending {
		t.Errorf("Expected pending review status, got %s", listed[0].ReviewStatus)
	}

	voter, err := store.GetVoter(ctx, "V2")
	if err != nil {
		t.Fatalf("GetVoter failed: %v", err)
	}
	if voter.Confidence != 0.6 || voter.Name != "Asha Kumar" {
		t.Errorf("Unexpected voter: %+v", voter)
	}
}

func TestSaveRun_ReplacesActiveKeepsArchived(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := []FlaggedVoter{testVoter("OLD1", 0.9), testVoter("OLD2", 0.5)}
	if err := store.SaveRun(ctx, testSession("sess1", 2), first); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if err := store.Archive(ctx, "OLD1"); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}

	second := []FlaggedVoter{testVoter("NEW1", 0.7)}
	if err := store.SaveRun(ctx, testSession("sess2", 1), second); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	_, total, err := store.ListFlagged(ctx, "", 0, 0)
	if err != nil {
		t.Fatalf("ListFlagged failed: %v", err)
	}
	if total != 1 {
		t.Errorf("Expected only the new run's voter active, got %d", total)
	}
	if _, err := store.GetVoter(ctx, "OLD2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected OLD2 cleared by new run, got %v", err)
	}

	archived, err := store.ListArchived(ctx)
	if err != nil {
		t.Fatalf("ListArchived failed: %v", err)
	}
	if len(archived) != 1 || archived[0].VoterID != "OLD1" {
		t.Errorf("Expected archived OLD1 to survive re-analysis, got %+v", archived)
	}

	sessions, err := store.ListSessions(ctx, 0)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Errorf("Expected 2 sessions in history, got %d", len(sessions))
	}
}

func TestSetReviewStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveRun(ctx, testSession("sess1", 1), []FlaggedVoter{testVoter("V1", 0.8)}); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	if err := store.SetReviewStatus(ctx, "V1", ReviewConfirmed, "inspector"); err != nil {
		t.Fatalf("SetReviewStatus failed: %v", err)
	}

	voter, err := store.GetVoter(ctx, "V1")
	if err != nil {
		t.Fatalf("GetVoter failed: %v", err)
	}
	if voter.ReviewStatus != ReviewConfirmed || voter.ReviewedBy != "inspector" {
		t.Errorf("Unexpected review state: %+v", voter)
	}

	counts, err := store.CountByReviewStatus(ctx)
	if err != nil {
		t.Fatalf("CountByReviewStatus failed: %v", err)
	}
	if counts[ReviewConfirmed] != 1 {
		t.Errorf("Expected 1 confirmed, got %v", counts)
	}

	if err := store.SetReviewStatus(ctx, "V1", "bogus", ""); err == nil {
		t.Error("Expected error for invalid status")
	}
	if err := store.SetReviewStatus(ctx, "MISSING", ReviewDismissed, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestListFlagged_FilterAndPaging(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	voters := []FlaggedVoter{
		testVoter("V1", 0.9),
		testVoter("V2", 0.8),
		{VoterID: "V3", FlagType: "DUPLICATE_VOTER", Confidence: 0.7, Details: "[]"},
	}
	if err := store.SaveRun(ctx, testSession("sess1", 3), voters); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	ghosts, total, err := store.ListFlagged(ctx, "GHOST_VOTER", 0, 0)
	if err != nil {
		t.Fatalf("ListFlagged failed: %v", err)
	}
	if total != 2 || len(ghosts) != 2 {
		t.Errorf("Expected 2 ghosts, got total=%d len=%d", total, len(ghosts))
	}

	page, total, err := store.ListFlagged(ctx, "", 2, 1)
	if err != nil {
		t.Fatalf("ListFlagged failed: %v", err)
	}
	if total != 3 {
		t.Errorf("Expected total 3 regardless of paging, got %d", total)
	}
	if len(page) != 2 || page[0].VoterID != "V2" {
		t.Errorf("Expected page starting at V2, got %+v", page)
	}
}

func TestListFlagged_BothAppearsInTypedListings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	voters := []FlaggedVoter{
		testVoter("V1", 0.9),
		{VoterID: "V2", FlagType: FlagTypeBoth, Confidence: 0.95, Details: "[]"},
		{VoterID: "V3", FlagType: "DUPLICATE_VOTER", Confidence: 0.7, Details: "[]"},
	}
	if err := store.SaveRun(ctx, testSession("sess1", 3), voters); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	ghosts, total, err := store.ListFlagged(ctx, "GHOST_VOTER", 0, 0)
	if err != nil {
		t.Fatalf("ListFlagged failed: %v", err)
	}
	if total != 2 || len(ghosts) != 2 {
		t.Fatalf("Expected BOTH row in ghost listing, got total=%d len=%d", total, len(ghosts))
	}
	if ghosts[0].VoterID != "V2" {
		t.Errorf("Expected V2 first by confidence, got %s", ghosts[0].VoterID)
	}

	dups, total, err := store.ListFlagged(ctx, "DUPLICATE_VOTER", 0, 0)
	if err != nil {
		t.Fatalf("ListFlagged failed: %v", err)
	}
	if total != 2 || len(dups) != 2 {
		t.Fatalf("Expected BOTH row in duplicate listing, got total=%d len=%d", total, len(dups))
	}

	both, total, err := store.ListFlagged(ctx, FlagTypeBoth, 0, 0)
	if err != nil {
		t.Fatalf("ListFlagged failed: %v", err)
	}
	if total != 1 || len(both) != 1 || both[0].VoterID != "V2" {
		t.Errorf("Expected only V2 under the BOTH filter, got total=%d %+v", total, both)
	}
}

func TestLatestSession_Empty(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.LatestSession(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on empty store, got %v", err)
	}
}
