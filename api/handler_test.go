package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/voteguard/voteguard/config"
	"github.com/voteguard/voteguard/storage"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.UploadsDir = filepath.Join(dir, "uploads")
	cfg.AuditLogPath = filepath.Join(dir, "audit.jsonl")
	cfg.Database.SQLitePath = filepath.Join(dir, "test.db")
	cfg.AdminUser = "admin"
	cfg.AdminPassword = "secret"
	cfg.AnalyzeRPS = 100
	cfg.AnalyzeBurst = 100

	store, err := storage.NewSQLiteStore(context.Background(), cfg.Database.SQLitePath)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return NewHandler(cfg, store)
}

func login(t *testing.T, h *Handler) string {
	t.Helper()
	body := `{"username":"admin","password":"secret"}`
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Login failed with status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode login response: %v", err)
	}
	return resp.Token
}

func uploadCSV(t *testing.T, h *Handler, token, content string) string {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "roll.csv")
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatalf("Failed to write form file: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Upload failed with status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Filename string `json:"filename"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode upload response: %v", err)
	}
	return resp.Filename
}

func analyze(t *testing.T, h *Handler, token, filename string) *httptest.ResponseRecorder {
	t.Helper()
	body := fmt.Sprintf(`{"filename":%q}`, filename)
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const sampleCSV = `voter_id,first_name,last_name,dob,gender,address,pincode,registration_year,last_voted_year
V001,Asha,Kumar,1985-03-10,F,"12 MG Road, Pune",411001,2004,2024
V002,Ravi,Patel,1972-07-21,M,"8 Station Road, Nagpur",440001,1991,2019
V003,Moti,Lal,1900-01-01,M,"7 Old Lane, Nagpur",440001,1955,
V004,Rajesh,Kumar,1985-03-10,M,"14 MG Road, Pune",411001,2006,2024
V005,Rajesh,Kumaar,1985-03-10,M,"16 MG Road, Pune",411001,2008,2019
V006,Sunita,Shah,1990-11-02,F,"3 Lake View, Thane",400601,2009,2014
`

func TestHealth(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("Unexpected body: %s", rec.Body.String())
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	h := newTestHandler(t)
	body := `{"username":"admin","password":"wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}
}

func TestUpload_RequiresAuth(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", rec.Code)
	}
}

func TestUpload_RejectsNonCSV(t *testing.T) {
	h := newTestHandler(t)
	token := login(t, h)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "roll.xlsx")
	fw.Write([]byte("binary"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for non-CSV upload, got %d", rec.Code)
	}
}

func TestAnalyze_EndToEnd(t *testing.T) {
	h := newTestHandler(t)
	token := login(t, h)
	filename := uploadCSV(t, h, token, sampleCSV)

	rec := analyze(t, h, token, filename)
	if rec.Code != http.StatusOK {
		t.Fatalf("Analyze failed with status %d: %s", rec.Code, rec.Body.String())
	}

	var result struct {
		TotalRecords           int    `json:"total_records"`
		GhostVotersFlagged     int    `json:"ghost_voters_flagged"`
		DuplicateVotersFlagged int    `json:"duplicate_voters_flagged"`
		SessionID              string `json:"session_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to decode result: %v", err)
	}
	if result.TotalRecords != 6 {
		t.Errorf("Expected 6 records, got %d", result.TotalRecords)
	}
	if result.GhostVotersFlagged != 1 {
		t.Errorf("Expected 1 ghost, got %d", result.GhostVotersFlagged)
	}
	if result.DuplicateVotersFlagged != 2 {
		t.Errorf("Expected 2 duplicate registrations, got %d", result.DuplicateVotersFlagged)
	}

	// Findings are persisted and queryable.
	req := httptest.NewRequest(http.MethodGet, "/api/flagged", nil)
	frec := httptest.NewRecorder()
	h.ServeHTTP(frec, req)
	if frec.Code != http.StatusOK {
		t.Fatalf("Flagged listing failed: %d", frec.Code)
	}
	var flagged struct {
		Total int `json:"total"`
		Rows  []struct {
			VoterID  string `json:"voter_id"`
			FlagType string `json:"flag_type"`
		} `json:"flagged"`
	}
	if err := json.Unmarshal(frec.Body.Bytes(), &flagged); err != nil {
		t.Fatalf("Failed to decode flagged list: %v", err)
	}
	if flagged.Total != 3 {
		t.Errorf("Expected 3 persisted flags, got %d", flagged.Total)
	}

	// Per-record explanation lookup.
	req = httptest.NewRequest(http.MethodGet, "/api/record/V003", nil)
	rrec := httptest.NewRecorder()
	h.ServeHTTP(rrec, req)
	if rrec.Code != http.StatusOK {
		t.Errorf("Expected 200 for flagged record, got %d", rrec.Code)
	}

	// Review decision.
	body := `{"status":"confirmed","reviewed_by":"inspector"}`
	req = httptest.NewRequest(http.MethodPost, "/api/review/V003", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rvrec := httptest.NewRecorder()
	h.ServeHTTP(rvrec, req)
	if rvrec.Code != http.StatusOK {
		t.Errorf("Review failed with %d: %s", rvrec.Code, rvrec.Body.String())
	}

	// Archive and verify it disappears from the active list.
	req = httptest.NewRequest(http.MethodPost, "/api/archive/V003", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	arec := httptest.NewRecorder()
	h.ServeHTTP(arec, req)
	if arec.Code != http.StatusOK {
		t.Errorf("Archive failed with %d", arec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/record/V003", nil)
	grec := httptest.NewRecorder()
	h.ServeHTTP(grec, req)
	if grec.Code != http.StatusNotFound {
		t.Errorf("Expected archived record to be gone from active view, got %d", grec.Code)
	}

	// History and stats reflect the run.
	req = httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	srec := httptest.NewRecorder()
	h.ServeHTTP(srec, req)
	if srec.Code != http.StatusOK || !strings.Contains(srec.Body.String(), `"analyzed":true`) {
		t.Errorf("Unexpected stats response: %d %s", srec.Code, srec.Body.String())
	}

	// CSV export carries the header plus remaining active records.
	req = httptest.NewRequest(http.MethodGet, "/api/export/csv", nil)
	erec := httptest.NewRecorder()
	h.ServeHTTP(erec, req)
	if erec.Code != http.StatusOK {
		t.Fatalf("Export failed: %d", erec.Code)
	}
	lines := strings.Split(strings.TrimSpace(erec.Body.String()), "\n")
	if len(lines) != 3 {
		t.Errorf("Expected header + 2 rows, got %d lines", len(lines))
	}

	// Audit trail captured the run.
	req = httptest.NewRequest(http.MethodGet, "/api/audit-log", nil)
	alrec := httptest.NewRecorder()
	h.ServeHTTP(alrec, req)
	if alrec.Code != http.StatusOK || !strings.Contains(alrec.Body.String(), "ANALYSIS_START") {
		t.Errorf("Expected audit trail events, got %d %s", alrec.Code, alrec.Body.String())
	}
}

func TestAnalyze_BlockedDataset(t *testing.T) {
	h := newTestHandler(t)
	token := login(t, h)

	biased := `voter_id,first_name,last_name,dob,gender,address,pincode,registration_year,caste
V001,Asha,Kumar,1985-03-10,F,"12 MG Road, Pune",411001,2004,x
`
	filename := uploadCSV(t, h, token, biased)

	rec := analyze(t, h, token, filename)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422 for blocked dataset, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Bias Prevention") {
		t.Errorf("Expected failing check in response: %s", rec.Body.String())
	}
}

func TestAnalyze_MissingFile(t *testing.T) {
	h := newTestHandler(t)
	token := login(t, h)

	rec := analyze(t, h, token, "nope.csv")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown upload, got %d", rec.Code)
	}
}

func TestAnalyze_RateLimited(t *testing.T) {
	h := newTestHandler(t)
	h.cfg.AnalyzeRPS = 1
	h.limiter.SetLimit(1)
	h.limiter.SetBurst(1)

	token := login(t, h)
	filename := uploadCSV(t, h, token, sampleCSV)

	first := analyze(t, h, token, filename)
	if first.Code != http.StatusOK {
		t.Fatalf("Expected first analyze to pass, got %d", first.Code)
	}
	second := analyze(t, h, token, filename)
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 on burst exhaustion, got %d", second.Code)
	}
}
