// Package api exposes the audit service over HTTP: dataset upload,
// analysis, review workflow, and exports for election officials.
package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/voteguard/voteguard/audit"
	"github.com/voteguard/voteguard/audit/guard"
	"github.com/voteguard/voteguard/config"
	"github.com/voteguard/voteguard/storage"
)

// Handler serves the audit HTTP API.
type Handler struct {
	cfg     *config.Config
	store   storage.Store
	limiter *rate.Limiter
	mux     *http.ServeMux

	mu     sync.Mutex
	tokens map[string]time.Time
}

// NewHandler creates the API handler. Analysis requests are rate limited to
// keep a single upload from monopolizing the service.
func NewHandler(cfg *config.Config, store storage.Store) *Handler {
	h := &Handler{
		cfg:     cfg,
		store:   store,
		limiter: rate.NewLimiter(rate.Limit(cfg.AnalyzeRPS), cfg.AnalyzeBurst),
		tokens:  make(map[string]time.Time),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", h.handleHealth)
	mux.HandleFunc("/api/login", h.handleLogin)
	mux.HandleFunc("/api/upload", h.handleUpload)
	mux.HandleFunc("/api/analyze", h.handleAnalyze)
	mux.HandleFunc("/api/stats", h.handleStats)
	mux.HandleFunc("/api/flagged", h.handleFlagged)
	mux.HandleFunc("/api/record/", h.handleRecord)
	mux.HandleFunc("/api/review/", h.handleReview)
	mux.HandleFunc("/api/archive/", h.handleArchive)
	mux.HandleFunc("/api/archived", h.handleArchived)
	mux.HandleFunc("/api/history", h.handleHistory)
	mux.HandleFunc("/api/audit-log", h.handleAuditLog)
	mux.HandleFunc("/api/export/csv", h.handleExportCSV)
	h.mux = mux

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Close releases resources held by the handler.
func (h *Handler) Close() error {
	return nil
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "VoteGuard Audit Service",
	})
}

// handleLogin exchanges admin credentials for a bearer token. There is one
// operator role; per-user accounts are handled upstream.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if creds.Username != h.cfg.AdminUser || creds.Password != h.cfg.AdminPassword {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token := "vg_session_" + uuid.NewString()
	h.mu.Lock()
	h.tokens[token] = time.Now().Add(12 * time.Hour)
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"token":    token,
		"username": creds.Username,
	})
}

// authorized checks the bearer token issued by handleLogin.
func (h *Handler) authorized(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" || token == header {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	expiry, ok := h.tokens[token]
	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		delete(h.tokens, token)
		return false
	}
	return true
}

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) bool {
	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return false
	}
	return true
}

// handleUpload accepts a CSV voter roll and stores it under a unique name.
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !h.requireAuth(w, r) {
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		writeError(w, http.StatusBadRequest, "only .csv files are accepted")
		return
	}

	if err := os.MkdirAll(h.cfg.UploadsDir, 0750); err != nil {
		h.internalError(w, fmt.Errorf("creating uploads dir: %w", err))
		return
	}

	name := fmt.Sprintf("%s_%s", uuid.NewString(), filepath.Base(header.Filename))
	dest := filepath.Join(h.cfg.UploadsDir, name)

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0640)
	if err != nil {
		h.internalError(w, fmt.Errorf("creating upload file: %w", err))
		return
	}
	defer out.Close()

	written, err := out.ReadFrom(file)
	if err != nil {
		os.Remove(dest)
		h.internalError(w, fmt.Errorf("writing upload: %w", err))
		return
	}

	log.Printf("[API] stored upload %s (%d bytes)", name, written)
	writeJSON(w, http.StatusOK, map[string]any{
		"filename": name,
		"size":     written,
	})
}

// analyzeRequest is the body of POST /api/analyze. Detection overrides are
// optional; unset fields keep the configured defaults.
type analyzeRequest struct {
	Filename                string `json:"filename"`
	EnableStatistical       *bool  `json:"enable_statistical,omitempty"`
	PhoneticMatch           *bool  `json:"phonetic_match,omitempty"`
	NameSimilarityThreshold *int   `json:"name_similarity_threshold,omitempty"`
}

// handleAnalyze runs the full audit pipeline on a previously uploaded roll
// and persists the findings.
func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !h.requireAuth(w, r) {
		return
	}
	if !h.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "analysis rate limit exceeded, retry shortly")
		return
	}

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Filename == "" {
		writeError(w, http.StatusBadRequest, "filename is required")
		return
	}

	// filepath.Base strips any directory components an attacker supplies.
	path := filepath.Join(h.cfg.UploadsDir, filepath.Base(req.Filename))
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "uploaded file not found")
		return
	}

	pipelineCfg := audit.PipelineConfig{
		GhostContamination:      h.cfg.Detection.GhostContamination,
		NameSimilarityThreshold: h.cfg.Detection.NameSimilarityThreshold,
		GhostAgeThreshold:       h.cfg.Detection.GhostAgeThreshold,
		Seed:                    h.cfg.Detection.Seed,
		EnableStatistical:       h.cfg.Detection.EnableStatistical,
		PhoneticMatch:           h.cfg.Detection.PhoneticMatch,
	}
	if req.EnableStatistical != nil {
		pipelineCfg.EnableStatistical = *req.EnableStatistical
	}
	if req.PhoneticMatch != nil {
		pipelineCfg.PhoneticMatch = *req.PhoneticMatch
	}
	if req.NameSimilarityThreshold != nil {
		pipelineCfg.NameSimilarityThreshold = *req.NameSimilarityThreshold
	}

	sink, err := guard.NewFileSink(h.cfg.AuditLogPath)
	if err != nil {
		h.internalError(w, fmt.Errorf("opening audit log: %w", err))
		return
	}

	start := time.Now()
	pipeline := audit.NewPipeline(pipelineCfg, sink)
	result, err := pipeline.RunFile(path)
	if err != nil {
		var secErr *audit.SecurityError
		if errors.As(err, &secErr) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":  "dataset failed security validation",
				"checks": secErr.Checks,
			})
			return
		}
		h.internalError(w, fmt.Errorf("analysis failed: %w", err))
		return
	}

	if err := h.persistResult(r.Context(), req.Filename, result, time.Since(start)); err != nil {
		h.internalError(w, fmt.Errorf("persisting results: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// persistResult maps the pipeline output to storage rows. A record flagged
// by both detectors is stored once with flag type BOTH, the higher
// confidence, and both explanations in its details.
func (h *Handler) persistResult(ctx context.Context, sourceFile string, result *audit.PipelineResult, elapsed time.Duration) error {
	type entry struct {
		voter        storage.FlaggedVoter
		explanations []audit.FlagExplanation
	}

	byID := make(map[string]*entry)
	order := make([]string, 0, len(result.GhostExplanations)+len(result.DuplicateExplanations))

	add := func(ex audit.FlagExplanation) {
		e, ok := byID[ex.VoterID]
		if !ok {
			e = &entry{voter: storage.FlaggedVoter{
				SessionID:     result.SessionID,
				VoterID:       ex.VoterID,
				Name:          ex.VoterDetails.Name,
				FlagType:      string(ex.FlagType),
				Confidence:    ex.Confidence,
				PrimaryReason: ex.PrimaryReason,
				ReviewStatus:  storage.ReviewPending,
			}}
			byID[ex.VoterID] = e
			order = append(order, ex.VoterID)
		} else {
			e.voter.FlagType = string(audit.FlagBoth)
			if ex.Confidence > e.voter.Confidence {
				e.voter.Confidence = ex.Confidence
				e.voter.PrimaryReason = ex.PrimaryReason
			}
		}
		e.explanations = append(e.explanations, ex)
	}
	for _, ex := range result.GhostExplanations {
		add(ex)
	}
	for _, ex := range result.DuplicateExplanations {
		add(ex)
	}

	voters := make([]storage.FlaggedVoter, 0, len(order))
	for _, id := range order {
		e := byID[id]
		details, err := json.Marshal(e.explanations)
		if err != nil {
			return fmt.Errorf("encoding details for %s: %w", id, err)
		}
		e.voter.Details = string(details)
		voters = append(voters, e.voter)
	}

	summaryJSON, err := json.Marshal(result.SummaryReport)
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}

	session := storage.AuditSession{
		SessionID:       result.SessionID,
		SourceFile:      sourceFile,
		TotalRecords:    result.TotalRecords,
		GhostCount:      result.GhostVotersFlagged,
		DuplicateCount:  result.DuplicateVotersFlagged,
		FlaggedRecords:  result.SummaryReport.TotalFlaggedRecords,
		SummaryJSON:     string(summaryJSON),
		StartedAt:       result.Timestamp,
		DurationSeconds: elapsed.Seconds(),
	}
	return h.store.SaveRun(ctx, session, voters)
}

// handleStats aggregates the latest run for the dashboard.
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx := r.Context()
	session, err := h.store.LatestSession(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusOK, map[string]any{"analyzed": false})
			return
		}
		h.internalError(w, err)
		return
	}

	voters, total, err := h.store.ListFlagged(ctx, "", 0, 0)
	if err != nil {
		h.internalError(w, err)
		return
	}
	reviewCounts, err := h.store.CountByReviewStatus(ctx)
	if err != nil {
		h.internalError(w, err)
		return
	}

	byType := make(map[string]int)
	regions := make(map[string]int)
	for _, v := range voters {
		// A BOTH record counts toward the ghost and duplicate totals.
		if v.FlagType == string(audit.FlagBoth) {
			byType[string(audit.FlagGhost)]++
			byType[string(audit.FlagDuplicate)]++
		} else {
			byType[v.FlagType]++
		}
		if region := regionOf(v.Details); region != "" {
			regions[region]++
		}
	}

	var summary json.RawMessage
	if session.SummaryJSON != "" {
		summary = json.RawMessage(session.SummaryJSON)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"analyzed":        true,
		"session":         session,
		"flagged_total":   total,
		"flagged_by_type": byType,
		"review_status":   reviewCounts,
		"regions":         regions,
		"summary":         summary,
	})
}

// regionOf extracts a coarse region from the stored explanation details:
// the last comma-separated segment of the voter's address.
func regionOf(details string) string {
	var explanations []audit.FlagExplanation
	if err := json.Unmarshal([]byte(details), &explanations); err != nil || len(explanations) == 0 {
		return ""
	}
	address := explanations[0].VoterDetails.Address
	parts := strings.Split(address, ",")
	region := strings.TrimSpace(parts[len(parts)-1])
	return region
}

func (h *Handler) handleFlagged(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	flagType := q.Get("type")
	limit := intQuery(q.Get("limit"), 50)
	offset := intQuery(q.Get("offset"), 0)

	voters, total, err := h.store.ListFlagged(r.Context(), flagType, limit, offset)
	if err != nil {
		h.internalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":   total,
		"limit":   limit,
		"offset":  offset,
		"flagged": voters,
	})
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	voterID := strings.TrimPrefix(r.URL.Path, "/api/record/")
	if voterID == "" {
		writeError(w, http.StatusBadRequest, "voter id is required")
		return
	}

	voter, err := h.store.GetVoter(r.Context(), voterID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "voter not found")
			return
		}
		h.internalError(w, err)
		return
	}

	var explanations json.RawMessage
	if voter.Details != "" {
		explanations = json.RawMessage(voter.Details)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"voter":        voter,
		"explanations": explanations,
	})
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !h.requireAuth(w, r) {
		return
	}

	voterID := strings.TrimPrefix(r.URL.Path, "/api/review/")
	if voterID == "" {
		writeError(w, http.StatusBadRequest, "voter id is required")
		return
	}

	var req struct {
		Status     string `json:"status"`
		ReviewedBy string `json:"reviewed_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.store.SetReviewStatus(r.Context(), voterID, req.Status, req.ReviewedBy); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "voter not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.appendAuditEvent("REVIEW_DECISION", map[string]any{
		"voter_id":    voterID,
		"status":      req.Status,
		"reviewed_by": req.ReviewedBy,
	})
	writeJSON(w, http.StatusOK, map[string]any{"voter_id": voterID, "status": req.Status})
}

func (h *Handler) handleArchive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !h.requireAuth(w, r) {
		return
	}

	voterID := strings.TrimPrefix(r.URL.Path, "/api/archive/")
	if voterID == "" {
		writeError(w, http.StatusBadRequest, "voter id is required")
		return
	}

	if err := h.store.Archive(r.Context(), voterID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "voter not found")
			return
		}
		h.internalError(w, err)
		return
	}

	h.appendAuditEvent("RECORD_ARCHIVED", map[string]any{"voter_id": voterID})
	writeJSON(w, http.StatusOK, map[string]any{"voter_id": voterID, "archived": true})
}

func (h *Handler) handleArchived(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	voters, err := h.store.ListArchived(r.Context())
	if err != nil {
		h.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"archived": voters})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := intQuery(r.URL.Query().Get("limit"), 20)
	sessions, err := h.store.ListSessions(r.Context(), limit)
	if err != nil {
		h.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *Handler) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	limit := intQuery(q.Get("limit"), 100)
	offset := intQuery(q.Get("offset"), 0)

	total, events, err := guard.ReadEvents(h.cfg.AuditLogPath, limit, offset)
	if err != nil {
		h.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":  total,
		"events": events,
	})
}

// handleExportCSV streams the active flagged records as CSV for offline
// review workflows.
func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	voters, _, err := h.store.ListFlagged(r.Context(), r.URL.Query().Get("type"), 0, 0)
	if err != nil {
		h.internalError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="flagged_voters.csv"`)

	cw := csv.NewWriter(w)
	header := []string{"voter_id", "name", "flag_type", "confidence", "primary_reason", "review_status", "session_id"}
	if err := cw.Write(header); err != nil {
		log.Printf("[API] CSV export write failed: %v", err)
		return
	}
	for _, v := range voters {
		row := []string{
			v.VoterID, v.Name, v.FlagType,
			strconv.FormatFloat(v.Confidence, 'f', 3, 64),
			v.PrimaryReason, v.ReviewStatus, v.SessionID,
		}
		if err := cw.Write(row); err != nil {
			log.Printf("[API] CSV export write failed: %v", err)
			return
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		log.Printf("[API] CSV export flush failed: %v", err)
	}
}

// appendAuditEvent records review-workflow actions in the same trail the
// pipeline writes to.
func (h *Handler) appendAuditEvent(eventType string, details map[string]any) {
	sink, err := guard.NewFileSink(h.cfg.AuditLogPath)
	if err != nil {
		log.Printf("[API] audit trail unavailable: %v", err)
		return
	}
	logger := guard.NewAuditLogger(sink)
	logger.LogEvent(eventType, details)
}

func (h *Handler) internalError(w http.ResponseWriter, err error) {
	log.Printf("[API] internal error: %v", err)
	sentry.CaptureException(err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[API] failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func intQuery(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
