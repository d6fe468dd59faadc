package guard

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// Event is one structured audit record. Events are append-only: nothing in
// the system rewrites or removes them.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id"`
	EventType string         `json:"event_type"`
	User      string         `json:"user"`
	Details   map[string]any `json:"details"`
}

// Sink is the audit-log destination capability. The pipeline owns no global
// log state; a sink is injected at construction.
type Sink interface {
	Append(event Event) error
}

// FileSink appends events as JSON lines to a file.
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink opens (or creates) the audit log file for appending.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	f.Close()
	return &FileSink{path: path}, nil
}

// Append writes one event as a JSON line. The file is reopened per append so
// an external rotation never strands a stale handle.
func (s *FileSink) Append(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

// Path returns the sink's file path.
func (s *FileSink) Path() string { return s.path }

// ReadEvents reads back events from a file sink, newest first, with
// limit/offset paging. Unparseable lines are skipped.
func ReadEvents(path string, limit, offset int) (int, []Event, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, []Event{}, nil
		}
		return 0, nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return 0, nil, fmt.Errorf("failed to read audit log: %w", err)
	}

	// Newest first.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}

	total := len(events)
	if offset >= total {
		return total, []Event{}, nil
	}
	events = events[offset:]
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return total, events, nil
}

// AuditLogger writes one structured record per security-check batch and per
// flag decision. Logging is best-effort: a failing sink degrades to a
// warning on the process log and never aborts the pipeline.
type AuditLogger struct {
	sink      Sink
	sessionID string
}

// NewAuditLogger derives the run's session identifier from a hash of its
// start time.
func NewAuditLogger(sink Sink) *AuditLogger {
	return &AuditLogger{
		sink:      sink,
		sessionID: sessionID(time.Now()),
	}
}

func sessionID(start time.Time) string {
	sum := sha256.Sum256([]byte(start.Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])[:16]
}

// SessionID returns the unique identifier of this run.
func (l *AuditLogger) SessionID() string { return l.sessionID }

// LogAnalysisStart records the beginning of a pipeline run.
func (l *AuditLogger) LogAnalysisStart(recordCount int) {
	l.log("ANALYSIS_START", map[string]any{
		"record_count": recordCount,
		"action":       "Beginning voter analysis",
	})
}

// LogSecurityCheck records one batch of security-check results.
func (l *AuditLogger) LogSecurityCheck(results []CheckResult) {
	checks := make([]map[string]any, 0, len(results))
	allPassed := true
	for _, r := range results {
		if !r.Passed {
			allPassed = false
		}
		checks = append(checks, map[string]any{
			"name":     r.Name,
			"passed":   r.Passed,
			"severity": string(r.Severity),
			"message":  r.Message,
		})
	}
	l.log("SECURITY_CHECK", map[string]any{
		"checks":     checks,
		"all_passed": allPassed,
	})
}

// LogFlagDecision records one flag decision. Human review is always
// required; the field documents that invariant in the log itself.
func (l *AuditLogger) LogFlagDecision(voterID, flagType string, confidence float64) {
	l.log("FLAG_DECISION", map[string]any{
		"voter_id":              voterID,
		"flag_type":             flagType,
		"confidence":            confidence,
		"requires_human_review": true,
	})
}

// LogEvent records an arbitrary audit event (used by the API layer for
// uploads and logins).
func (l *AuditLogger) LogEvent(eventType string, details map[string]any) {
	l.log(eventType, details)
}

func (l *AuditLogger) log(eventType string, details map[string]any) {
	if l.sink == nil {
		return
	}
	event := Event{
		Timestamp: time.Now(),
		SessionID: l.sessionID,
		EventType: eventType,
		User:      "system",
		Details:   details,
	}
	if err := l.sink.Append(event); err != nil {
		log.Printf("[AuditLogger] WARNING: degraded logging, failed to append %s event: %v", eventType, err)
	}
}
