package guard

import (
	"fmt"
	"time"

	"github.com/voteguard/voteguard/dataset"
)

// SecurityGuard orchestrates the two gates around detection and the audit
// trail between them.
type SecurityGuard struct {
	Input  *InputValidator
	Output *OutputGuard
	Logger *AuditLogger
}

// NewSecurityGuard wires the validators to an injected audit sink.
func NewSecurityGuard(sink Sink) *SecurityGuard {
	return &SecurityGuard{
		Input:  &InputValidator{},
		Output: NewOutputGuard(),
		Logger: NewAuditLogger(sink),
	}
}

// PreAnalysisCheck runs the input gate. canProceed is false when any
// critical check failed; the caller must not run detection in that case.
func (g *SecurityGuard) PreAnalysisCheck(t *dataset.Table) (canProceed bool, results []CheckResult) {
	results = g.Input.Validate(t)
	g.Logger.LogSecurityCheck(results)
	return len(CriticalFailures(results)) == 0, results
}

// PostAnalysisCheck runs the output gate. A false resultsValid is surfaced
// in the report but does not block: a completed analysis is reviewed, not
// dropped.
func (g *SecurityGuard) PostAnalysisCheck(totalRecords, flaggedRecords int, confidences []float64) (resultsValid bool, results []CheckResult) {
	results = g.Output.Validate(totalRecords, flaggedRecords, confidences)
	g.Logger.LogSecurityCheck(results)
	return len(CriticalFailures(results)) == 0, results
}

// Safeguards describes the active protections for the compliance report.
type Safeguards struct {
	BiasPrevention  string `json:"bias_prevention"`
	FlagRateLimit   string `json:"flag_rate_limit"`
	HumanInLoop     string `json:"human_in_loop"`
	AuditLogging    string `json:"audit_logging"`
	InputValidation string `json:"input_validation"`
}

// SecurityReport is the compliance report attached to every pipeline result.
type SecurityReport struct {
	GeneratedAt        time.Time     `json:"generated_at"`
	SessionID          string        `json:"session_id"`
	Safeguards         Safeguards    `json:"safeguards"`
	PreAnalysisChecks  []CheckResult `json:"pre_analysis_checks"`
	PostAnalysisChecks []CheckResult `json:"post_analysis_checks"`
}

// Report assembles the compliance report for one run.
func (g *SecurityGuard) Report(pre, post []CheckResult) SecurityReport {
	return SecurityReport{
		GeneratedAt: time.Now(),
		SessionID:   g.Logger.SessionID(),
		Safeguards: Safeguards{
			BiasPrevention:  "Active - Forbidden columns blocked",
			FlagRateLimit:   fmt.Sprintf("Active - Max %.0f%%", g.Output.MaxFlagRate*100),
			HumanInLoop:     "Active - No auto-delete capability",
			AuditLogging:    "Active - All actions logged",
			InputValidation: "Active - Data integrity checks",
		},
		PreAnalysisChecks:  pre,
		PostAnalysisChecks: post,
	}
}
