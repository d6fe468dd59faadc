// Package guard implements the safety layer around detection: input
// validation before a run, output validation after it, and append-only audit
// logging of every check and flag decision.
package guard

// Severity is the escalation level of a security check. Only a critical
// pre-analysis failure halts the pipeline.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// CheckResult is the outcome of one security validation check.
type CheckResult struct {
	Name     string         `json:"check_name"`
	Passed   bool           `json:"passed"`
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
}

// CriticalFailures filters the checks that both failed and are critical.
func CriticalFailures(results []CheckResult) []CheckResult {
	var critical []CheckResult
	for _, r := range results {
		if !r.Passed && r.Severity == SeverityCritical {
			critical = append(critical, r)
		}
	}
	return critical
}
