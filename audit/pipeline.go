package audit

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/voteguard/voteguard/audit/detectors"
	"github.com/voteguard/voteguard/audit/guard"
	"github.com/voteguard/voteguard/dataset"
)

// PipelineConfig holds the detection parameters for one analysis run.
type PipelineConfig struct {
	GhostContamination      float64
	NameSimilarityThreshold int
	GhostAgeThreshold       int
	Seed                    int64
	EnableStatistical       bool
	PhoneticMatch           bool
}

// DefaultPipelineConfig returns the production defaults. The statistical
// ghost detector is off by default; rule evaluation covers the common cases
// and needs no training pass.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		GhostContamination:      0.05,
		NameSimilarityThreshold: 85,
		GhostAgeThreshold:       110,
		Seed:                    42,
		EnableStatistical:       false,
		PhoneticMatch:           false,
	}
}

// SecurityError is returned when the pre-analysis security gate blocks a
// run. It carries the failing checks so callers can show them to the user.
type SecurityError struct {
	Checks []guard.CheckResult
}

func (e *SecurityError) Error() string {
	msgs := make([]string, 0, len(e.Checks))
	for _, c := range e.Checks {
		msgs = append(msgs, c.Message)
	}
	return fmt.Sprintf("security validation failed: %s", strings.Join(msgs, "; "))
}

// PipelineResult is the complete outcome of one analysis run.
type PipelineResult struct {
	Timestamp              time.Time                  `json:"timestamp"`
	SessionID              string                     `json:"session_id"`
	TotalRecords           int                        `json:"total_records"`
	GhostVotersFlagged     int                        `json:"ghost_voters_flagged"`
	DuplicateVotersFlagged int                        `json:"duplicate_voters_flagged"`
	GhostExplanations      []FlagExplanation          `json:"ghost_explanations"`
	DuplicateExplanations  []FlagExplanation          `json:"duplicate_explanations"`
	DuplicateGroups        []detectors.DuplicateGroup `json:"duplicate_groups"`
	SummaryReport          SummaryReport              `json:"summary_report"`
	SecurityReport         guard.SecurityReport       `json:"security_report"`
}

// Pipeline runs the full audit sequence: preprocessing, the pre-analysis
// security gate, both detectors, explanation building, and the post-analysis
// output checks.
type Pipeline struct {
	cfg       PipelineConfig
	guard     *guard.SecurityGuard
	explainer *Explainer
}

// NewPipeline builds a pipeline with the given detection parameters. Audit
// events are appended to sink; pass nil to run without an audit trail.
func NewPipeline(cfg PipelineConfig, sink guard.Sink) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		guard:     guard.NewSecurityGuard(sink),
		explainer: NewExplainer(),
	}
}

// SessionID returns the audit session identifier for this pipeline.
func (p *Pipeline) SessionID() string { return p.guard.Logger.SessionID() }

// RunFile loads a CSV voter roll and analyzes it.
func (p *Pipeline) RunFile(path string) (*PipelineResult, error) {
	table, err := dataset.LoadCSV(path)
	if err != nil {
		return nil, fmt.Errorf("loading dataset: %w", err)
	}
	return p.Run(table)
}

// Run analyzes an in-memory voter roll table. A *SecurityError is returned
// when the input fails a critical pre-analysis check; detection errors are
// returned as-is.
func (p *Pipeline) Run(table *dataset.Table) (*PipelineResult, error) {
	start := time.Now()
	p.guard.Logger.LogAnalysisStart(len(table.Rows))

	canProceed, preChecks := p.guard.PreAnalysisCheck(table)
	if !canProceed {
		log.Printf("[Pipeline] analysis blocked by security checks")
		return nil, &SecurityError{Checks: guard.CriticalFailures(preChecks)}
	}

	ft := dataset.NewPreprocessor().Derive(table)
	log.Printf("[Pipeline] derived features for %d records", len(ft.Records))

	ghostFindings, err := p.detectGhosts(ft)
	if err != nil {
		return nil, fmt.Errorf("ghost detection: %w", err)
	}

	dupDetector := detectors.NewDuplicateDetector(detectors.DuplicateConfig{
		NameSimilarityThreshold: p.cfg.NameSimilarityThreshold,
		PhoneticMatch:           p.cfg.PhoneticMatch,
	})
	groups, dupFindings := dupDetector.Detect(ft)

	index := recordIndex(ft)

	ghostExplanations := make([]FlagExplanation, 0, len(ghostFindings))
	for _, f := range ghostFindings {
		rec, ok := index[strings.TrimSpace(f.VoterID)]
		if !ok {
			continue
		}
		ex := p.explainer.ExplainGhost(rec, f, ft)
		p.guard.Logger.LogFlagDecision(ex.VoterID, string(ex.FlagType), ex.Confidence)
		ghostExplanations = append(ghostExplanations, ex)
	}

	dupExplanations := make([]FlagExplanation, 0, len(dupFindings))
	for _, f := range dupFindings {
		rec, ok := index[strings.TrimSpace(f.VoterID)]
		if !ok {
			continue
		}
		ex := p.explainer.ExplainDuplicate(rec, f, ft)
		p.guard.Logger.LogFlagDecision(ex.VoterID, string(ex.FlagType), ex.Confidence)
		dupExplanations = append(dupExplanations, ex)
	}

	summary := SummarizeExplanations(ghostExplanations, dupExplanations)

	confidences := make([]float64, 0, len(ghostExplanations)+len(dupExplanations))
	for _, ex := range ghostExplanations {
		confidences = append(confidences, ex.Confidence)
	}
	for _, ex := range dupExplanations {
		confidences = append(confidences, ex.Confidence)
	}
	resultsValid, postChecks := p.guard.PostAnalysisCheck(len(table.Rows), summary.TotalFlaggedRecords, confidences)
	if !resultsValid {
		log.Printf("[Pipeline] WARNING: post-analysis checks failed, results require scrutiny")
	}

	log.Printf("[Pipeline] analysis complete in %s: %d ghosts, %d duplicates of %d records",
		time.Since(start).Round(time.Millisecond), len(ghostExplanations), len(dupExplanations), len(table.Rows))

	return &PipelineResult{
		Timestamp:              start,
		SessionID:              p.guard.Logger.SessionID(),
		TotalRecords:           len(table.Rows),
		GhostVotersFlagged:     len(ghostExplanations),
		DuplicateVotersFlagged: len(dupExplanations),
		GhostExplanations:      ghostExplanations,
		DuplicateExplanations:  dupExplanations,
		DuplicateGroups:        groups,
		SummaryReport:          summary,
		SecurityReport:         p.guard.Report(preChecks, postChecks),
	}, nil
}

func (p *Pipeline) detectGhosts(ft *dataset.FeatureTable) ([]detectors.GhostFinding, error) {
	detector := detectors.NewGhostDetector(detectors.GhostConfig{
		Contamination: p.cfg.GhostContamination,
		Seed:          p.cfg.Seed,
		AgeThreshold:  p.cfg.GhostAgeThreshold,
	})
	if !p.cfg.EnableStatistical {
		return detector.DetectRules(ft), nil
	}
	if err := detector.Fit(ft); err != nil {
		return nil, err
	}
	return detector.DetectStatistical(ft)
}

func recordIndex(ft *dataset.FeatureTable) map[string]*dataset.VoterRecord {
	index := make(map[string]*dataset.VoterRecord, len(ft.Records))
	for i := range ft.Records {
		rec := &ft.Records[i]
		if id := strings.TrimSpace(rec.VoterID); id != "" {
			if _, exists := index[id]; !exists {
				index[id] = rec
			}
		}
	}
	return index
}
