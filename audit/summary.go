package audit

// SeverityBreakdown counts explanations per review tier.
type SeverityBreakdown struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

func (b *SeverityBreakdown) add(confidence float64) {
	switch severityBand(confidence) {
	case "HIGH":
		b.High++
	case "MEDIUM":
		b.Medium++
	default:
		b.Low++
	}
}

// RecommendedPriority translates the severity tiers into review queues.
type RecommendedPriority struct {
	ImmediateReview int `json:"immediate_review"`
	StandardReview  int `json:"standard_review"`
	PeriodicReview  int `json:"periodic_review"`
}

// SummaryReport aggregates a run's findings for dashboards and exports.
// TotalFlaggedRecords counts distinct voter ids, so a record flagged by both
// detectors counts once.
type SummaryReport struct {
	TotalFlaggedRecords int                 `json:"total_flagged_records"`
	GhostVoters         int                 `json:"ghost_voters"`
	DuplicateVoters     int                 `json:"duplicate_voters"`
	FlaggedAsBoth       int                 `json:"flagged_as_both"`
	GhostBreakdown      SeverityBreakdown   `json:"ghost_breakdown"`
	DuplicateBreakdown  SeverityBreakdown   `json:"duplicate_breakdown"`
	RecommendedPriority RecommendedPriority `json:"recommended_priority"`
}

// SummarizeExplanations rolls the per-record explanations up into a
// SummaryReport.
func SummarizeExplanations(ghosts, duplicates []FlagExplanation) SummaryReport {
	report := SummaryReport{
		GhostVoters:     len(ghosts),
		DuplicateVoters: len(duplicates),
	}

	seen := make(map[string]bool, len(ghosts)+len(duplicates))
	ghostIDs := make(map[string]bool, len(ghosts))

	for _, ex := range ghosts {
		report.GhostBreakdown.add(ex.Confidence)
		seen[ex.VoterID] = true
		ghostIDs[ex.VoterID] = true
	}
	for _, ex := range duplicates {
		report.DuplicateBreakdown.add(ex.Confidence)
		if ghostIDs[ex.VoterID] {
			report.FlaggedAsBoth++
		}
		seen[ex.VoterID] = true
	}
	report.TotalFlaggedRecords = len(seen)

	report.RecommendedPriority = RecommendedPriority{
		ImmediateReview: report.GhostBreakdown.High + report.DuplicateBreakdown.High,
		StandardReview:  report.GhostBreakdown.Medium + report.DuplicateBreakdown.Medium,
		PeriodicReview:  report.GhostBreakdown.Low + report.DuplicateBreakdown.Low,
	}
	return report
}
