// Package audit assembles the voter-roll audit pipeline: feature derivation,
// the two detection strategies, human-readable explanations, and the
// security gates around them.
package audit

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/voteguard/voteguard/audit/detectors"
	"github.com/voteguard/voteguard/dataset"
)

// FlagType labels the kind of integrity risk an explanation describes.
// "BOTH" exists only at the presentation layer; stored findings always carry
// exactly one of the detection kinds.
type FlagType string

const (
	FlagGhost     FlagType = "GHOST_VOTER"
	FlagDuplicate FlagType = "DUPLICATE_VOTER"
	FlagBoth      FlagType = "BOTH"
)

// Factor is one ranked contributor to a flag. Values are always strings so
// every explanation serializes cleanly.
type Factor struct {
	Label  string  `json:"factor"`
	Value  string  `json:"value"`
	Impact float64 `json:"impact"`
}

// DuplicateRef points a duplicate explanation at a matching registration.
type DuplicateRef struct {
	VoterID string `json:"voter_id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// VoterDetails is the snapshot of the originating record carried inside an
// explanation. Extra holds any input columns the canonical model doesn't
// know about, stringified.
type VoterDetails struct {
	Name             string            `json:"name"`
	Age              string            `json:"age"`
	Gender           string            `json:"gender"`
	Address          string            `json:"address"`
	Pincode          string            `json:"pincode"`
	DOB              string            `json:"dob"`
	RegistrationYear string            `json:"registration_year"`
	LastVotedYear    string            `json:"last_voted_year"`
	Extra            map[string]string `json:"extra,omitempty"`
	DuplicateVoters  []DuplicateRef    `json:"duplicate_voters,omitempty"`
}

// FlagExplanation is the human-facing justification for one flagged record.
type FlagExplanation struct {
	VoterID             string       `json:"voter_id"`
	FlagType            FlagType     `json:"flag_type"`
	Confidence          float64      `json:"confidence"`
	PrimaryReason       string       `json:"primary_reason"`
	ContributingFactors []Factor     `json:"contributing_factors"`
	RecommendedAction   string       `json:"recommended_action"`
	VoterDetails        VoterDetails `json:"voter_details"`
}

// fallbackAction is used for any (kind, severity) pair missing from the
// action table.
const fallbackAction = "Flag for manual review"

// actionTable maps flag kind and severity band to the recommended human
// action. Auditors act on these strings directly, so they stay fixed.
var actionTable = map[string]string{
	"GHOST_VOTER_HIGH":   "Recommend verification of voter status (mortality/migration check)",
	"GHOST_VOTER_MEDIUM": "Suggest field verification of current residence",
	"GHOST_VOTER_LOW":    "Flag for periodic review during next electoral roll update",
	"DUPLICATE_HIGH":     "Recommend immediate cross-reference with original registration",
	"DUPLICATE_MEDIUM":   "Suggest address verification to confirm separate individuals",
	"DUPLICATE_LOW":      "Flag for manual review - may be valid family members",
}

// factorDisplayNames converts feature names to auditor-facing labels.
var factorDisplayNames = map[string]string{
	"age":                      "Voter Age",
	"years_since_last_vote":    "Years Since Last Vote",
	"years_since_registration": "Years Since Registration",
	"is_very_old":              "Advanced Age Flag",
	"long_voting_gap":          "Extended Voting Inactivity",
	"old_registration":         "Historical Registration",
	"voting_activity_score":    "Voting Activity Pattern",
}

// severityBand buckets a confidence score into the three review tiers.
func severityBand(confidence float64) string {
	switch {
	case confidence >= 0.8:
		return "HIGH"
	case confidence >= 0.5:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// Explainer converts detector findings into ranked, human-readable
// explanations for election officials. Explanations must be non-technical
// and actionable: officials need to understand why a record was flagged,
// and confidence bands prioritize their review.
type Explainer struct{}

// NewExplainer returns an Explainer.
func NewExplainer() *Explainer { return &Explainer{} }

// ExplainGhost builds the explanation for a ghost finding.
func (e *Explainer) ExplainGhost(rec *dataset.VoterRecord, finding detectors.GhostFinding, ft *dataset.FeatureTable) FlagExplanation {
	severity := severityBand(finding.Confidence)

	primary := "Statistical anomaly detected"
	if len(finding.Reasons) > 0 {
		primary = finding.Reasons[0]
	}

	factors := make([]Factor, 0, len(finding.FeatureContributions))
	for name, impact := range finding.FeatureContributions {
		if impact <= 0 {
			continue
		}
		factors = append(factors, Factor{
			Label:  displayFactorName(name),
			Value:  factorValue(rec, name),
			Impact: math.Round(impact*100) / 100,
		})
	}
	sort.SliceStable(factors, func(i, j int) bool {
		if factors[i].Impact != factors[j].Impact {
			return factors[i].Impact > factors[j].Impact
		}
		return factors[i].Label < factors[j].Label
	})

	action, ok := actionTable[fmt.Sprintf("%s_%s", FlagGhost, severity)]
	if !ok {
		action = fallbackAction
	}

	return FlagExplanation{
		VoterID:             finding.VoterID,
		FlagType:            FlagGhost,
		Confidence:          math.Round(finding.Confidence*1000) / 1000,
		PrimaryReason:       primary,
		ContributingFactors: factors,
		RecommendedAction:   action,
		VoterDetails:        voterDetails(rec, ft.Fields),
	}
}

// ExplainDuplicate builds the explanation for a duplicate finding. Up to
// three matching registrations are resolved back to name and address and
// inserted as the highest-impact factor.
func (e *Explainer) ExplainDuplicate(rec *dataset.VoterRecord, finding detectors.DuplicateFinding, ft *dataset.FeatureTable) FlagExplanation {
	severity := severityBand(finding.Confidence)

	primary := "Records match on multiple criteria"
	if len(finding.Reasons) > 0 {
		primary = finding.Reasons[0]
	}

	var refs []DuplicateRef
	for _, dupID := range finding.DuplicateOf {
		if len(refs) >= 3 {
			break
		}
		if match := findRecord(ft, dupID); match != nil {
			refs = append(refs, DuplicateRef{
				VoterID: match.VoterID,
				Name:    match.DisplayName(),
				Address: truncate(match.Address, 50),
			})
		}
	}

	factors := make([]Factor, 0, len(finding.Reasons)+1)
	if len(refs) > 0 {
		ids := make([]string, len(refs))
		for i, r := range refs {
			ids[i] = r.VoterID
		}
		factors = append(factors, Factor{
			Label:  "Matching voter(s)",
			Value:  strings.Join(ids, ", "),
			Impact: 0.5,
		})
	}
	for _, reason := range finding.Reasons {
		factors = append(factors, Factor{Label: reason, Value: "Match", Impact: 0.3})
	}

	action, ok := actionTable[fmt.Sprintf("DUPLICATE_%s", severity)]
	if !ok {
		action = fallbackAction
	}

	details := voterDetails(rec, ft.Fields)
	details.DuplicateVoters = refs

	return FlagExplanation{
		VoterID:             finding.VoterID,
		FlagType:            FlagDuplicate,
		Confidence:          math.Round(finding.Confidence*1000) / 1000,
		PrimaryReason:       primary,
		ContributingFactors: factors,
		RecommendedAction:   action,
		VoterDetails:        details,
	}
}

func displayFactorName(name string) string {
	if display, ok := factorDisplayNames[name]; ok {
		return display
	}
	words := strings.Split(name, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// factorValue renders the observed value of a factor for display.
func factorValue(rec *dataset.VoterRecord, name string) string {
	switch name {
	case "age":
		return fmt.Sprintf("%d years", rec.Age)
	case "is_very_old":
		return yesNo(rec.IsVeryOld)
	case "long_voting_gap":
		return yesNo(rec.LongVotingGap)
	case "old_registration":
		return yesNo(rec.OldRegistration)
	case "years_since_last_vote":
		if rec.YearsSinceLastVote == 999 {
			return "Never voted"
		}
		return fmt.Sprintf("%d years", rec.YearsSinceLastVote)
	case "years_since_registration":
		return fmt.Sprintf("%d years", rec.YearsSinceRegistration)
	case "voting_activity_score":
		return fmt.Sprintf("%.1f", rec.VotingActivityScore)
	}
	return "N/A"
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// voterDetails snapshots the record for the explanation. Every value is a
// string (missing values become "") so the explanation always serializes.
// Columns the canonical model doesn't know about end up in Extra.
func voterDetails(rec *dataset.VoterRecord, fields dataset.FieldMap) VoterDetails {
	var extra map[string]string
	for k, v := range rec.Raw {
		if fields.IsMapped(k) {
			continue
		}
		if extra == nil {
			extra = make(map[string]string)
		}
		extra[k] = v
	}
	return VoterDetails{
		Name:             rec.DisplayName(),
		Age:              fmt.Sprintf("%d", rec.Age),
		Gender:           rec.Gender,
		Address:          rec.Address,
		Pincode:          rec.Pincode,
		DOB:              rec.DOB,
		RegistrationYear: rec.RegistrationYear,
		LastVotedYear:    rec.LastVotedYear,
		Extra:            extra,
	}
}

func findRecord(ft *dataset.FeatureTable, voterID string) *dataset.VoterRecord {
	want := strings.TrimSpace(voterID)
	for i := range ft.Records {
		if strings.TrimSpace(ft.Records[i].VoterID) == want {
			return &ft.Records[i]
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
