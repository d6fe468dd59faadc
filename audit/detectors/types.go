// Package detectors implements the two independent anomaly-detection
// strategies of the voter-roll audit: ghost-record detection (implausible
// voters) and duplicate-registration detection. Both consume the derived
// feature table and produce confidence-scored findings; they never combine
// their scores.
package detectors

// GhostFinding is the result of ghost detection for a single flagged record.
type GhostFinding struct {
	VoterID string `json:"voter_id"`
	Flagged bool   `json:"is_flagged"`
	// AnomalyScore is continuous with lower = more anomalous. Rule-based
	// detections carry the fixed score -1.0.
	AnomalyScore float64 `json:"anomaly_score"`
	// Confidence is clamped to [0,1] and expresses strength of evidence,
	// not a probability.
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons"`
	// FeatureContributions maps feature name to its normalized weight in
	// the detection; the weights for one finding sum to at most 1.
	FeatureContributions map[string]float64 `json:"feature_contributions"`
}

// MatchTypeNameDOB labels the only active duplicate-matching strategy:
// exact composite key (DOB + pincode) plus fuzzy name similarity.
const MatchTypeNameDOB = "name_dob"

// GroupEvidence explains why a duplicate group was formed.
type GroupEvidence struct {
	DOB            string `json:"dob"`
	Pincode        string `json:"pincode"`
	NameSimilarity int    `json:"name_similarity"`
	PhoneticMatch  bool   `json:"phonetic_match"`
}

// DuplicateGroup is a set of at least two registrations that plausibly
// belong to one person. Group ids are monotonic in detection order.
type DuplicateGroup struct {
	GroupID    int           `json:"group_id"`
	VoterIDs   []string      `json:"voter_ids"`
	MatchType  string        `json:"match_type"`
	Confidence float64       `json:"confidence"`
	Evidence   GroupEvidence `json:"explanation"`
}

// DuplicateFinding is the per-identifier view of duplicate detection, merged
// across every group containing the identifier: DuplicateOf is the union of
// co-members, Confidence the maximum over those groups.
type DuplicateFinding struct {
	VoterID          string         `json:"voter_id"`
	Flagged          bool           `json:"is_flagged"`
	DuplicateOf      []string       `json:"duplicate_of"`
	SimilarityScores map[string]int `json:"similarity_scores"`
	Reasons          []string       `json:"reasons"`
	Confidence       float64        `json:"confidence"`
}

// ConfigurationError reports a detector used before it was configured or
// fitted. It is distinct from data errors, which never abort a run.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "detector configuration error: " + e.Msg
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
