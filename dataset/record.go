package dataset

import "strings"

// VoterRecord is one voter-roll entry after field resolution and feature
// derivation. Raw attributes keep the original string values; derived
// attributes are computed once by the Preprocessor and consumed by the
// detectors and the explainer.
type VoterRecord struct {
	// Raw attributes (canonical fields, degraded to "" when absent).
	VoterID          string
	FirstName        string
	LastName         string
	FullName         string
	DOB              string
	Gender           string
	Address          string
	Pincode          string
	RegistrationYear string
	LastVotedYear    string
	MaskedID         string

	// Derived attributes.
	Age                    int
	RegistrationYearInt    int
	LastVotedInt           int
	YearsSinceRegistration int
	YearsSinceLastVote     int
	VotingActivityScore    float64

	FirstNameNorm string
	LastNameNorm  string
	FullNameNorm  string

	FirstNameSoundex   string
	LastNameSoundex    string
	FirstNameMetaphone string
	LastNameMetaphone  string

	// Ghost-indicator bits, used both as detection features and as
	// explanation factors.
	IsVeryOld       bool
	IsGhostAge      bool
	LongVotingGap   bool
	OldRegistration bool

	// Raw holds the full original row so explanations can snapshot
	// columns the canonical model doesn't know about.
	Raw Row
}

// DisplayName returns the best human-readable name for the record, falling
// back to "Unknown" when the dataset carried no name at all.
func (r *VoterRecord) DisplayName() string {
	if name := strings.TrimSpace(r.FullName); name != "" {
		return name
	}
	if name := strings.TrimSpace(r.FirstName + " " + r.LastName); name != "" {
		return name
	}
	return "Unknown"
}

// FeatureTable is the derived dataset handed to the detectors: one derived
// record per input row plus the field mapping that produced them, so
// detectors can tell a missing column apart from an empty value.
type FeatureTable struct {
	Records []VoterRecord
	Fields  FieldMap
	Columns []string
}

// GhostFeatureNames lists the numeric features fed to the statistical ghost
// model, in vector order.
var GhostFeatureNames = []string{
	"age",
	"years_since_registration",
	"years_since_last_vote",
	"voting_activity_score",
	"is_very_old",
	"long_voting_gap",
	"old_registration",
}

// GhostFeatureVector returns the record's numeric feature vector in
// GhostFeatureNames order.
func (r *VoterRecord) GhostFeatureVector() []float64 {
	return []float64{
		float64(r.Age),
		float64(r.YearsSinceRegistration),
		float64(r.YearsSinceLastVote),
		r.VotingActivityScore,
		boolFeature(r.IsVeryOld),
		boolFeature(r.LongVotingGap),
		boolFeature(r.OldRegistration),
	}
}

// GhostFeature returns a single named feature value.
func (r *VoterRecord) GhostFeature(name string) float64 {
	switch name {
	case "age":
		return float64(r.Age)
	case "years_since_registration":
		return float64(r.YearsSinceRegistration)
	case "years_since_last_vote":
		return float64(r.YearsSinceLastVote)
	case "voting_activity_score":
		return r.VotingActivityScore
	case "is_very_old":
		return boolFeature(r.IsVeryOld)
	case "long_voting_gap":
		return boolFeature(r.LongVotingGap)
	case "old_registration":
		return boolFeature(r.OldRegistration)
	}
	return 0
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
