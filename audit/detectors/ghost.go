package detectors

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"github.com/voteguard/voteguard/dataset"
)

// GhostConfig tunes ghost detection. Zero values fall back to the defaults
// below through NewGhostDetector.
type GhostConfig struct {
	// Contamination is the expected fraction of ghost records, used as the
	// statistical model's anomaly rate.
	Contamination float64
	// Seed makes the statistical mode deterministic across runs.
	Seed int64
	// AgeThreshold flags records older than this regardless of the model.
	AgeThreshold int
	// InactivityThreshold (years since last vote) drives the supporting
	// inactivity confidence signal.
	InactivityThreshold int
}

const (
	defaultContamination       = 0.05
	defaultSeed                = 42
	defaultAgeThreshold        = 110
	defaultInactivityThreshold = 20
)

// neverVotedMarkers are the textual values treated as "no voting record".
var neverVotedMarkers = map[string]bool{
	"":            true,
	"never voted": true,
	"never":       true,
	"none":        true,
	"n/a":         true,
	"na":          true,
	"nan":         true,
}

// GhostDetector flags implausible voter records. Rule mode is primary and
// authoritative; statistical mode supplements it with a seeded multivariate
// outlier model and must be fitted before use.
type GhostDetector struct {
	cfg GhostConfig

	scaler *standardScaler
	forest *isolationForest
	fitted bool
}

// NewGhostDetector applies defaults for unset config fields.
func NewGhostDetector(cfg GhostConfig) *GhostDetector {
	if cfg.Contamination <= 0 {
		cfg.Contamination = defaultContamination
	}
	if cfg.Seed == 0 {
		cfg.Seed = defaultSeed
	}
	if cfg.AgeThreshold <= 0 {
		cfg.AgeThreshold = defaultAgeThreshold
	}
	if cfg.InactivityThreshold <= 0 {
		cfg.InactivityThreshold = defaultInactivityThreshold
	}
	return &GhostDetector{cfg: cfg}
}

// DetectRules runs the rule-based mode: a record is flagged when its age is
// at least 110, when it has never voted (or the value is unparseable), or
// when its last vote was before 2000. Confidence is 0.6 for the age rule
// alone, 0.4 for the inactivity rule alone, and 1.0 when both fire.
func (d *GhostDetector) DetectRules(ft *dataset.FeatureTable) []GhostFinding {
	findings := make([]GhostFinding, 0)

	for i := range ft.Records {
		rec := &ft.Records[i]
		var reasons []string

		age := rec.Age
		isGhostAge := age >= 110
		if isGhostAge {
			reasons = append(reasons, fmt.Sprintf("Age is %d years (>= 110)", age))
		}

		// The inactivity rule only applies when the dataset carried a
		// last-voted column at all.
		isInactive := false
		if ft.Fields.Has(dataset.FieldLastVoted) {
			inactive, reason := lastVotedInactivity(rec.LastVotedYear)
			if inactive {
				isInactive = true
				reasons = append(reasons, reason)
			}
		}

		if !isGhostAge && !isInactive {
			continue
		}

		confidence := 0.4
		if isGhostAge {
			confidence = 0.6
		}
		if isGhostAge && isInactive {
			confidence = 1.0
		}

		findings = append(findings, GhostFinding{
			VoterID:              rec.VoterID,
			Flagged:              true,
			AnomalyScore:         -1.0,
			Confidence:           confidence,
			Reasons:              reasons,
			FeatureContributions: map[string]float64{},
		})
	}

	return findings
}

// lastVotedInactivity classifies a raw last-voted value. Empty values,
// never-voted markers, and unparseable text all count as inactivity; a
// parseable year counts only when it is before 2000.
func lastVotedInactivity(raw string) (bool, string) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if neverVotedMarkers[s] {
		return true, "Never voted or last vote year unknown"
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return true, "Never voted or last vote year unknown"
	}
	year := int(f)
	if year < 2000 {
		return true, fmt.Sprintf("Last voted in %d (before 2000)", year)
	}
	return false, ""
}

// Fit trains the statistical model on the feature table. The model is
// rebuilt per run; it is never persisted or shared between runs.
func (d *GhostDetector) Fit(ft *dataset.FeatureTable) error {
	if len(ft.Records) == 0 {
		return &ConfigurationError{Msg: "cannot fit statistical model on an empty dataset"}
	}

	x := make([][]float64, len(ft.Records))
	for i := range ft.Records {
		x[i] = ft.Records[i].GhostFeatureVector()
	}

	d.scaler = fitScaler(x)
	scaled := make([][]float64, len(x))
	for i := range x {
		scaled[i] = d.scaler.transform(x[i])
	}

	rng := rand.New(rand.NewSource(d.cfg.Seed))
	d.forest = fitIsolationForest(scaled, d.cfg.Contamination, rng)
	d.fitted = true
	return nil
}

// DetectStatistical runs the supplementary mode: a record is flagged when
// the outlier model marks it anomalous or its age exceeds the configured
// threshold. The age rule takes precedence over the model for confidence
// attribution. Fit must have been called first.
func (d *GhostDetector) DetectStatistical(ft *dataset.FeatureTable) ([]GhostFinding, error) {
	if !d.fitted {
		return nil, &ConfigurationError{Msg: "statistical model must be fitted before prediction"}
	}

	findings := make([]GhostFinding, 0)
	for i := range ft.Records {
		rec := &ft.Records[i]

		scaled := d.scaler.transform(rec.GhostFeatureVector())
		isAnomaly := d.forest.isAnomaly(scaled)
		score := d.forest.decision(scaled)

		isGhostAge := rec.Age > d.cfg.AgeThreshold
		isLongInactive := rec.YearsSinceLastVote > d.cfg.InactivityThreshold

		if !isAnomaly && !isGhostAge {
			continue
		}

		findings = append(findings, GhostFinding{
			VoterID:              rec.VoterID,
			Flagged:              true,
			AnomalyScore:         score,
			Confidence:           statisticalConfidence(isGhostAge, isLongInactive, isAnomaly),
			Reasons:              ghostReasons(rec),
			FeatureContributions: featureContributions(rec),
		})
	}

	return findings, nil
}

// statisticalConfidence combines three additive weighted indicators: the
// strong age signal, long inactivity, and model confirmation.
func statisticalConfidence(isGhostAge, isLongInactive, isAnomaly bool) float64 {
	confidence := 0.0
	if isGhostAge {
		confidence += 0.7
	}
	if isLongInactive {
		confidence += 0.15
	}
	if isAnomaly {
		confidence += 0.15
	}
	return clamp01(confidence)
}

// ghostReasons renders the severity-ordered templates for a flagged record.
// A generic fallback guarantees at least one reason.
func ghostReasons(rec *dataset.VoterRecord) []string {
	var reasons []string

	age := rec.Age
	switch {
	case age > 130:
		reasons = append(reasons, fmt.Sprintf("Extremely unrealistic age of %d years (likely deceased)", age))
	case age > 110:
		reasons = append(reasons, fmt.Sprintf("Voter age of %d years exceeds expected lifespan", age))
	case age > 100:
		reasons = append(reasons, fmt.Sprintf("Voter is %d years old - requires verification", age))
	}

	switch {
	case rec.YearsSinceLastVote > 25:
		reasons = append(reasons, fmt.Sprintf("No voting activity in %d years", rec.YearsSinceLastVote))
	case rec.YearsSinceLastVote > 20:
		reasons = append(reasons, fmt.Sprintf("Long voting gap of %d years", rec.YearsSinceLastVote))
	}

	regYear := dataset.LossyInt(rec.RegistrationYear, 2000)
	if regYear < 1960 {
		reasons = append(reasons, fmt.Sprintf("Very old registration from %d", regYear))
	}

	if neverVotedMarkers[strings.ToLower(strings.TrimSpace(rec.LastVotedYear))] {
		reasons = append(reasons, "No voting record found")
	}

	if len(reasons) == 0 {
		reasons = append(reasons, "Statistical anomaly detected in voter pattern")
	}

	return reasons
}

// featureContributions estimates how much each feature drove the detection
// and normalizes the weights so they sum to 1 (or stay all zero).
func featureContributions(rec *dataset.VoterRecord) map[string]float64 {
	contributions := make(map[string]float64, len(dataset.GhostFeatureNames))

	for _, name := range dataset.GhostFeatureNames {
		value := rec.GhostFeature(name)
		switch name {
		case "age":
			if value > 90 {
				contributions[name] = math.Min(1.0, value/150)
			} else {
				contributions[name] = 0
			}
		case "years_since_last_vote":
			if value > 10 {
				contributions[name] = math.Min(1.0, value/50)
			} else {
				contributions[name] = 0
			}
		case "is_very_old":
			contributions[name] = value * 0.5
		case "long_voting_gap":
			contributions[name] = value * 0.4
		default:
			if value > 0 {
				contributions[name] = 0.1
			} else {
				contributions[name] = 0
			}
		}
	}

	total := 0.0
	for _, v := range contributions {
		total += v
	}
	if total > 0 {
		for k, v := range contributions {
			contributions[k] = math.Round(v/total*1000) / 1000
		}
	}

	return contributions
}
