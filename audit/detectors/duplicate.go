package detectors

import (
	"fmt"
	"log"
	"strings"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"github.com/voteguard/voteguard/dataset"
)

// DuplicateConfig tunes duplicate detection.
type DuplicateConfig struct {
	// NameSimilarityThreshold is the minimum token-sort ratio (0-100) for a
	// pair inside a DOB+pincode group to count as a match.
	NameSimilarityThreshold int
	// PhoneticMatch enables the phonetic confidence bonus. It is disabled
	// in the default configuration, which caps duplicate confidence at
	// 0.75 even for identical names.
	PhoneticMatch bool
}

const defaultNameSimilarityThreshold = 85

// DuplicateDetector finds registrations that plausibly belong to one person.
// An exact match on DOB + pincode is required before any fuzzy comparison,
// which bounds the pairwise cost to within-group size and encodes the
// assumption that duplicate registrations share address and birthdate with
// only name-spelling variation.
//
// Matching purely on the masked national-ID fragment stays disabled: the
// fragment has too few distinct values for large rolls and produces
// unacceptable false-positive rates unless full identifiers are available.
type DuplicateDetector struct {
	cfg DuplicateConfig
}

// NewDuplicateDetector applies defaults for unset config fields.
func NewDuplicateDetector(cfg DuplicateConfig) *DuplicateDetector {
	if cfg.NameSimilarityThreshold <= 0 {
		cfg.NameSimilarityThreshold = defaultNameSimilarityThreshold
	}
	return &DuplicateDetector{cfg: cfg}
}

// Detect groups records by (DOB, pincode) and compares names within each
// group. Duplicate detection is optional: when the dataset is missing either
// key column it degrades to empty results with a warning instead of failing.
func (d *DuplicateDetector) Detect(ft *dataset.FeatureTable) ([]DuplicateGroup, []DuplicateFinding) {
	if !ft.Fields.Has(dataset.FieldDOB) || !ft.Fields.Has(dataset.FieldPincode) {
		log.Println("[DuplicateDetector] Warning: DOB or pincode column not found, skipping duplicate detection")
		return []DuplicateGroup{}, []DuplicateFinding{}
	}

	// Partition by composite key, preserving first-appearance order so
	// group ids are assigned deterministically.
	groups := make(map[string][]*dataset.VoterRecord)
	var keyOrder []string
	for i := range ft.Records {
		rec := &ft.Records[i]
		key := rec.DOB + "_" + rec.Pincode
		if _, ok := groups[key]; !ok {
			keyOrder = append(keyOrder, key)
		}
		groups[key] = append(groups[key], rec)
	}

	var allGroups []DuplicateGroup
	findings := make(map[string]*DuplicateFinding)
	var findingOrder []string
	groupID := 0

	for _, key := range keyOrder {
		members := groups[key]
		if len(members) < 2 {
			continue
		}

		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				rec1, rec2 := members[i], members[j]

				name1 := comparableName(rec1)
				name2 := comparableName(rec2)
				if name1 == "" || name2 == "" {
					continue
				}

				similarity := fuzzy.TokenSortRatio(name1, name2)
				if similarity < d.cfg.NameSimilarityThreshold {
					continue
				}

				phoneticHit := d.cfg.PhoneticMatch && phoneticsAgree(rec1, rec2)
				confidence := duplicateConfidence(similarity, phoneticHit)

				groupID++
				group := DuplicateGroup{
					GroupID:    groupID,
					VoterIDs:   []string{rec1.VoterID, rec2.VoterID},
					MatchType:  MatchTypeNameDOB,
					Confidence: confidence,
					Evidence: GroupEvidence{
						DOB:            rec1.DOB,
						Pincode:        rec1.Pincode,
						NameSimilarity: similarity,
						PhoneticMatch:  phoneticHit,
					},
				}
				allGroups = append(allGroups, group)

				reasons := duplicateReasons(similarity, phoneticHit, rec1.DOB)
				mergePair(findings, &findingOrder, rec1.VoterID, rec2.VoterID, similarity, confidence, reasons)
				mergePair(findings, &findingOrder, rec2.VoterID, rec1.VoterID, similarity, confidence, reasons)
			}
		}
	}

	ordered := make([]DuplicateFinding, 0, len(findingOrder))
	for _, id := range findingOrder {
		ordered = append(ordered, *findings[id])
	}

	return allGroups, ordered
}

// mergePair folds one matched pair into the per-identifier finding. Merging
// is a union of co-member sets and a max of confidences, so the outcome does
// not depend on group order.
func mergePair(findings map[string]*DuplicateFinding, order *[]string, id, other string, similarity int, confidence float64, reasons []string) {
	f, ok := findings[id]
	if !ok {
		f = &DuplicateFinding{
			VoterID:          id,
			Flagged:          true,
			SimilarityScores: make(map[string]int),
		}
		findings[id] = f
		*order = append(*order, id)
	}

	seen := false
	for _, existing := range f.DuplicateOf {
		if existing == other {
			seen = true
			break
		}
	}
	if !seen {
		f.DuplicateOf = append(f.DuplicateOf, other)
	}

	f.SimilarityScores[other] = similarity
	if confidence > f.Confidence {
		f.Confidence = confidence
	}
	f.Reasons = append(f.Reasons, reasons...)
}

// comparableName picks the best available name representation: the
// precomputed normalized full name, else the raw combined name, else
// first + last.
func comparableName(rec *dataset.VoterRecord) string {
	if rec.FullNameNorm != "" {
		return rec.FullNameNorm
	}
	if n := strings.ToLower(strings.TrimSpace(rec.FullName)); n != "" {
		return n
	}
	return strings.ToLower(strings.TrimSpace(rec.FirstName + " " + rec.LastName))
}

func phoneticsAgree(a, b *dataset.VoterRecord) bool {
	if a.FirstNameSoundex != "" && a.FirstNameSoundex == b.FirstNameSoundex &&
		a.LastNameSoundex == b.LastNameSoundex {
		return true
	}
	return a.FirstNameMetaphone != "" && a.FirstNameMetaphone == b.FirstNameMetaphone &&
		a.LastNameMetaphone == b.LastNameMetaphone
}

// duplicateConfidence combines the similarity ratio with the evidence that
// is structural to the grouping: the same-DOB baseline (0.1) and the
// same-pincode bonus (0.15) are always earned by construction; the phonetic
// bonus (0.25) applies only when phonetic matching is enabled.
func duplicateConfidence(similarity int, phoneticHit bool) float64 {
	confidence := float64(similarity) / 100 * 0.5
	confidence += 0.1
	confidence += 0.15
	if phoneticHit {
		confidence += 0.25
	}
	return clamp01(confidence)
}

func duplicateReasons(similarity int, phoneticHit bool, dob string) []string {
	reasons := []string{fmt.Sprintf("Same date of birth: %s", dob)}

	switch {
	case similarity >= 95:
		reasons = append(reasons, fmt.Sprintf("Very high name similarity (%d%%)", similarity))
	case similarity >= 90:
		reasons = append(reasons, fmt.Sprintf("High name similarity (%d%%) - possible typo variation", similarity))
	default:
		reasons = append(reasons, fmt.Sprintf("Moderate name similarity (%d%%) - possible spelling variation", similarity))
	}

	if phoneticHit {
		reasons = append(reasons, "Names sound similar (phonetic match)")
	}

	return reasons
}
