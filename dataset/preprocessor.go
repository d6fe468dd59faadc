package dataset

import (
	"strings"
	"time"

	jellyfish "github.com/jamesturk/go-jellyfish"
)

// electionYears are the reference election years for the voting-activity
// step function, most recent first.
var electionYears = []struct {
	year  int
	score float64
}{
	{2024, 1.0},
	{2019, 0.8},
	{2014, 0.6},
	{2009, 0.4},
	{2004, 0.2},
}

// dobLayouts are the accepted date-of-birth orderings: year-first or
// day-first, with either separator.
var dobLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"2006/01/02",
	"02/01/2006",
}

// Preprocessor resolves flexible column names and derives typed features
// from raw voter rows. It never rejects a dataset: missing fields degrade to
// neutral defaults and strict validation is left to the security guard.
type Preprocessor struct {
	now         time.Time
	currentYear int
}

// NewPreprocessor returns a preprocessor anchored at the current time.
func NewPreprocessor() *Preprocessor {
	return NewPreprocessorAt(time.Now())
}

// NewPreprocessorAt anchors derivation at a fixed time, which keeps
// age and inactivity features deterministic in tests.
func NewPreprocessorAt(now time.Time) *Preprocessor {
	return &Preprocessor{now: now, currentYear: now.Year()}
}

// Derive resolves the table's columns and computes the full derived record
// set. It has no side effects beyond the returned feature table.
func (p *Preprocessor) Derive(t *Table) *FeatureTable {
	fields := ResolveFields(t.Columns)

	records := make([]VoterRecord, 0, len(t.Rows))
	for _, row := range t.Rows {
		records = append(records, p.deriveRow(row, fields))
	}

	return &FeatureTable{Records: records, Fields: fields, Columns: t.Columns}
}

func (p *Preprocessor) deriveRow(row Row, fields FieldMap) VoterRecord {
	rec := VoterRecord{
		VoterID:          strings.TrimSpace(fields.Get(row, FieldVoterID)),
		DOB:              fields.Get(row, FieldDOB),
		Gender:           fields.Get(row, FieldGender),
		Address:          fields.Get(row, FieldAddress),
		Pincode:          fields.Get(row, FieldPincode),
		RegistrationYear: fields.Get(row, FieldRegistration),
		LastVotedYear:    fields.Get(row, FieldLastVoted),
		MaskedID:         fields.Get(row, FieldMaskedID),
		Raw:              row,
	}

	// Names: a combined name column is split into first + rest when the
	// dataset has no dedicated first-name column.
	first := fields.Get(row, FieldFirstName)
	last := fields.Get(row, FieldLastName)
	combined := fields.Get(row, FieldName)
	if combined != "" && !fields.Has(FieldFirstName) {
		first, last = splitName(combined)
	}
	rec.FirstName = first
	rec.LastName = last
	if combined != "" {
		rec.FullName = combined
	} else {
		rec.FullName = strings.TrimSpace(first + " " + last)
	}

	rec.Age = p.deriveAge(row, fields)

	if fields.Has(FieldRegistration) {
		rec.RegistrationYearInt = LossyInt(rec.RegistrationYear, p.currentYear)
	} else {
		rec.RegistrationYearInt = p.currentYear
	}
	rec.YearsSinceRegistration = p.currentYear - rec.RegistrationYearInt

	if fields.Has(FieldLastVoted) {
		rec.LastVotedInt = LossyInt(rec.LastVotedYear, 0)
		if rec.LastVotedInt > 1900 {
			rec.YearsSinceLastVote = p.currentYear - rec.LastVotedInt
		} else {
			// Sentinel for "never/unknown": large enough that every
			// inactivity threshold downstream treats it as a signal.
			rec.YearsSinceLastVote = 999
		}
	} else {
		rec.LastVotedInt = 0
		rec.YearsSinceLastVote = 999
	}

	rec.VotingActivityScore = votingActivityScore(rec.LastVotedInt)

	rec.FirstNameNorm = NormalizeName(rec.FirstName)
	rec.LastNameNorm = NormalizeName(rec.LastName)
	rec.FullNameNorm = strings.TrimSpace(rec.FirstNameNorm + " " + rec.LastNameNorm)

	rec.FirstNameSoundex = phoneticCode(rec.FirstName, jellyfish.Soundex)
	rec.LastNameSoundex = phoneticCode(rec.LastName, jellyfish.Soundex)
	rec.FirstNameMetaphone = phoneticCode(rec.FirstName, jellyfish.Metaphone)
	rec.LastNameMetaphone = phoneticCode(rec.LastName, jellyfish.Metaphone)

	rec.IsVeryOld = rec.Age > 100
	rec.IsGhostAge = rec.Age > 110
	rec.LongVotingGap = rec.YearsSinceLastVote > 20
	rec.OldRegistration = rec.RegistrationYearInt < 1970

	return rec
}

// deriveAge prefers an explicit age column (lossy, default -1) and falls
// back to the date of birth. An unparseable DOB yields age 0, meaning
// "unknown" rather than "young".
func (p *Preprocessor) deriveAge(row Row, fields FieldMap) int {
	if fields.Has(FieldAge) {
		return LossyInt(fields.Get(row, FieldAge), -1)
	}
	if fields.Has(FieldDOB) {
		dob, ok := parseDOB(fields.Get(row, FieldDOB))
		if !ok {
			return 0
		}
		days := int(p.now.Sub(dob).Hours() / 24)
		return days / 365
	}
	return -1
}

func parseDOB(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dobLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func votingActivityScore(lastVoted int) float64 {
	if lastVoted == 0 {
		return 0.0
	}
	for _, e := range electionYears {
		if lastVoted >= e.year {
			return e.score
		}
	}
	return 0.1
}

// NormalizeName lowercases, trims, and collapses internal whitespace so
// spelling comparisons ignore casing and spacing noise.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// splitName breaks a combined name into first name + remainder.
func splitName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch {
	case len(parts) >= 2:
		return parts[0], strings.Join(parts[1:], " ")
	case len(parts) == 1:
		return parts[0], ""
	}
	return "", ""
}

// phoneticCode wraps the phonetic encoders so blank or failing inputs
// degrade to an empty code.
func phoneticCode(name string, encode func(string) string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return encode(name)
}
