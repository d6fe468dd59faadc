package dataset

import (
	"testing"
	"time"
)

// fixedNow anchors derivation so age and inactivity features are stable.
var fixedNow = time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)

func deriveOne(t *testing.T, columns []string, values []string) VoterRecord {
	t.Helper()
	row := Row{}
	for i, col := range columns {
		row[col] = values[i]
	}
	table := NewTable(columns, []Row{row})

	ft := NewPreprocessorAt(fixedNow).Derive(table)
	if len(ft.Records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(ft.Records))
	}
	return ft.Records[0]
}

func TestLossyInt(t *testing.T) {
	tests := []struct {
		input string
		def   int
		want  int
	}{
		{"42", -1, 42},
		{" 42 ", -1, 42},
		{"1985.0", -1, 1985},
		{"", -1, -1},
		{"abc", 7, 7},
		{"nan", 7, 7},
	}
	for _, tt := range tests {
		if got := LossyInt(tt.input, tt.def); got != tt.want {
			t.Errorf("LossyInt(%q, %d): expected %d, got %d", tt.input, tt.def, tt.want, got)
		}
	}
}

func TestDerive_AgeColumnPreferredOverDOB(t *testing.T) {
	rec := deriveOne(t,
		[]string{"voter_id", "first_name", "last_name", "age", "dob"},
		[]string{"V001", "Asha", "Kumar", "45", "1900-01-01"})

	if rec.Age != 45 {
		t.Errorf("Expected age 45 from age column, got %d", rec.Age)
	}
}

func TestDerive_AgeFromDOB(t *testing.T) {
	rec := deriveOne(t,
		[]string{"voter_id", "first_name", "last_name", "dob"},
		[]string{"V001", "Asha", "Kumar", "1990-01-02"})

	if rec.Age != 36 {
		t.Errorf("Expected age 36 from DOB, got %d", rec.Age)
	}
}

func TestDerive_UnparseableDOB(t *testing.T) {
	rec := deriveOne(t,
		[]string{"voter_id", "first_name", "last_name", "dob"},
		[]string{"V001", "Asha", "Kumar", "not-a-date"})

	if rec.Age != 0 {
		t.Errorf("Expected age 0 for unparseable DOB, got %d", rec.Age)
	}
}

func TestDerive_NeverVotedSentinel(t *testing.T) {
	rec := deriveOne(t,
		[]string{"voter_id", "first_name", "last_name", "last_voted_year"},
		[]string{"V001", "Asha", "Kumar", ""})

	if rec.YearsSinceLastVote != 999 {
		t.Errorf("Expected sentinel 999 for empty last-voted, got %d", rec.YearsSinceLastVote)
	}
	if rec.VotingActivityScore != 0.0 {
		t.Errorf("Expected activity score 0.0, got %g", rec.VotingActivityScore)
	}
	if !rec.LongVotingGap {
		t.Error("Expected long voting gap for never-voted record")
	}
}

func TestDerive_VotingActivityScore(t *testing.T) {
	tests := []struct {
		lastVoted string
		want      float64
	}{
		{"2024", 1.0},
		{"2020", 0.8},
		{"2015", 0.6},
		{"2010", 0.4},
		{"2005", 0.2},
		{"1998", 0.1},
	}
	for _, tt := range tests {
		rec := deriveOne(t,
			[]string{"voter_id", "first_name", "last_name", "last_voted_year"},
			[]string{"V001", "Asha", "Kumar", tt.lastVoted})
		if rec.VotingActivityScore != tt.want {
			t.Errorf("last voted %s: expected score %g, got %g", tt.lastVoted, tt.want, rec.VotingActivityScore)
		}
	}
}

func TestDerive_CombinedNameSplit(t *testing.T) {
	rec := deriveOne(t,
		[]string{"voter_id", "name"},
		[]string{"V001", "Asha Devi Kumar"})

	if rec.FirstName != "Asha" {
		t.Errorf("Expected first name Asha, got %q", rec.FirstName)
	}
	if rec.LastName != "Devi Kumar" {
		t.Errorf("Expected last name 'Devi Kumar', got %q", rec.LastName)
	}
	if rec.FullName != "Asha Devi Kumar" {
		t.Errorf("Expected full name kept, got %q", rec.FullName)
	}
}

func TestDerive_GhostIndicators(t *testing.T) {
	rec := deriveOne(t,
		[]string{"voter_id", "first_name", "last_name", "age", "registration_year", "last_voted_year"},
		[]string{"V001", "Asha", "Kumar", "120", "1955", "1985"})

	if !rec.IsVeryOld || !rec.IsGhostAge {
		t.Errorf("Expected age flags set for age 120, got very_old=%v ghost_age=%v", rec.IsVeryOld, rec.IsGhostAge)
	}
	if !rec.OldRegistration {
		t.Error("Expected old registration flag for 1955")
	}
	if !rec.LongVotingGap {
		t.Error("Expected long voting gap for last vote in 1985")
	}
	if rec.YearsSinceRegistration != 71 {
		t.Errorf("Expected 71 years since registration, got %d", rec.YearsSinceRegistration)
	}
}

func TestDerive_PhoneticCodes(t *testing.T) {
	rec := deriveOne(t,
		[]string{"voter_id", "first_name", "last_name"},
		[]string{"V001", "Robert", "Smith"})

	if rec.FirstNameSoundex != "R163" {
		t.Errorf("Expected soundex R163 for Robert, got %q", rec.FirstNameSoundex)
	}
	if rec.FirstNameMetaphone == "" || rec.LastNameMetaphone == "" {
		t.Error("Expected metaphone codes for non-empty names")
	}

	blank := deriveOne(t,
		[]string{"voter_id", "first_name", "last_name"},
		[]string{"V002", "", ""})
	if blank.FirstNameSoundex != "" {
		t.Errorf("Expected empty code for blank name, got %q", blank.FirstNameSoundex)
	}
}

func TestDerive_Deterministic(t *testing.T) {
	columns := []string{"voter_id", "first_name", "last_name", "dob", "last_voted_year"}
	values := []string{"V001", "Asha", "Kumar", "1950-03-10", "2009"}

	a := deriveOne(t, columns, values)
	b := deriveOne(t, columns, values)

	if a.Age != b.Age || a.YearsSinceLastVote != b.YearsSinceLastVote ||
		a.VotingActivityScore != b.VotingActivityScore {
		t.Error("Expected identical derivation for identical inputs")
	}
}

func TestGhostFeatureVector_Order(t *testing.T) {
	rec := deriveOne(t,
		[]string{"voter_id", "first_name", "last_name", "age", "registration_year", "last_voted_year"},
		[]string{"V001", "Asha", "Kumar", "120", "1950", ""})

	vec := rec.GhostFeatureVector()
	if len(vec) != len(GhostFeatureNames) {
		t.Fatalf("Expected %d features, got %d", len(GhostFeatureNames), len(vec))
	}
	if vec[0] != 120 {
		t.Errorf("Expected first feature to be age 120, got %g", vec[0])
	}
	for i, name := range GhostFeatureNames {
		if got := rec.GhostFeature(name); got != vec[i] {
			t.Errorf("Feature %s: expected %g, got %g", name, vec[i], got)
		}
	}
}
