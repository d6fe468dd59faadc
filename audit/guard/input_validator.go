package guard

import (
	"fmt"
	"strings"

	"github.com/voteguard/voteguard/dataset"
)

// requiredFields are the logical fields every dataset must carry, each with
// its accepted column aliases (case-insensitive).
var requiredFields = []struct {
	name    string
	aliases []string
}{
	{"voter_id", []string{"voter_id", "voterid", "voter id", "id"}},
	{"first_name", []string{"first_name", "firstname", "first name", "fname"}},
	{"last_name", []string{"last_name", "lastname", "last name", "lname"}},
	{"dob", []string{"dob", "date_of_birth", "birth_date", "dateofbirth"}},
	{"gender", []string{"gender", "sex"}},
	{"address", []string{"address", "residence", "addr"}},
	{"pincode", []string{"pincode", "zip_code", "zip", "zipcode"}},
	{"registration_year", []string{"registration_year", "reg_year", "year_registered"}},
}

// forbiddenColumns must never appear in an input dataset: using any of them
// as a detection feature would encode bias against protected groups.
var forbiddenColumns = []string{
	"religion", "caste", "community", "ethnicity",
	"political_party", "income", "occupation",
}

// categorical columns checked for suspiciously uniform values.
var uniformityColumns = []string{"gender", "sex", "pincode", "zip_code"}

// InputValidator runs the pre-analysis gate over the raw table. Any failed
// critical check blocks the run before detection starts.
type InputValidator struct{}

// Validate runs every input check and returns all results, passed or not.
func (v *InputValidator) Validate(t *dataset.Table) []CheckResult {
	colsLower := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		colsLower[i] = strings.ToLower(c)
	}

	return []CheckResult{
		v.checkRequiredColumns(colsLower),
		v.checkForbiddenColumns(colsLower),
		v.checkDataIntegrity(t),
		v.checkInputManipulation(t),
	}
}

func (v *InputValidator) checkRequiredColumns(colsLower []string) CheckResult {
	present := make(map[string]bool, len(colsLower))
	for _, c := range colsLower {
		present[c] = true
	}

	var missing []string
	for _, req := range requiredFields {
		found := false
		for _, alias := range req.aliases {
			if present[alias] {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, req.name)
		}
	}

	// A single combined "name" column satisfies both name requirements.
	if present["name"] {
		filtered := missing[:0]
		for _, m := range missing {
			if m != "first_name" && m != "last_name" {
				filtered = append(filtered, m)
			}
		}
		missing = filtered
	}

	if len(missing) > 0 {
		return CheckResult{
			Name:     "Required Columns",
			Passed:   false,
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("Missing required columns (or aliases): %v", missing),
			Details:  map[string]any{"missing_columns": missing},
		}
	}

	return CheckResult{
		Name:     "Required Columns",
		Passed:   true,
		Severity: SeverityInfo,
		Message:  "All required columns (or acceptable aliases) present",
	}
}

func (v *InputValidator) checkForbiddenColumns(colsLower []string) CheckResult {
	var found []string
	for _, forbidden := range forbiddenColumns {
		for _, c := range colsLower {
			if c == forbidden {
				found = append(found, forbidden)
				break
			}
		}
	}

	if len(found) > 0 {
		return CheckResult{
			Name:     "Bias Prevention",
			Passed:   false,
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("BLOCKED: Dataset contains bias-risk columns: %v", found),
			Details:  map[string]any{"forbidden_columns": found},
		}
	}

	return CheckResult{
		Name:     "Bias Prevention",
		Passed:   true,
		Severity: SeverityInfo,
		Message:  "No bias-risk columns detected",
	}
}

func (v *InputValidator) checkDataIntegrity(t *dataset.Table) CheckResult {
	var issues []string

	idCol := findColumn(t.Columns, "voter_id", "voterid", "id")
	if idCol == "" {
		issues = append(issues, "Voter ID column not found for integrity check")
	} else {
		nulls := 0
		seen := make(map[string]bool, len(t.Rows))
		dups := 0
		for _, row := range t.Rows {
			id := strings.TrimSpace(row[idCol])
			if id == "" {
				nulls++
				continue
			}
			if seen[id] {
				dups++
			}
			seen[id] = true
		}
		if nulls > 0 {
			issues = append(issues, fmt.Sprintf("%d null Voter IDs", nulls))
		}
		if dups > 0 {
			issues = append(issues, fmt.Sprintf("%d duplicate Voter IDs", dups))
		}
	}

	if len(issues) > 0 {
		return CheckResult{
			Name:     "Data Integrity",
			Passed:   false,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("Data integrity issues: %s", strings.Join(issues, ", ")),
			Details:  map[string]any{"issues": issues},
		}
	}

	return CheckResult{
		Name:     "Data Integrity",
		Passed:   true,
		Severity: SeverityInfo,
		Message:  "Data integrity verified",
	}
}

// checkInputManipulation flags categorical columns dominated by a single
// value, a pattern typical of synthetic or manipulated inputs.
func (v *InputValidator) checkInputManipulation(t *dataset.Table) CheckResult {
	var suspicious []string

	for _, name := range uniformityColumns {
		col := findColumn(t.Columns, name)
		if col == "" || len(t.Rows) == 0 {
			continue
		}
		counts := make(map[string]int)
		for _, row := range t.Rows {
			counts[row[col]]++
		}
		max := 0
		for _, c := range counts {
			if c > max {
				max = c
			}
		}
		pct := float64(max) / float64(len(t.Rows))
		if pct > 0.95 {
			suspicious = append(suspicious, fmt.Sprintf("%s has %.0f%% same value", col, pct*100))
		}
	}

	if len(suspicious) > 0 {
		return CheckResult{
			Name:     "Input Manipulation Detection",
			Passed:   false,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("Suspicious patterns detected: %v", suspicious),
			Details:  map[string]any{"patterns": suspicious},
		}
	}

	return CheckResult{
		Name:     "Input Manipulation Detection",
		Passed:   true,
		Severity: SeverityInfo,
		Message:  "No suspicious input patterns detected",
	}
}

func findColumn(columns []string, names ...string) string {
	for _, col := range columns {
		lower := strings.ToLower(col)
		for _, name := range names {
			if lower == name {
				return col
			}
		}
	}
	return ""
}
