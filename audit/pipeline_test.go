package audit

import (
	"errors"
	"fmt"
	"testing"

	"github.com/voteguard/voteguard/dataset"
)

var rollColumns = []string{
	"voter_id", "first_name", "last_name", "dob", "gender",
	"address", "pincode", "registration_year", "last_voted_year",
}

// sampleRoll builds a roll of n ordinary voters plus one ghost and one
// duplicate pair.
func sampleRoll(t *testing.T, n int) *dataset.Table {
	t.Helper()
	table := dataset.NewTable(rollColumns, nil)

	addRow := func(values []string) {
		row := dataset.Row{}
		for i, col := range rollColumns {
			row[col] = values[i]
		}
		table.Rows = append(table.Rows, row)
	}

	for i := 0; i < n; i++ {
		gender := "M"
		if i%2 == 0 {
			gender = "F"
		}
		addRow([]string{
			fmt.Sprintf("N%03d", i), "Voter", fmt.Sprintf("Number%d", i),
			fmt.Sprintf("19%02d-04-12", 50+i%40), gender,
			fmt.Sprintf("%d Station Road, Nagpur", i+1),
			fmt.Sprintf("4400%02d", i%30), "2005", fmt.Sprintf("%d", 2014+i%12),
		})
	}

	// One ghost: born 1900 and never voted.
	addRow([]string{
		"GHOST1", "Moti", "Lal", "1900-01-01", "M",
		"7 Old Lane, Nagpur", "440001", "1955", "",
	})

	// One duplicate pair: same DOB and pincode, near-identical names.
	addRow([]string{
		"DUP1", "Rajesh", "Kumar", "1985-03-10", "M",
		"12 MG Road, Pune", "411001", "2004", "2024",
	})
	addRow([]string{
		"DUP2", "Rajesh", "Kumaar", "1985-03-10", "M",
		"14 MG Road, Pune", "411001", "2006", "2019",
	})

	return table
}

func TestPipeline_EndToEnd(t *testing.T) {
	table := sampleRoll(t, 60)

	pipeline := NewPipeline(DefaultPipelineConfig(), nil)
	result, err := pipeline.Run(table)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.TotalRecords != 63 {
		t.Errorf("Expected 63 records, got %d", result.TotalRecords)
	}
	if result.SessionID == "" {
		t.Error("Expected a session id")
	}

	var ghost *FlagExplanation
	for i := range result.GhostExplanations {
		if result.GhostExplanations[i].VoterID == "GHOST1" {
			ghost = &result.GhostExplanations[i]
		}
	}
	if ghost == nil {
		t.Fatal("Expected GHOST1 to be flagged")
	}
	// Age plus never-voted means the maximum rule confidence.
	if ghost.Confidence != 1.0 {
		t.Errorf("Expected confidence 1.0 for GHOST1, got %g", ghost.Confidence)
	}
	if ghost.FlagType != FlagGhost {
		t.Errorf("Expected GHOST_VOTER flag type, got %s", ghost.FlagType)
	}

	dupIDs := make(map[string]bool)
	for _, ex := range result.DuplicateExplanations {
		dupIDs[ex.VoterID] = true
	}
	if !dupIDs["DUP1"] || !dupIDs["DUP2"] {
		t.Errorf("Expected both duplicate registrations flagged, got %v", dupIDs)
	}
	if len(result.DuplicateGroups) != 1 {
		t.Errorf("Expected 1 duplicate group, got %d", len(result.DuplicateGroups))
	}

	if result.SummaryReport.TotalFlaggedRecords == 0 {
		t.Error("Expected a non-empty summary report")
	}
	if len(result.SecurityReport.PreAnalysisChecks) != 4 {
		t.Errorf("Expected 4 pre-analysis checks, got %d", len(result.SecurityReport.PreAnalysisChecks))
	}
	if len(result.SecurityReport.PostAnalysisChecks) != 3 {
		t.Errorf("Expected 3 post-analysis checks, got %d", len(result.SecurityReport.PostAnalysisChecks))
	}
}

func TestPipeline_BlocksForbiddenColumn(t *testing.T) {
	table := sampleRoll(t, 20)
	table.Columns = append(table.Columns, "caste")
	for _, row := range table.Rows {
		row["caste"] = "x"
	}

	pipeline := NewPipeline(DefaultPipelineConfig(), nil)
	result, err := pipeline.Run(table)

	if result != nil {
		t.Error("Expected no result for a blocked run")
	}
	var secErr *SecurityError
	if !errors.As(err, &secErr) {
		t.Fatalf("Expected SecurityError, got %v", err)
	}
	if len(secErr.Checks) == 0 {
		t.Error("Expected the failing checks to be attached")
	}
}

func TestPipeline_CleanRollDistinctFromBlocked(t *testing.T) {
	// A clean roll with nothing to flag returns an empty result, not an
	// error: zero findings and a blocked run are different outcomes.
	table := dataset.NewTable(rollColumns, nil)
	row := dataset.Row{}
	for i, col := range rollColumns {
		row[col] = []string{
			"V001", "Asha", "Kumar", "1985-03-10", "F",
			"12 MG Road, Pune", "411001", "2004", "2024",
		}[i]
	}
	table.Rows = append(table.Rows, row)

	pipeline := NewPipeline(DefaultPipelineConfig(), nil)
	result, err := pipeline.Run(table)
	if err != nil {
		t.Fatalf("Expected clean run to succeed, got %v", err)
	}
	if result.GhostVotersFlagged != 0 || result.DuplicateVotersFlagged != 0 {
		t.Errorf("Expected no findings, got %d/%d",
			result.GhostVotersFlagged, result.DuplicateVotersFlagged)
	}
}

func TestPipeline_StatisticalModeDeterministic(t *testing.T) {
	table := sampleRoll(t, 80)

	cfg := DefaultPipelineConfig()
	cfg.EnableStatistical = true

	run := func() *PipelineResult {
		result, err := NewPipeline(cfg, nil).Run(table)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		return result
	}

	a := run()
	b := run()
	if a.GhostVotersFlagged != b.GhostVotersFlagged {
		t.Errorf("Expected deterministic ghost counts, got %d vs %d",
			a.GhostVotersFlagged, b.GhostVotersFlagged)
	}
	if len(a.GhostExplanations) == len(b.GhostExplanations) {
		for i := range a.GhostExplanations {
			if a.GhostExplanations[i].VoterID != b.GhostExplanations[i].VoterID ||
				a.GhostExplanations[i].Confidence != b.GhostExplanations[i].Confidence {
				t.Errorf("Explanation %d differs between seeded runs", i)
			}
		}
	}
}
