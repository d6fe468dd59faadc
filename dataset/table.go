package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
)

// Row is a single raw record keyed by column name. Values are kept as the
// loosely typed strings they arrived as; typing happens during derivation.
type Row map[string]string

// Table is a row-oriented tabular dataset with named columns. Column order is
// preserved from the source so downstream output stays stable.
type Table struct {
	Columns []string
	Rows    []Row
}

// NewTable builds a table from pre-parsed columns and rows.
func NewTable(columns []string, rows []Row) *Table {
	return &Table{Columns: columns, Rows: rows}
}

// LoadCSV reads a voter dataset from a CSV file. The first line is the
// header; no fixed column order is required.
func LoadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("dataset %s is empty", path)
	}

	columns := records[0]
	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(Row, len(columns))
		for i, col := range columns {
			if i < len(rec) {
				row[col] = rec[i]
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}

	return &Table{Columns: columns, Rows: rows}, nil
}
