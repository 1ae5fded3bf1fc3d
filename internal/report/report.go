// Package report renders validation results as tables and writes them as
// CSV or XLSX files. Rendering is a pure function of the rows, so the same
// batch always produces the same bytes.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jackzampolin/rollcall/internal/evaluate"
	"github.com/jackzampolin/rollcall/internal/types"
)

// Base columns of the validation table. Compared-field columns follow
// reference_name.
var baseColumns = []string{
	"position",
	"document_id",
	"status",
	"match_basis",
	"match_score",
	"reference_id",
	"extracted_name",
	"reference_name",
}

var trailingColumns = []string{"mean_confidence", "error"}

// Table is a header plus string rows.
type Table struct {
	Header []string   `json:"header" yaml:"header"`
	Rows   [][]string `json:"rows" yaml:"rows"`
}

// TableHeader returns the header row.
func (t Table) TableHeader() []string {
	return t.Header
}

// TableRows returns the data rows.
func (t Table) TableRows() [][]string {
	return t.Rows
}

// Report bundles everything needed to render one batch.
type Report struct {
	Rows []types.ValidationReportRow
	// Fields are the compared fields, one column each.
	Fields     []types.Field
	Stats      evaluate.BatchStats
	References []types.ReferenceRecord
	Provider   string
	Threshold  float64
}

// Table builds the validation table: one row per document in input order.
func (r *Report) Table() Table {
	header := make([]string, 0, len(baseColumns)+len(r.Fields)+len(trailingColumns))
	header = append(header, baseColumns...)
	for _, f := range r.Fields {
		header = append(header, string(f))
	}
	header = append(header, trailingColumns...)

	rows := make([][]string, len(r.Rows))
	for i, row := range r.Rows {
		out := []string{
			strconv.Itoa(row.Position),
			row.DocumentID,
			string(row.Status),
			string(row.Match.Basis),
			formatFloat(row.Match.Score),
			row.Match.ReferenceID,
			row.ExtractedName,
			row.ReferenceName,
		}
		for _, f := range r.Fields {
			status := ""
			if c, ok := row.Comparison(f); ok {
				status = string(c.Status)
			}
			out = append(out, status)
		}
		confidence := ""
		if row.Status != types.StatusExtractionFailed {
			confidence = formatFloat(row.MeanConfidence)
		}
		out = append(out, confidence, row.Error)
		rows[i] = out
	}
	return Table{Header: header, Rows: rows}
}

// Discrepancies lists every non-matching field comparison.
func (r *Report) Discrepancies() Table {
	t := Table{Header: []string{"position", "document_id", "reference_id", "field", "extracted_value", "reference_value", "status"}}
	for _, row := range r.Rows {
		for _, c := range row.Comparisons {
			if c.Status == types.ComparisonMatch {
				continue
			}
			t.Rows = append(t.Rows, []string{
				strconv.Itoa(row.Position),
				row.DocumentID,
				row.Match.ReferenceID,
				string(c.Field),
				c.ExtractedValue.String(),
				c.ReferenceValue.String(),
				string(c.Status),
			})
		}
	}
	return t
}

// Summary renders the batch statistics as metric/value pairs.
func (r *Report) Summary() Table {
	s := r.Stats
	t := Table{Header: []string{"metric", "value"}}
	add := func(k, v string) { t.Rows = append(t.Rows, []string{k, v}) }

	if r.Provider != "" {
		add("provider", r.Provider)
	}
	add("threshold", formatFloat(r.Threshold))
	add("documents", strconv.Itoa(s.Documents))
	for _, st := range types.RecordStatuses {
		add("status."+strings.ToLower(string(st)), strconv.Itoa(s.Count(st)))
	}
	for _, b := range []types.MatchBasis{types.BasisExactID, types.BasisNameExact, types.BasisNameFuzzy, types.BasisUnmatched} {
		add("basis."+strings.ToLower(string(b)), strconv.Itoa(s.BasisCounts[b]))
	}
	add("matched", strconv.Itoa(s.Matched))
	add("match_rate", formatFloat(s.MatchRate))
	add("unclaimed_references", strconv.Itoa(len(s.UnclaimedReferences)))
	for _, f := range r.Fields {
		if n := s.FieldComparisons[f]; n > 0 {
			add("mismatch_rate."+string(f), formatFloat(s.MismatchFrequency[f]))
		}
	}
	for _, f := range types.CanonicalFields {
		if c, ok := s.MeanConfidence[f]; ok {
			add("confidence."+string(f), formatFloat(c))
		}
	}
	return t
}

// UnmatchedRoster lists roster records no document claimed, in roster order.
func (r *Report) UnmatchedRoster() Table {
	t := Table{Header: []string{"reference_id", "roster_row", "full_name", "student_id", "school", "grade"}}
	unclaimed := make(map[string]bool, len(r.Stats.UnclaimedReferences))
	for _, id := range r.Stats.UnclaimedReferences {
		unclaimed[id] = true
	}
	for _, ref := range r.References {
		if !unclaimed[ref.ID] {
			continue
		}
		t.Rows = append(t.Rows, []string{
			ref.ID,
			strconv.Itoa(ref.Row),
			ref.Fields.FullName.String(),
			ref.Fields.StudentID.String(),
			ref.Fields.School.String(),
			ref.Fields.Grade.String(),
		})
	}
	return t
}

// WriteFile writes the report to path, choosing CSV or XLSX by extension.
func WriteFile(path string, r *Report) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".csv" && ext != ".xlsx" {
		return fmt.Errorf("unsupported report format %q (want .csv or .xlsx)", ext)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}

	if ext == ".csv" {
		err = WriteCSV(f, r.Table())
	} else {
		err = r.WriteXLSX(f)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%.3f", v)
}
