package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/jackzampolin/rollcall/internal/types"
)

// Sheet names of the XLSX report.
const (
	SheetValidation      = "Validation"
	SheetSummary         = "Summary"
	SheetDiscrepancies   = "Discrepancies"
	SheetUnmatchedRoster = "Unmatched_Roster"
)

var statusFills = map[string]string{
	string(types.StatusFullMatch):              "C6EFCE",
	string(types.StatusPartialMatch):           "FFEB9C",
	string(types.StatusUnmatched):              "FFC7CE",
	string(types.StatusExtractionFailed):       "D9D9D9",
	string(types.ComparisonMismatch):           "FFC7CE",
	string(types.ComparisonMissingInExtracted): "FFEB9C",
	string(types.ComparisonMissingInReference): "FFEB9C",
}

// WriteXLSX writes the Validation, Summary, Discrepancies, and
// Unmatched_Roster sheets.
func (r *Report) WriteXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetValidation); err != nil {
		return err
	}
	for _, name := range []string{SheetSummary, SheetDiscrepancies, SheetUnmatchedRoster} {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}

	sw := &sheetWriter{f: f, styles: make(map[string]int)}
	validation := r.Table()
	sw.table(SheetValidation, validation)
	sw.fillStatuses(SheetValidation, validation)
	sw.table(SheetSummary, r.Summary())
	discrepancies := r.Discrepancies()
	sw.table(SheetDiscrepancies, discrepancies)
	sw.fillStatuses(SheetDiscrepancies, discrepancies)
	sw.table(SheetUnmatchedRoster, r.UnmatchedRoster())
	if sw.err != nil {
		return sw.err
	}

	f.SetActiveSheet(0)
	return f.Write(w)
}

// sheetWriter keeps the first error so sheet building reads linearly.
type sheetWriter struct {
	f      *excelize.File
	styles map[string]int
	err    error
}

func (s *sheetWriter) table(sheet string, t Table) {
	if s.err != nil {
		return
	}
	s.row(sheet, 1, t.Header)
	for i, row := range t.Rows {
		s.row(sheet, i+2, row)
	}
	if s.err != nil {
		return
	}

	bold, err := s.style("header", excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		s.err = err
		return
	}
	last, err := excelize.CoordinatesToCellName(len(t.Header), 1)
	if err != nil {
		s.err = err
		return
	}
	if err := s.f.SetCellStyle(sheet, "A1", last, bold); err != nil {
		s.err = err
		return
	}
	lastCol, _, _ := excelize.SplitCellName(last)
	if err := s.f.SetColWidth(sheet, "A", lastCol, 18); err != nil {
		s.err = err
	}
}

func (s *sheetWriter) row(sheet string, n int, values []string) {
	if s.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		s.err = err
		return
	}
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err := s.f.SetSheetRow(sheet, cell, &row); err != nil {
		s.err = fmt.Errorf("sheet %s row %d: %w", sheet, n, err)
	}
}

// fillStatuses colors every cell holding a record or comparison status.
func (s *sheetWriter) fillStatuses(sheet string, t Table) {
	for i, row := range t.Rows {
		for j, v := range row {
			color, ok := statusFills[v]
			if !ok || s.err != nil {
				continue
			}
			id, err := s.style(v, excelize.Style{
				Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			})
			if err != nil {
				s.err = err
				return
			}
			cell, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				s.err = err
				return
			}
			if err := s.f.SetCellStyle(sheet, cell, cell, id); err != nil {
				s.err = err
				return
			}
		}
	}
}

func (s *sheetWriter) style(key string, st excelize.Style) (int, error) {
	if id, ok := s.styles[key]; ok {
		return id, nil
	}
	id, err := s.f.NewStyle(&st)
	if err != nil {
		return 0, err
	}
	s.styles[key] = id
	return id, nil
}
