package roster

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ReadXLSX parses an XLSX roster. The sheet is cfg.Sheet when set, else the
// first sheet whose header maps a name column, else the first sheet.
func ReadXLSX(r io.Reader, cfg Config) (*Roster, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open roster workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("roster workbook has no sheets")
	}

	if cfg.Sheet != "" {
		idx, err := f.GetSheetIndex(cfg.Sheet)
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("roster sheet %q not found (have %v)", cfg.Sheet, sheets)
		}
		return readSheet(f, cfg.Sheet, cfg)
	}

	m, err := newMapper(cfg.Columns)
	if err != nil {
		return nil, err
	}
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}
		header, _ := headerOf(rows)
		if header != nil && missing(m.mapHeader(header)) == nil {
			return readSheet(f, sheet, cfg)
		}
	}
	return readSheet(f, sheets[0], cfg)
}

func readSheet(f *excelize.File, sheet string, cfg Config) (*Roster, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}

	header, at := headerOf(rows)
	if header == nil {
		return nil, &MissingColumnsError{Missing: []string{"full_name"}}
	}

	data := rows[at+1:]
	lines := make([]int, len(data))
	for i := range data {
		lines[i] = at + 2 + i
	}

	r, err := fromTable(cfg, header, data, lines)
	if err != nil {
		return nil, err
	}
	r.Sheet = sheet
	return r, nil
}

// headerOf returns the first non-blank row and its index.
func headerOf(rows [][]string) ([]string, int) {
	for i, row := range rows {
		if !blank(row) {
			return row, i
		}
	}
	return nil, -1
}
